package modbus

import (
	"encoding/binary"
	"math"
)

// byteOrderOf maps a client-facing Endianness value to the corresponding
// encoding/binary.ByteOrder implementation.
func byteOrderOf(e Endianness) binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}

	return binary.BigEndian
}

func uint16ToBytes(e Endianness, in uint16) (out []byte) {
	out = make([]byte, 2)
	byteOrderOf(e).PutUint16(out, in)

	return
}

func uint16sToBytes(e Endianness, in []uint16) (out []byte) {
	for _, value := range in {
		out = append(out, uint16ToBytes(e, value)...)
	}

	return
}

func bytesToUint16(e Endianness, in []byte) (out uint16) {
	out = byteOrderOf(e).Uint16(in)

	return
}

func bytesToUint16s(e Endianness, in []byte) (out []uint16) {
	for i := 0; i+1 < len(in); i += 2 {
		out = append(out, bytesToUint16(e, in[i:i+2]))
	}

	return
}

// swapWords exchanges the two 16-bit halves of a 4-byte buffer in place,
// used whenever the requested word order doesn't match the natural order
// implied by the byte endianness.
func swapWords(buf []byte) {
	buf[0], buf[1], buf[2], buf[3] = buf[2], buf[3], buf[0], buf[1]
}

// swapWords64 exchanges the four 16-bit words of an 8-byte buffer, reversing
// their order, used for the same reason as swapWords but for 64-bit values.
func swapWords64(buf []byte) {
	buf[0], buf[1], buf[2], buf[3], buf[4], buf[5], buf[6], buf[7] =
		buf[6], buf[7], buf[4], buf[5], buf[2], buf[3], buf[0], buf[1]
}

// needsWordSwap reports whether the natural register order produced by
// encoding/binary for the given byte endianness needs to be reversed to
// honor wo. Big-endian bytes naturally carry the high word first; little-endian
// bytes naturally carry the low word first.
func needsWordSwap(e Endianness, wo WordOrder) bool {
	if e == LittleEndian {
		return wo == HighWordFirst
	}

	return wo == LowWordFirst
}

func uint32ToBytes(e Endianness, wo WordOrder, in uint32) (out []byte) {
	out = make([]byte, 4)
	byteOrderOf(e).PutUint32(out, in)

	if needsWordSwap(e, wo) {
		swapWords(out)
	}

	return
}

func bytesToUint32s(e Endianness, wo WordOrder, in []byte) (out []uint32) {
	bo := byteOrderOf(e)

	for i := 0; i+3 < len(in); i += 4 {
		buf := make([]byte, 4)
		copy(buf, in[i:i+4])

		if needsWordSwap(e, wo) {
			swapWords(buf)
		}

		out = append(out, bo.Uint32(buf))
	}

	return
}

func float32ToBytes(e Endianness, wo WordOrder, in float32) []byte {
	return uint32ToBytes(e, wo, math.Float32bits(in))
}

func bytesToFloat32s(e Endianness, wo WordOrder, in []byte) (out []float32) {
	for _, bits := range bytesToUint32s(e, wo, in) {
		out = append(out, math.Float32frombits(bits))
	}

	return
}

func uint64ToBytes(e Endianness, wo WordOrder, in uint64) (out []byte) {
	out = make([]byte, 8)
	byteOrderOf(e).PutUint64(out, in)

	if needsWordSwap(e, wo) {
		swapWords64(out)
	}

	return
}

func bytesToUint64s(e Endianness, wo WordOrder, in []byte) (out []uint64) {
	bo := byteOrderOf(e)

	for i := 0; i+7 < len(in); i += 8 {
		buf := make([]byte, 8)
		copy(buf, in[i:i+8])

		if needsWordSwap(e, wo) {
			swapWords64(buf)
		}

		out = append(out, bo.Uint64(buf))
	}

	return
}

func float64ToBytes(e Endianness, wo WordOrder, in float64) []byte {
	return uint64ToBytes(e, wo, math.Float64bits(in))
}

func bytesToFloat64s(e Endianness, wo WordOrder, in []byte) (out []float64) {
	for _, bits := range bytesToUint64s(e, wo, in) {
		out = append(out, math.Float64frombits(bits))
	}

	return
}

// encodeBools packs a slice of bools into a LSB-first bitfield, one bit per
// coil/discrete input, the wire format used by function codes 01, 02 and 0f.
func encodeBools(in []bool) (out []byte) {
	byteCount := len(in) / 8
	if len(in)%8 != 0 {
		byteCount++
	}

	out = make([]byte, byteCount)
	for i, bit := range in {
		if bit {
			out[i/8] |= 0x01 << (uint(i) % 8)
		}
	}

	return
}

// decodeBools unpacks a LSB-first bitfield into quantity individual bools.
func decodeBools(quantity uint16, in []byte) (out []bool) {
	for i := uint(0); i < uint(quantity); i++ {
		out = append(out, ((in[i/8]>>(i%8))&0x01) == 0x01)
	}

	return
}
