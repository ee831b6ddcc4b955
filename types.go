package modbus

import "fmt"

// UnitID identifies a single outstation (slave) on a modbus link. 0 is the
// broadcast address; 248-255 are reserved by the protocol for gateway use.
type UnitID uint8

// Indexed pairs a 0-based offset from an AddressRange's start address with
// the value read or written at that offset. The handler callbacks and the
// client read helpers in this package use plain slices, not Indexed.
type Indexed[T any] struct {
	Index uint16
	Value T
}

// AddressRange is a validated (start, count) pair identifying a contiguous
// block of coils, discrete inputs, or registers. Range caps differ by
// access type (2000 for bit reads, 1968 for bit writes, 125 for register
// reads, 123 for register writes) and are enforced by the constructors below rather than
// by AddressRange itself, since the same start/count shape is shared
// across several function codes with different ceilings.
type AddressRange struct {
	Start uint16
	Count uint16
}

// NewAddressRange validates start/count against the 16-bit address space
// and a caller-supplied maximum count, returning an error that maps
// directly to a modbus exception when either the request spans past
// 0xffff or lies outside the [1, max] count bound.
func NewAddressRange(start uint16, count uint16, max uint16) (AddressRange, error) {
	if count == 0 {
		return AddressRange{}, ErrIllegalDataValue
	}

	if count > max {
		return AddressRange{}, ErrIllegalDataValue
	}

	if uint32(start)+uint32(count)-1 > 0xffff {
		return AddressRange{}, ErrIllegalDataAddress
	}

	return AddressRange{Start: start, Count: count}, nil
}

// End returns the last address covered by the range, inclusive.
func (r AddressRange) End() uint16 {
	return r.Start + r.Count - 1
}

const (
	maxBitReadCount        uint16 = 2000
	maxBitWriteCount       uint16 = 0x7b0
	maxRegisterReadCount   uint16 = 0x007d
	maxRegisterWriteCount  uint16 = 0x007b
)

// NewBitReadRange validates an address range for function codes 0x01/0x02.
func NewBitReadRange(start uint16, count uint16) (AddressRange, error) {
	return NewAddressRange(start, count, maxBitReadCount)
}

// NewBitWriteRange validates an address range for function code 0x0f.
func NewBitWriteRange(start uint16, count uint16) (AddressRange, error) {
	return NewAddressRange(start, count, maxBitWriteCount)
}

// NewRegisterReadRange validates an address range for function codes 0x03/0x04.
func NewRegisterReadRange(start uint16, count uint16) (AddressRange, error) {
	return NewAddressRange(start, count, maxRegisterReadCount)
}

// NewRegisterWriteRange validates an address range for function code 0x10.
func NewRegisterWriteRange(start uint16, count uint16) (AddressRange, error) {
	return NewAddressRange(start, count, maxRegisterWriteCount)
}

// MaskWriteRegister applies the modbus mask write law used by function code
// 0x16: result = (current AND andMask) OR (orMask AND NOT andMask).
func MaskWriteRegister(current uint16, andMask uint16, orMask uint16) uint16 {
	return (current & andMask) | (orMask &^ andMask)
}

func (c ReadDeviceCode) String() string {
	switch c {
	case ReadDeviceBasic:
		return "basic"
	case ReadDeviceRegular:
		return "regular"
	case ReadDeviceExtended:
		return "extended"
	case ReadDeviceSpecific:
		return "specific"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(c))
	}
}

func (l DeviceConformityLevel) String() string {
	switch l {
	case ConformityBasicStream:
		return "basic (stream only)"
	case ConformityRegularStream:
		return "regular (stream only)"
	case ConformityExtendedStream:
		return "extended (stream only)"
	case ConformityBasicIndividual:
		return "basic (stream + individual)"
	case ConformityRegularIndividual:
		return "regular (stream + individual)"
	case ConformityExtendedIndividual:
		return "extended (stream + individual)"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(l))
	}
}

// supportsIndividualAccess reports whether a conformity level permits the
// "specific object" variant of Read Device Identification (objects fetched
// one at a time by id) in addition to the streaming variants.
func (l DeviceConformityLevel) supportsIndividualAccess() bool {
	return uint8(l)&0x80 != 0
}
