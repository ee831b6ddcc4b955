package modbus

import (
	"testing"
)

func TestWriteCursorReserveAndFill(t *testing.T) {
	c := newWriteCursor()

	c.putUint8(0x01)
	slot := c.reserve(2)
	c.putBytes([]byte{0xaa, 0xbb})

	c.fill(slot, []byte{0x12, 0x34})

	want := []byte{0x01, 0x12, 0x34, 0xaa, 0xbb}
	got := c.bytes()
	if len(got) != len(want) {
		t.Fatalf("expected %v bytes, got %v", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %v: expected 0x%02x, got 0x%02x", i, want[i], got[i])
		}
	}
}

func TestReadCursorInsufficientBytes(t *testing.T) {
	c := newReadCursor([]byte{0x01})

	if _, err := c.getUint8(); err != nil {
		t.Errorf("expected the first byte to be readable, got %v", err)
	}

	if _, err := c.getUint8(); err != ErrShortFrame {
		t.Errorf("expected ErrShortFrame past the end of the buffer, got %v", err)
	}

	if _, err := newReadCursor([]byte{0x01, 0x02}).getBytes(3); err != ErrShortFrame {
		t.Errorf("expected ErrShortFrame when reading past the end of the buffer")
	}
}

func TestReadCursorRemaining(t *testing.T) {
	c := newReadCursor([]byte{0x01, 0x02, 0x03})

	if c.remaining() != 3 {
		t.Errorf("expected 3 remaining bytes, got %v", c.remaining())
	}

	c.getUint8()

	if c.remaining() != 2 {
		t.Errorf("expected 2 remaining bytes, got %v", c.remaining())
	}
}
