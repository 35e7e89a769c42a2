package bitbuffer

import (
	"bytes"
	"testing"
)

func TestBuffer(t *testing.T) {
	w := NewBuffer()

	if w.BitLength() != 0 {
		t.Errorf("initial bit length should be 0, got %d", w.BitLength())
	}

	for i := range 16 {
		if err := w.WriteBits(1, 0); err != nil {
			t.Fatalf("WriteBits %d failed: %v", i+1, err)
		}
	}
	if w.BitLength() != 16 {
		t.Errorf("after 16 writes, bit length should be 16, got %d", w.BitLength())
	}

	if err := w.WriteOctets([]byte{0x00}); err != nil {
		t.Fatalf("WriteOctets failed: %v", err)
	}
	if w.BitLength() != 24 {
		t.Errorf("after WriteOctets, bit length should be 24, got %d", w.BitLength())
	}

	if err := w.Align(); err != nil {
		t.Fatalf("Align failed: %v", err)
	}
	if w.BitLength() != 24 {
		t.Errorf("after Align on an aligned buffer, bit length should still be 24, got %d", w.BitLength())
	}

	if err := w.WriteBits(1, 1); err != nil {
		t.Fatalf("WriteBits after Align failed: %v", err)
	}
	if w.BitLength() != 25 {
		t.Errorf("after writing one bit, bit length should be 25, got %d", w.BitLength())
	}

	got := w.Bytes()
	expected := []byte{0x00, 0x00, 0x00, 0x80}
	if !bytes.Equal(got, expected) {
		t.Errorf("Bytes() = %x, expected %x", got, expected)
	}
}

func TestWriteReadBits(t *testing.T) {
	bits := make([]uint8, 64)
	for i := range bits {
		bits[i] = uint8(i + 1)
	}

	run := func(valueFor func(bit uint8) uint64) {
		w := NewBuffer()
		for _, bit := range bits {
			if err := w.WriteBits(bit, valueFor(bit)); err != nil {
				t.Fatalf("WriteBits %d failed: %v", bit, err)
			}
		}

		r := NewBufferFromBytes(w.Bytes())
		for _, bit := range bits {
			expected := valueFor(bit)
			actual, err := r.ReadBits(bit)
			if err != nil {
				t.Fatalf("ReadBits %d failed: %v", bit, err)
			}
			if actual != expected {
				t.Errorf("ReadBits %d bits: expected %d, got %d", bit, expected, actual)
			}
		}
		if w.BitLength() != 2080 {
			t.Errorf("total written bits: expected 2080, got %d", w.BitLength())
		}
		if r.NumRead() != 2080 {
			t.Errorf("total read bits: expected 2080, got %d", r.NumRead())
		}
	}

	run(func(bit uint8) uint64 { return uint64(bit) })
	run(func(bit uint8) uint64 { return 0 })
	run(func(bit uint8) uint64 { return (uint64(1) << bit) - 1 })
}

func TestSeekAndSlice(t *testing.T) {
	w := NewBuffer()
	if err := w.WriteBits(4, 0xA); err != nil {
		t.Fatalf("WriteBits failed: %v", err)
	}
	if err := w.WriteBits(8, 0xFF); err != nil {
		t.Fatalf("WriteBits failed: %v", err)
	}
	if err := w.WriteBits(4, 0x5); err != nil {
		t.Fatalf("WriteBits failed: %v", err)
	}

	r := NewBufferFromBytes(w.Bytes())

	first, err := r.ReadBits(4)
	if err != nil {
		t.Fatalf("ReadBits failed: %v", err)
	}
	if first != 0xA {
		t.Errorf("first nibble = %x, expected a", first)
	}

	// Seek back to 0 and re-read non-destructively.
	if err := r.Seek(0); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	again, err := r.ReadBits(4)
	if err != nil {
		t.Fatalf("ReadBits after seek failed: %v", err)
	}
	if again != first {
		t.Errorf("re-read after seek = %x, expected %x", again, first)
	}

	slice, err := w.Slice(4, 8)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if !bytes.Equal(slice, []byte{0xFF}) {
		t.Errorf("Slice(4,8) = %x, expected ff", slice)
	}

	tail, err := w.Slice(12, 4)
	if err != nil {
		t.Fatalf("Slice failed: %v", err)
	}
	if !bytes.Equal(tail, []byte{0x50}) {
		t.Errorf("Slice(12,4) = %x, expected left-aligned 50", tail)
	}
}

func TestSeekPastEndFails(t *testing.T) {
	w := NewBuffer()
	_ = w.WriteBits(8, 0xFF)
	r := NewBufferFromBytes(w.Bytes())
	if err := r.Seek(100); err == nil {
		t.Error("Seek past end of written data should fail")
	}
}
