// Package per implements ITU-T X.691 Packed Encoding Rules, UNALIGNED
// variant only. Each exported function is grounded on the clause of the
// Recommendation named in its preceding comment block; the comment text is
// quoted (trimmed to the UNALIGNED-variant procedures) rather than
// paraphrased, since it is the normative source these functions implement.
package per

import (
	"encoding/asn1"
	"math/bits"

	"github.com/thebagchi/go-uper/lib/bitbuffer"
)

// Encoder writes values onto a bit buffer using PER unaligned encoding.
type Encoder struct {
	buf *bitbuffer.Buffer
}

// NewEncoder creates a new unaligned PER encoder.
func NewEncoder() *Encoder {
	return &Encoder{
		buf: bitbuffer.NewBuffer(),
	}
}

// Bytes returns the encoded bytes, trimmed to the exact bit length written
// (the final partial byte, if any, is zero-padded).
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

// BitLength returns the exact number of bits written so far.
func (e *Encoder) BitLength() uint64 {
	return e.buf.BitLength()
}

// WriteRawBits splices pre-encoded bits verbatim into the stream, bypassing
// every type-specific codec below. Used by the raw-bytes passthrough
// sentinel (value.RawBits).
func (e *Encoder) WriteRawBits(data []byte, bitLen uint64) error {
	return e.writeBits(data, uint(bitLen))
}

// 11.3 Encoding as a non-negative-binary-integer
// |- 11.3.6 A minimum octet non-negative-binary-integer encoding of the whole number has a
// |  |  field which is a multiple of eight bits, and the leading eight bits of the field
// |  |  shall not all be zero unless the field is precisely eight bits long.

func BitsNonNegativeBinaryInteger(value uint64) int {
	if value == 0 {
		return 1
	}
	return bits.Len64(value)
}

func OctetsNonNegativeBinaryIntegerLength(value uint64) int {
	b := BitsNonNegativeBinaryInteger(value)
	return (b + 7) >> 3
}

// 11.4 Encoding as a 2's-complement-binary-integer
// |- 11.4.6 A minimum octet 2's-complement-binary-integer encoding of the whole number has a
// |  |  field-width that is a multiple of eight bits and satisfies the condition that the
// |  |  leading nine bits of the field shall not all be zero and shall not all be ones.

func BitsTwosComplementBinaryInteger(value int64) int {
	if value == 0 {
		return 1
	}
	if value > 0 {
		return bits.Len64(uint64(value)) + 1
	}
	return bits.Len64(uint64(^value)) + 1
}

func OctetsTwosComplementBinaryInteger(value int64) int {
	b := BitsTwosComplementBinaryInteger(value)
	return (b + 7) >> 3
}

// 11.5 Encoding of a constrained whole number
// |- 11.5.3 Let "range" be ("ub" - "lb" + 1), and let the value to be encoded be "n".
// |- 11.5.4 If "range" has the value 1, the result of the encoding is an empty bit-field.
// |- 11.5.6 (UNALIGNED variant) The value ("n" - "lb") shall be encoded as a
// |  |  non-negative-binary-integer in a bit-field with the minimum number of bits necessary
// |  |  to represent the range.

func (e *Encoder) EncodeConstrainedWholeNumber(lb, ub, n int64) error {
	vr := ub - lb + 1
	if vr == 1 {
		return nil
	}
	width := BitsNonNegativeBinaryInteger(uint64(vr - 1))
	value := uint64(n - lb)
	return e.buf.WriteBits(uint8(width), value)
}

// 11.6 Encoding of a normally small non-negative whole number
// |- 11.6.1 If "n" ≤ 63, a single-bit field set to 0 is appended, followed by "n" encoded
// |  |  as a non-negative-binary-integer in a 6-bit bit-field.
// |- 11.6.2 If "n" ≥ 64, a single-bit field set to 1 is appended, followed by "n" encoded
// |  |  as a semi-constrained whole number with "lb" = 0, preceded by a length determinant.

func (e *Encoder) EncodeNormallySmallNonNegativeWholeNumber(n uint64) error {
	if n <= 63 {
		if err := e.buf.WriteBits(1, 0); err != nil {
			return err
		}
		return e.buf.WriteBits(6, n)
	}
	if err := e.buf.WriteBits(1, 1); err != nil {
		return err
	}
	return e.EncodeSemiConstrainedWholeNumber(0, int64(n))
}

// 11.7 Encoding of a semi-constrained whole number
// |- 11.7.4 The value ("n" - "lb") shall be encoded as a non-negative-binary-integer in a
// |  |  bit-field with the minimum number of octets, preceded by a length determinant (11.9)
// |  |  giving that octet count "len"; this function writes both.

func (e *Encoder) EncodeSemiConstrainedWholeNumber(lb, n int64) error {
	octets := OctetsNonNegativeBinaryIntegerLength(uint64(n - lb))
	if octets == 0 {
		octets = 1
	}
	if _, err := e.EncodeLengthDeterminant(uint64(octets), nil, nil); err != nil {
		return err
	}
	return e.buf.WriteBits(uint8(octets*8), uint64(n-lb))
}

// 11.8 Encoding of an unconstrained whole number
// |- 11.8.3 The value "n" shall be encoded as a 2's-complement-binary-integer in a bit-field
// |  |  with the minimum number of octets, preceded by a length determinant (11.9) giving
// |  |  that octet count "len"; this function writes both.

func (e *Encoder) EncodeUnconstrainedWholeNumber(n int64) error {
	octets := OctetsTwosComplementBinaryInteger(n)
	if octets == 0 {
		octets = 1
	}
	if _, err := e.EncodeLengthDeterminant(uint64(octets), nil, nil); err != nil {
		return err
	}
	return e.buf.WriteBits(uint8(octets*8), uint64(n))
}

// 11.9 General rules for encoding a length determinant
// |- 11.9.4 (UNALIGNED variant)
// |- 11.9.4.1 If "n" is a constrained whole number with "ub" less than 64K, then ("n"-"lb")
// |  |  shall be encoded as a non-negative-binary-integer using the minimum number of bits
// |  |  necessary to encode "range" (="ub"-"lb"+1), unless "range" is 1, in which case there
// |  |  is no length encoding.
// |- 11.9.4.2 Otherwise "n" is encoded as specified below (same as the ALIGNED variant's
// |  |  octet-based length forms, since they are not octet-alignment-sensitive):
// |  |  a) "n" ≤ 127: one octet, bit 8 = 0, bits 7..1 = "n".
// |  |  b) 127 < "n" < 16K: two octets, bit 8 of octet 1 = 1, bit 7 = 0, remaining 14 bits = "n".
// |  |  c) "n" ≥ 16K: one octet, bits 8,7 = 1,1, bits 6..1 = fragment count "m" (1 to 4), each
// |  |     unit of "m" worth 16K items of the associated field, followed by that many items,
// |  |     followed by another length determinant for what remains.

func (e *Encoder) EncodeLengthDeterminant(n uint64, lb *uint64, ub *uint64) (uint64, error) {
	if ub != nil && lb != nil && *ub < MAX_CONSTRAINED_LENGTH {
		if err := e.EncodeConstrainedWholeNumber(int64(*lb), int64(*ub), int64(n)); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return e.EncodeUnconstrainedLength(n)
}

func (e *Encoder) EncodeUnconstrainedLength(n uint64) (uint64, error) {
	if n <= 127 {
		return 0, e.buf.WriteBits(8, n)
	}
	if n < FRAGMENT_SIZE {
		value := (uint64(1) << 15) | n
		return 0, e.buf.WriteBits(16, value)
	}
	m := CalculateFragmentSize(n)
	k := m / FRAGMENT_SIZE
	value := (uint64(3) << 6) | k
	if err := e.buf.WriteBits(8, value); err != nil {
		return 0, err
	}
	return n - m, nil
}

func (e *Encoder) EncodeNormallySmallLength(n uint64) (uint64, error) {
	if n <= 64 {
		if err := e.buf.WriteBits(1, 0); err != nil {
			return 0, err
		}
		if err := e.buf.WriteBits(6, n-1); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if err := e.buf.WriteBits(1, 1); err != nil {
		return 0, err
	}
	return e.EncodeUnconstrainedLength(n)
}

func CalculateFragmentSize(n uint64) uint64 {
	switch {
	case n >= 4*FRAGMENT_SIZE:
		return 4 * FRAGMENT_SIZE
	case n >= 3*FRAGMENT_SIZE:
		return 3 * FRAGMENT_SIZE
	case n >= 2*FRAGMENT_SIZE:
		return 2 * FRAGMENT_SIZE
	default:
		return FRAGMENT_SIZE
	}
}

// 12 Encoding the boolean type
// |- 12.1 The bit shall be set to 1 for TRUE and 0 for FALSE.
// |- 12.2 The bit-field shall be appended to the field-list with no length determinant.

func (e *Encoder) EncodeBoolean(value bool) error {
	if value {
		return e.buf.WriteBits(1, 1)
	}
	return e.buf.WriteBits(1, 0)
}

// 13 Encoding the integer type
// |- 13.1 If an extension marker is present, a single bit is added: 1 if the value lies
// |  |  outside the extension root (then encoded as an unconstrained whole number), 0
// |  |  otherwise (then encoded as if no extension marker were present).
// |- 13.2.1 Single-value constraint: no addition to the field-list.
// |- 13.2.2 Constrained whole number: 11.5.
// |- 13.2.3 Semi-constrained whole number: 11.7.
// |- 13.2.4 No applicable bound: unconstrained whole number, 11.8.

func (e *Encoder) EncodeInteger(value int64, lb *int64, ub *int64, extensible bool) error {
	if extensible {
		extended := (lb != nil && value < *lb) || (ub != nil && value > *ub)
		if extended {
			if err := e.buf.WriteBits(1, 1); err != nil {
				return err
			}
			return e.EncodeUnconstrainedWholeNumber(value)
		}
		if err := e.buf.WriteBits(1, 0); err != nil {
			return err
		}
	}

	switch {
	case lb != nil && ub != nil && *lb == *ub:
		return nil
	case lb != nil && ub != nil:
		return e.EncodeConstrainedWholeNumber(*lb, *ub, value)
	case lb != nil:
		return e.EncodeSemiConstrainedWholeNumber(*lb, value)
	default:
		return e.EncodeUnconstrainedWholeNumber(value)
	}
}

// 14 Encoding the enumerated type
// |- 14.1 Root enumerations are indexed from 0 in ascending declared order; extension
// |  |  additions are indexed from 0 in ascending declared order, separately.
// |- 14.2 Without an extension marker, the index is encoded as a constrained integer with
// |  |  lb=0, ub=(largest root index).
// |- 14.3 With an extension marker, a single bit (1 = extension value, 0 = root value) is
// |  |  added; an extension value's index is then encoded as a normally small non-negative
// |  |  whole number (11.6).

func (e *Encoder) EncodeEnumerated(value uint64, count uint64, extensible bool) error {
	if extensible {
		if value >= count {
			if err := e.buf.WriteBits(1, 1); err != nil {
				return err
			}
			return e.EncodeNormallySmallNonNegativeWholeNumber(value - count)
		}
		if err := e.buf.WriteBits(1, 0); err != nil {
			return err
		}
	}
	return e.EncodeConstrainedWholeNumber(0, int64(count-1), int64(value))
}

// 16 Encoding the bitstring type
// |- 16.6 If extensible, a single bit indicates whether the length lies in the extension
// |  |  root; if not, the length and value are encoded as an unbounded (lb=0) bitstring.
// |- 16.8 If constrained to zero length, no encoding.
// |- 16.9/16.10 (UNALIGNED variant) If the length is fixed and below 64K bits, the value is
// |  |  placed in a bit-field with no length determinant.
// |- 16.11 Otherwise, the value is placed in a bit-field of "n" bits preceded by a length
// |  |  determinant equal to "n" (constrained if "ub" is set and below 64K, semi-constrained
// |  |  otherwise), with fragmentation above 16K/32K/48K/64K bits.

func (e *Encoder) writeBits(data []byte, count uint) error {
	if count == 0 {
		return nil
	}
	num := count / 8
	if num > 0 {
		if err := e.buf.WriteOctets(data[:num]); err != nil {
			return err
		}
	}
	remaining := count % 8
	if remaining > 0 {
		last := data[num]
		value := uint64(last >> (8 - remaining))
		return e.buf.WriteBits(uint8(remaining), value)
	}
	return nil
}

func (e *Encoder) EncodeBitString(value *asn1.BitString, lb *uint64, ub *uint64, extensible bool) error {
	if extensible {
		length := uint64(value.BitLength)
		extended := (lb != nil && length < *lb) || (ub != nil && length > *ub)
		if extended {
			if err := e.buf.WriteBits(1, 1); err != nil {
				return err
			}
			zero := uint64(0)
			return e.EncodeBitStringFragments(value.Bytes, length, &zero, nil)
		}
		if err := e.buf.WriteBits(1, 0); err != nil {
			return err
		}
	}

	if ub != nil && *ub == 0 {
		return nil
	}
	if lb != nil && ub != nil && *lb == *ub && *ub <= 65535 {
		return e.writeBits(value.Bytes, uint(*ub))
	}
	return e.EncodeBitStringFragments(value.Bytes, uint64(value.BitLength), lb, ub)
}

func (e *Encoder) EncodeBitStringFragments(value []byte, count uint64, lb *uint64, ub *uint64) error {
	if count == 0 {
		_, err := e.EncodeLengthDeterminant(0, lb, ub)
		return err
	}

	offset := uint64(0)
	for offset < count {
		remaining := count - offset
		pending, err := e.EncodeLengthDeterminant(remaining, lb, ub)
		if err != nil {
			return err
		}

		var length uint64
		if pending == 0 {
			length = remaining
		} else {
			length = remaining - pending
		}

		nbytes := offset / 8
		if err := e.writeBits(value[nbytes:], uint(length)); err != nil {
			return err
		}
		offset += length

		if pending == 0 {
			// A last piece sent in the fragment form is closed by a
			// zero-length terminating fragment (11.9.4.2(c)).
			if length >= FRAGMENT_SIZE && length%FRAGMENT_SIZE == 0 && (ub == nil || *ub >= MAX_CONSTRAINED_LENGTH) {
				_, err := e.EncodeLengthDeterminant(0, lb, ub)
				return err
			}
			break
		}
	}
	return nil
}

// 17 Encoding the octetstring type
// |- 17.5 If constrained to zero length, no encoding.
// |- 17.6/17.7 If fixed length "ub"=="lb" and below 64K, the value is placed in a bit-field
// |  |  of "ub" octets with no length determinant.
// |- 17.8 Otherwise, the value is placed in a bit-field of "n" octets preceded by a length
// |  |  determinant equal to "n" (constrained if "ub" is set and below 64K, semi-constrained
// |  |  otherwise), with fragmentation above 16K/32K/48K/64K octets.

func (e *Encoder) EncodeOctetString(value []byte, lb *uint64, ub *uint64, extensible bool) error {
	n := uint64(len(value))

	if extensible {
		extended := (lb != nil && n < *lb) || (ub != nil && n > *ub)
		if extended {
			if err := e.buf.WriteBits(1, 1); err != nil {
				return err
			}
			zero := uint64(0)
			return e.EncodeOctetStringFragments(value, &zero, nil)
		}
		if err := e.buf.WriteBits(1, 0); err != nil {
			return err
		}
	}

	if ub != nil && *ub == 0 {
		return nil
	}
	if lb != nil && ub != nil && *lb == *ub && *ub < 65536 {
		return e.buf.WriteOctets(value)
	}
	return e.EncodeOctetStringFragments(value, lb, ub)
}

func (e *Encoder) EncodeOctetStringFragments(value []byte, lb *uint64, ub *uint64) error {
	n := uint64(len(value))
	if n == 0 {
		_, err := e.EncodeLengthDeterminant(0, lb, ub)
		return err
	}

	offset := uint64(0)
	for offset < n {
		remaining := n - offset
		pending, err := e.EncodeLengthDeterminant(remaining, lb, ub)
		if err != nil {
			return err
		}

		var length uint64
		if pending == 0 {
			length = remaining
		} else {
			length = remaining - pending
		}

		if err := e.buf.WriteOctets(value[offset : offset+length]); err != nil {
			return err
		}
		offset += length

		if pending == 0 {
			// See EncodeBitStringFragments: a last piece sent in the
			// fragment form is closed by a zero-length fragment.
			if length >= FRAGMENT_SIZE && length%FRAGMENT_SIZE == 0 && (ub == nil || *ub >= MAX_CONSTRAINED_LENGTH) {
				_, err := e.EncodeLengthDeterminant(0, lb, ub)
				return err
			}
			break
		}
	}
	return nil
}

// 18 Encoding the null type
// |- Null values never contribute to the octets of an encoding.

func (e *Encoder) EncodeNull() error {
	return nil
}

// 24 Encoding the object identifier type
// |- The contents octets of the BER encoding (tag and length stripped) are placed in a
// |  |  bit-field of "n" octets preceded by a length determinant equal to "n" as a
// |  |  semi-constrained whole number octet count.

func (e *Encoder) EncodeObjectIdentifier(oid asn1.ObjectIdentifier) error {
	data, err := asn1.Marshal(oid)
	if err != nil {
		return err
	}
	if data[1]&0x80 == 0 {
		data = data[2:]
	} else {
		data = data[2+int(data[1]&0x7f):]
	}
	return e.EncodeOctetString(data, nil, nil, false)
}

// 30 Encoding the restricted character string types (known-multiplier)
// |- 30.4.2 Each character is encoded in "b" bits, the smallest number of bits able to
// |  |  represent (N-1) as a non-negative-binary-integer, where N is the size of the
// |  |  effective permitted alphabet.
// |- 30.4.3/30.4.4 Characters are mapped to the index of their position in the alphabet
// |  |  (ascending canonical order) when the alphabet's natural code values do not already
// |  |  fit in "b" bits unchanged; an alphabet given explicitly always uses this remapping.
// |- 30.4.6/30.4.7 Length handling mirrors bitstring/octetstring: no length determinant for
// |  |  a fixed-length string, otherwise a length determinant counting characters, with
// |  |  fragmentation above 16K/32K/48K/64K characters.

// EncodeString encodes a restricted character string. With an explicit
// alphabet, each rune is mapped to its position in alphabet and packed into
// the minimum number of bits per clause 30.4. With no alphabet and
// charWidth > 0 (IA5String, VisibleString), each code point is packed
// directly into charWidth bits per clause 30.5's canonical unaligned width
// (7 bits, the fewest bits that index the type's 128-character set).
// With no alphabet and charWidth == 0 (UTF8String), the string is treated
// as an OCTET STRING of its UTF-8 bytes per clause 31.2.
func (e *Encoder) EncodeString(value string, lb *uint64, ub *uint64, extensible bool, alphabet []rune, charWidth int) error {
	if alphabet == nil && charWidth == 0 {
		return e.EncodeOctetString([]byte(value), lb, ub, extensible)
	}

	runes := []rune(value)
	var index map[rune]int
	width := charWidth
	if alphabet != nil {
		index = make(map[rune]int, len(alphabet))
		for i, r := range alphabet {
			index[r] = i
		}
		width = BitsNonNegativeBinaryInteger(uint64(len(alphabet) - 1))
	}

	n := uint64(len(runes))
	if extensible {
		extended := (lb != nil && n < *lb) || (ub != nil && n > *ub)
		if extended {
			if err := e.buf.WriteBits(1, 1); err != nil {
				return err
			}
			zero := uint64(0)
			if _, err := e.EncodeLengthDeterminant(n, &zero, nil); err != nil {
				return err
			}
			return e.writeAlphabetChars(runes, index, width)
		}
		if err := e.buf.WriteBits(1, 0); err != nil {
			return err
		}
	}

	if ub != nil && *ub == 0 {
		return nil
	}
	if lb == nil || ub == nil || *lb != *ub {
		if _, err := e.EncodeLengthDeterminant(n, lb, ub); err != nil {
			return err
		}
	}
	return e.writeAlphabetChars(runes, index, width)
}

// writeAlphabetChars packs runes at width bits each. With index non-nil,
// each rune is replaced by its alphabet position; with index nil, the code
// point itself is packed (the no-explicit-alphabet IA5String/VisibleString
// case).
func (e *Encoder) writeAlphabetChars(runes []rune, index map[rune]int, width int) error {
	for _, r := range runes {
		v := uint64(r)
		if index != nil {
			idx, ok := index[r]
			if !ok {
				return ErrCharacterNotInAlphabet
			}
			v = uint64(idx)
		}
		if err := e.buf.WriteBits(uint8(width), v); err != nil {
			return err
		}
	}
	return nil
}
