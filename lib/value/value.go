// Package value defines the canonical in-memory representation of decoded
// ASN.1 values: a closed, tagged-union Value interface with one concrete
// type per schema kind, plus the RawBits passthrough sentinel that lets a
// caller splice pre-encoded bits into an otherwise schema-driven encode.
package value

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Value is implemented by every concrete value kind this package defines.
// It is a closed set — callers type-switch on the concrete type, never on
// behavior, matching the discriminated-union shape used throughout this
// module.
type Value interface {
	isValue()
}

// Bool is a BOOLEAN value.
type Bool bool

func (Bool) isValue() {}

// Null is the single NULL value.
type Null struct{}

func (Null) isValue() {}

// Int is an arbitrary-precision INTEGER value.
type Int struct {
	*big.Int
}

func (Int) isValue() {}

// NewInt wraps an int64 as an Int.
func NewInt(v int64) Int {
	return Int{big.NewInt(v)}
}

// BitString is a BIT STRING value: bytes plus the exact number of
// significant bits (which need not be a multiple of 8).
type BitString struct {
	Bytes     []byte
	BitLength int
}

func (BitString) isValue() {}

// OctetString is an OCTET STRING value.
type OctetString []byte

func (OctetString) isValue() {}

// CharString is a restricted character string value (IA5String,
// VisibleString, UTF8String), held as a Go string of logical code points.
type CharString string

func (CharString) isValue() {}

// ObjectIdentifier is a sequence of unsigned arc numbers.
type ObjectIdentifier []uint64

func (ObjectIdentifier) isValue() {}

// String renders the OID in dotted-decimal text form, e.g. "1.2.840.113549".
func (oid ObjectIdentifier) String() string {
	parts := make([]string, len(oid))
	for i, arc := range oid {
		parts[i] = strconv.FormatUint(arc, 10)
	}
	return strings.Join(parts, ".")
}

// Enumerated is the selected value's declared name.
type Enumerated string

func (Enumerated) isValue() {}

// Sequence is an ordered mapping from field name to value. Order reflects
// insertion, but codec always looks fields up by name against the schema's
// own field order — Sequence's order is informational, not authoritative.
type Sequence struct {
	names  []string
	fields map[string]Value
}

func (*Sequence) isValue() {}

// NewSequence creates an empty Sequence.
func NewSequence() *Sequence {
	return &Sequence{fields: make(map[string]Value)}
}

// Set assigns a field, appending it to insertion order the first time it is
// set and overwriting in place on subsequent calls.
func (s *Sequence) Set(name string, v Value) *Sequence {
	if _, ok := s.fields[name]; !ok {
		s.names = append(s.names, name)
	}
	s.fields[name] = v
	return s
}

// Get returns the field's value and whether it is present.
func (s *Sequence) Get(name string) (Value, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// Names returns field names in insertion order.
func (s *Sequence) Names() []string {
	return append([]string(nil), s.names...)
}

// Len reports the number of fields present.
func (s *Sequence) Len() int {
	return len(s.names)
}

// SequenceOf is an ordered list of homogeneous values.
type SequenceOf []Value

func (SequenceOf) isValue() {}

// Choice is a singleton mapping from the selected alternative's name to its
// value.
type Choice struct {
	Name  string
	Value Value
}

func (Choice) isValue() {}

// RawBits is the raw-bytes passthrough sentinel (§4.7): a pre-encoded bit
// fragment that, when encountered during encode, is written verbatim
// instead of invoking the schema-kind-specific codec for that slot. It is
// never produced by Decode.
type RawBits struct {
	Bytes []byte
	BitLen uint64
}

func (RawBits) isValue() {}

// String is a debug rendering, not a wire format.
func (v RawBits) String() string {
	return fmt.Sprintf("RawBits{%d bits}", v.BitLen)
}
