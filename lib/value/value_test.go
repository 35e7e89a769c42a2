package value

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequencePreservesInsertionOrderAndLookup(t *testing.T) {
	s := NewSequence()
	s.Set("id", NewInt(42))
	s.Set("active", Bool(true))

	require.Equal(t, []string{"id", "active"}, s.Names())
	require.Equal(t, 2, s.Len())

	v, ok := s.Get("active")
	require.True(t, ok)
	require.Equal(t, Bool(true), v)

	_, ok = s.Get("missing")
	require.False(t, ok)
}

func TestSequenceSetOverwritesInPlace(t *testing.T) {
	s := NewSequence()
	s.Set("x", NewInt(1))
	s.Set("x", NewInt(2))

	require.Equal(t, []string{"x"}, s.Names())
	v, _ := s.Get("x")
	require.Equal(t, int64(2), v.(Int).Int64())
}

func TestObjectIdentifierString(t *testing.T) {
	oid := ObjectIdentifier{1, 2, 840, 113549}
	require.Equal(t, "1.2.840.113549", oid.String())
}

func TestChoiceHoldsSingleAlternative(t *testing.T) {
	c := Choice{Name: "asText", Value: CharString("hi")}
	require.Equal(t, "asText", c.Name)
	require.Equal(t, CharString("hi"), c.Value)
}

func TestEqualScalars(t *testing.T) {
	require.True(t, Equal(Bool(true), Bool(true)))
	require.False(t, Equal(Bool(true), Bool(false)))
	require.True(t, Equal(Null{}, Null{}))
	require.True(t, Equal(NewInt(42), NewInt(42)))
	require.False(t, Equal(NewInt(42), NewInt(43)))
	require.True(t, Equal(CharString("hi"), CharString("hi")))
	require.False(t, Equal(CharString("hi"), CharString("bye")))
	require.True(t, Equal(Enumerated("red"), Enumerated("red")))
	require.False(t, Equal(Bool(true), NewInt(1)))
}

func TestEqualCompositeAndOID(t *testing.T) {
	require.True(t, Equal(OctetString{1, 2, 3}, OctetString{1, 2, 3}))
	require.False(t, Equal(OctetString{1, 2, 3}, OctetString{1, 2}))
	require.True(t, Equal(ObjectIdentifier{1, 2, 840}, ObjectIdentifier{1, 2, 840}))
	require.True(t, Equal(SequenceOf{NewInt(1), NewInt(2)}, SequenceOf{NewInt(1), NewInt(2)}))
	require.False(t, Equal(SequenceOf{NewInt(1)}, SequenceOf{NewInt(1), NewInt(2)}))

	a := NewSequence()
	a.Set("id", NewInt(1))
	b := NewSequence()
	b.Set("id", NewInt(1))
	require.True(t, Equal(a, b))
	b.Set("id", NewInt(2))
	require.False(t, Equal(a, b))

	require.True(t, Equal(Choice{Name: "x", Value: Bool(true)}, Choice{Name: "x", Value: Bool(true)}))
	require.False(t, Equal(Choice{Name: "x", Value: Bool(true)}, Choice{Name: "y", Value: Bool(true)}))
}
