package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thebagchi/go-uper/lib/value"
)

func ptr64(v uint64) *uint64 { return &v }
func ptrI(v int64) *int64    { return &v }

func TestNewIntegerValidatesBounds(t *testing.T) {
	_, err := NewInteger(ptrI(10), ptrI(5), false)
	require.Error(t, err)

	n, err := NewInteger(ptrI(0), ptrI(127), false)
	require.NoError(t, err)
	require.Equal(t, "INTEGER", n.Tag())
}

func TestNewEnumeratedRejectsEmptyAndDuplicates(t *testing.T) {
	_, err := NewEnumerated(nil, nil, false)
	require.Error(t, err)

	_, err = NewEnumerated([]string{"red", "red"}, nil, false)
	require.Error(t, err)

	_, err = NewEnumerated([]string{"red"}, []string{"red"}, true)
	require.Error(t, err)

	n, err := NewEnumerated([]string{"red", "green"}, []string{"blue"}, true)
	require.NoError(t, err)
	require.Equal(t, "ENUMERATED", n.Tag())
}

func TestSizeConstraintRejectsFixedWithMinMax(t *testing.T) {
	_, err := NewOctetString(ptr64(4), ptr64(1), nil, false)
	require.Error(t, err)

	_, err = NewOctetString(nil, ptr64(10), ptr64(1), false)
	require.Error(t, err)

	n, err := NewOctetString(ptr64(4), nil, nil, false)
	require.NoError(t, err)
	require.Equal(t, "OCTET_STRING", n.Tag())
}

func TestNewSequenceRejectsDuplicateNamesAndMisplacedDefault(t *testing.T) {
	boolNode := NewBoolean()
	_, err := NewSequence([]Field{
		{Name: "a", Schema: boolNode},
		{Name: "a", Schema: boolNode},
	}, nil)
	require.Error(t, err)

	_, err = NewSequence([]Field{
		{Name: "a", Schema: boolNode, Default: value.Bool(true)},
	}, nil)
	require.Error(t, err)

	seq, err := NewSequence([]Field{
		{Name: "a", Schema: boolNode, Optional: true, Default: value.Bool(true)},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "SEQUENCE", seq.Tag())
}

func TestNewSequenceOfRequiresItem(t *testing.T) {
	_, err := NewSequenceOf(nil, nil, nil, nil, false)
	require.Error(t, err)

	n, err := NewSequenceOf(NewBoolean(), nil, ptr64(1), ptr64(10), false)
	require.NoError(t, err)
	require.Equal(t, "SEQUENCE_OF", n.Tag())
}

func TestNewChoiceRequiresAlternativesAndUniqueNames(t *testing.T) {
	_, err := NewChoice(nil, nil)
	require.Error(t, err)

	_, err = NewChoice([]Alternative{
		{Name: "x", Schema: NewBoolean()},
		{Name: "x", Schema: NewNull()},
	}, nil)
	require.Error(t, err)

	c, err := NewChoice([]Alternative{{Name: "x", Schema: NewBoolean()}}, nil)
	require.NoError(t, err)
	require.Equal(t, "CHOICE", c.Tag())
}

func TestJSONRoundTripSimpleNodes(t *testing.T) {
	cases := []Node{
		NewBoolean(),
		NewNull(),
		NewObjectIdentifier(),
		NewReference("ViaStation"),
	}
	for _, n := range cases {
		data, err := json.Marshal(n)
		require.NoError(t, err)
		got, err := UnmarshalNode(data)
		require.NoError(t, err)
		eq, err := Equal(n, got)
		require.NoError(t, err)
		require.True(t, eq)
	}
}

func TestJSONRoundTripInteger(t *testing.T) {
	n, err := NewInteger(ptrI(0), ptrI(100), true)
	require.NoError(t, err)

	data, err := json.Marshal(n)
	require.NoError(t, err)

	got, err := UnmarshalNode(data)
	require.NoError(t, err)

	eq, err := Equal(n, got)
	require.NoError(t, err)
	require.True(t, eq)
}

func TestJSONRoundTripSequenceWithNestedFields(t *testing.T) {
	field, err := NewInteger(ptrI(0), ptrI(9), false)
	require.NoError(t, err)

	seq, err := NewSequence([]Field{
		{Name: "id", Schema: field},
		{Name: "active", Schema: NewBoolean(), Optional: true, Default: value.Bool(true)},
	}, nil)
	require.NoError(t, err)

	data, err := json.Marshal(seq)
	require.NoError(t, err)

	got, err := UnmarshalNode(data)
	require.NoError(t, err)

	gotSeq, ok := got.(*Sequence)
	require.True(t, ok)
	require.Len(t, gotSeq.Fields, 2)
	require.Equal(t, "id", gotSeq.Fields[0].Name)
	require.Equal(t, "active", gotSeq.Fields[1].Name)
	require.True(t, gotSeq.Fields[1].Optional)
	require.NotNil(t, gotSeq.Fields[1].Default)
}

func TestJSONRoundTripChoiceAndSequenceOf(t *testing.T) {
	choice, err := NewChoice([]Alternative{
		{Name: "asNumber", Schema: NewBoolean()},
	}, []Alternative{
		{Name: "asText", Schema: NewNull()},
	})
	require.NoError(t, err)

	data, err := json.Marshal(choice)
	require.NoError(t, err)
	got, err := UnmarshalNode(data)
	require.NoError(t, err)
	eq, err := Equal(choice, got)
	require.NoError(t, err)
	require.True(t, eq)

	seqOf, err := NewSequenceOf(NewBoolean(), nil, ptr64(0), ptr64(5), false)
	require.NoError(t, err)
	data, err = json.Marshal(seqOf)
	require.NoError(t, err)
	got, err = UnmarshalNode(data)
	require.NoError(t, err)
	eq, err = Equal(seqOf, got)
	require.NoError(t, err)
	require.True(t, eq)
}

func TestHashIsStableAndDiscriminating(t *testing.T) {
	a, err := NewInteger(ptrI(0), ptrI(100), false)
	require.NoError(t, err)
	b, err := NewInteger(ptrI(0), ptrI(100), false)
	require.NoError(t, err)
	c, err := NewInteger(ptrI(0), ptrI(200), false)
	require.NoError(t, err)

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	hc, err := Hash(c)
	require.NoError(t, err)

	require.Equal(t, ha, hb)
	require.NotEqual(t, ha, hc)
}

func TestRegistryResolveAndNames(t *testing.T) {
	reg := NewRegistry()
	reg["ViaStation"] = NewBoolean()

	n, ok := reg.Resolve("ViaStation")
	require.True(t, ok)
	require.Equal(t, "BOOLEAN", n.Tag())

	_, ok = reg.Resolve("Missing")
	require.False(t, ok)

	require.Equal(t, []string{"ViaStation"}, reg.Names())
}
