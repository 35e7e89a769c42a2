package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thebagchi/go-uper/lib/schema"
	"github.com/thebagchi/go-uper/lib/value"
)

func ptrI(v int64) *int64   { return &v }
func ptr64(v uint64) *uint64 { return &v }

func TestEncodeDecodeBooleanRoundTrip(t *testing.T) {
	c, err := Build(schema.NewBoolean(), nil)
	require.NoError(t, err)

	b, err := c.Encode(value.Bool(true))
	require.NoError(t, err)
	require.Equal(t, []byte{0x80}, b)

	v, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, value.Bool(true), v)
}

func TestEncodeDecodeTwoFieldSequence(t *testing.T) {
	idField, err := schema.NewInteger(ptrI(0), ptrI(255), false)
	require.NoError(t, err)
	seqSchema, err := schema.NewSequence([]schema.Field{
		{Name: "id", Schema: idField},
		{Name: "active", Schema: schema.NewBoolean()},
	}, nil)
	require.NoError(t, err)

	c, err := Build(seqSchema, nil)
	require.NoError(t, err)

	sv := value.NewSequence()
	sv.Set("id", value.NewInt(42))
	sv.Set("active", value.Bool(true))

	b, err := c.Encode(sv)
	require.NoError(t, err)
	require.Equal(t, []byte{0x2A, 0x80}, b)

	decoded, err := c.Decode(b)
	require.NoError(t, err)
	ds, ok := decoded.(*value.Sequence)
	require.True(t, ok)
	got, _ := ds.Get("id")
	require.Equal(t, int64(42), got.(value.Int).Int64())
	active, _ := ds.Get("active")
	require.Equal(t, value.Bool(true), active)
}

func TestSequenceOptionalFieldWithDefault(t *testing.T) {
	boolNode := schema.NewBoolean()
	seqSchema, err := schema.NewSequence([]schema.Field{
		{Name: "mandatory", Schema: boolNode},
		{Name: "flag", Schema: boolNode, Optional: true, Default: value.Bool(false)},
	}, nil)
	require.NoError(t, err)

	c, err := Build(seqSchema, nil)
	require.NoError(t, err)

	sv := value.NewSequence()
	sv.Set("mandatory", value.Bool(true))

	b, err := c.Encode(sv)
	require.NoError(t, err)

	decoded, err := c.Decode(b)
	require.NoError(t, err)
	ds := decoded.(*value.Sequence)
	flag, ok := ds.Get("flag")
	require.True(t, ok)
	require.Equal(t, value.Bool(false), flag)
}

func TestSequenceFieldEqualToDefaultIsOmittedFromWire(t *testing.T) {
	boolNode := schema.NewBoolean()
	seqSchema, err := schema.NewSequence([]schema.Field{
		{Name: "mandatory", Schema: boolNode},
		{Name: "flag", Schema: boolNode, Optional: true, Default: value.Bool(false)},
	}, nil)
	require.NoError(t, err)

	c, err := Build(seqSchema, nil)
	require.NoError(t, err)

	absent := value.NewSequence()
	absent.Set("mandatory", value.Bool(true))

	atDefault := value.NewSequence()
	atDefault.Set("mandatory", value.Bool(true))
	atDefault.Set("flag", value.Bool(false))

	bAbsent, err := c.Encode(absent)
	require.NoError(t, err)
	bAtDefault, err := c.Encode(atDefault)
	require.NoError(t, err)

	// A present-but-default-valued field must be suppressed identically to
	// an absent field, per the canonical-encoding requirement.
	require.Equal(t, bAbsent, bAtDefault)

	nonDefault := value.NewSequence()
	nonDefault.Set("mandatory", value.Bool(true))
	nonDefault.Set("flag", value.Bool(true))
	bNonDefault, err := c.Encode(nonDefault)
	require.NoError(t, err)
	require.NotEqual(t, bAbsent, bNonDefault)

	decoded, err := c.Decode(bAtDefault)
	require.NoError(t, err)
	ds := decoded.(*value.Sequence)
	flag, ok := ds.Get("flag")
	require.True(t, ok)
	require.Equal(t, value.Bool(false), flag)
}

func TestSequenceExtensionFieldRoundTrip(t *testing.T) {
	boolNode := schema.NewBoolean()
	strNode, err := schema.NewCharString(schema.IA5String, nil, ptr64(0), ptr64(20), nil, false)
	require.NoError(t, err)

	seqSchema, err := schema.NewSequence(
		[]schema.Field{{Name: "active", Schema: boolNode}},
		[]schema.Field{{Name: "note", Schema: strNode}},
	)
	require.NoError(t, err)

	c, err := Build(seqSchema, nil)
	require.NoError(t, err)

	sv := value.NewSequence()
	sv.Set("active", value.Bool(true))
	sv.Set("note", value.CharString("hello"))

	b, err := c.Encode(sv)
	require.NoError(t, err)

	decoded, err := c.Decode(b)
	require.NoError(t, err)
	ds := decoded.(*value.Sequence)
	note, ok := ds.Get("note")
	require.True(t, ok)
	require.Equal(t, value.CharString("hello"), note)
}

func TestIA5StringEncodesSevenBitsPerChar(t *testing.T) {
	strSchema, err := schema.NewCharString(schema.IA5String, ptr64(2), nil, nil, nil, false)
	require.NoError(t, err)
	c, err := Build(strSchema, nil)
	require.NoError(t, err)

	b, err := c.Encode(value.CharString("ab"))
	require.NoError(t, err)
	// 'a'=0x61=1100001, 'b'=0x62=1100010 packed at 7 bits each, not 8 — an
	// octet-per-char encoding here would produce {0x61, 0x62} instead.
	require.Equal(t, []byte{0xC3, 0x88}, b)

	v, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, value.CharString("ab"), v)
}

func TestUTF8StringEncodesOctetPerByte(t *testing.T) {
	strSchema, err := schema.NewCharString(schema.UTF8String, ptr64(2), nil, nil, nil, false)
	require.NoError(t, err)
	c, err := Build(strSchema, nil)
	require.NoError(t, err)

	b, err := c.Encode(value.CharString("ab"))
	require.NoError(t, err)
	require.Equal(t, []byte{'a', 'b'}, b)
}

func TestVisibleStringRejectsCharacterOutsidePrintableRange(t *testing.T) {
	strSchema, err := schema.NewCharString(schema.VisibleString, nil, ptr64(0), ptr64(10), nil, false)
	require.NoError(t, err)
	c, err := Build(strSchema, nil)
	require.NoError(t, err)

	_, err = c.Encode(value.CharString("bad\ttab"))
	require.Error(t, err)
}

func TestExtensibleIntegerRoundTripRootAndExtension(t *testing.T) {
	intSchema, err := schema.NewInteger(ptrI(0), ptrI(100), true)
	require.NoError(t, err)
	c, err := Build(intSchema, nil)
	require.NoError(t, err)

	// Within [0, 100]: encodes on the root path.
	b, err := c.Encode(value.NewInt(42))
	require.NoError(t, err)
	v, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, int64(42), v.(value.Int).Int64())

	// Outside [0, 100]: the extensible path takes over, still round-trips.
	b, err = c.Encode(value.NewInt(-5))
	require.NoError(t, err)
	v, err = c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, int64(-5), v.(value.Int).Int64())

	b, err = c.Encode(value.NewInt(1000))
	require.NoError(t, err)
	v, err = c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, int64(1000), v.(value.Int).Int64())
}

func TestEnumeratedRoundTripRootAndExtension(t *testing.T) {
	enumSchema, err := schema.NewEnumerated([]string{"red", "green"}, []string{"blue"}, true)
	require.NoError(t, err)
	c, err := Build(enumSchema, nil)
	require.NoError(t, err)

	for _, name := range []string{"red", "green", "blue"} {
		b, err := c.Encode(value.Enumerated(name))
		require.NoError(t, err)
		v, err := c.Decode(b)
		require.NoError(t, err)
		require.Equal(t, value.Enumerated(name), v)
	}
}

func TestSequenceOfIntegerRoundTrip(t *testing.T) {
	itemSchema, err := schema.NewInteger(ptrI(0), ptrI(255), false)
	require.NoError(t, err)
	seqOfSchema, err := schema.NewSequenceOf(itemSchema, nil, ptr64(0), ptr64(10), false)
	require.NoError(t, err)

	c, err := Build(seqOfSchema, nil)
	require.NoError(t, err)

	sv := value.SequenceOf{value.NewInt(1), value.NewInt(2), value.NewInt(3)}
	b, err := c.Encode(sv)
	require.NoError(t, err)

	decoded, err := c.Decode(b)
	require.NoError(t, err)
	got := decoded.(value.SequenceOf)
	require.Len(t, got, 3)
	require.Equal(t, int64(1), got[0].(value.Int).Int64())
	require.Equal(t, int64(3), got[2].(value.Int).Int64())
}

func TestChoiceRoundTripRootAndExtension(t *testing.T) {
	boolNode := schema.NewBoolean()
	intNode, err := schema.NewInteger(ptrI(0), ptrI(100), false)
	require.NoError(t, err)

	choiceSchema, err := schema.NewChoice(
		[]schema.Alternative{{Name: "asFlag", Schema: boolNode}},
		[]schema.Alternative{{Name: "asNumber", Schema: intNode}},
	)
	require.NoError(t, err)

	c, err := Build(choiceSchema, nil)
	require.NoError(t, err)

	b, err := c.Encode(value.Choice{Name: "asFlag", Value: value.Bool(true)})
	require.NoError(t, err)
	decoded, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, value.Choice{Name: "asFlag", Value: value.Bool(true)}, decoded)

	b, err = c.Encode(value.Choice{Name: "asNumber", Value: value.NewInt(7)})
	require.NoError(t, err)
	decoded, err = c.Decode(b)
	require.NoError(t, err)
	got := decoded.(value.Choice)
	require.Equal(t, "asNumber", got.Name)
	require.Equal(t, int64(7), got.Value.(value.Int).Int64())
}

func TestDecodeWithMetadataRecordsBitRanges(t *testing.T) {
	idField, err := schema.NewInteger(ptrI(0), ptrI(100), false)
	require.NoError(t, err)
	seqSchema, err := schema.NewSequence([]schema.Field{
		{Name: "id", Schema: idField},
		{Name: "active", Schema: schema.NewBoolean()},
	}, nil)
	require.NoError(t, err)

	c, err := Build(seqSchema, nil)
	require.NoError(t, err)

	sv := value.NewSequence()
	sv.Set("id", value.NewInt(42))
	sv.Set("active", value.Bool(true))

	b, err := c.Encode(sv)
	require.NoError(t, err)

	node, err := c.DecodeWithMetadata(b)
	require.NoError(t, err)
	require.Equal(t, uint64(0), node.BitOffset)
	require.Equal(t, uint64(8), node.BitLength)

	children, ok := node.Children.(map[string]*DecodedNode)
	require.True(t, ok)
	require.Equal(t, uint64(0), children["id"].BitOffset)
	require.Equal(t, uint64(7), children["id"].BitLength)
	require.Equal(t, uint64(7), children["active"].BitOffset)
	require.Equal(t, uint64(1), children["active"].BitLength)

	// 42 in a 7-bit field is 0101010; left-aligned with the trailing bit
	// zero-padded that's 0x54, not the byte-aligned 0x2A from the 8-bit case.
	raw, err := children["id"].RawBytes()
	require.NoError(t, err)
	require.Equal(t, []byte{0x54}, raw)

	require.Equal(t, sv.Names(), []string{"id", "active"})
	require.Equal(t, StripMetadata(node), node.Value)
}

func TestRawBitsPassthroughBypassesSchemaCodec(t *testing.T) {
	idField, err := schema.NewInteger(ptrI(0), ptrI(100), false)
	require.NoError(t, err)
	seqSchema, err := schema.NewSequence([]schema.Field{
		{Name: "id", Schema: idField},
	}, nil)
	require.NoError(t, err)

	c, err := Build(seqSchema, nil)
	require.NoError(t, err)

	normal, err := c.Encode(value.NewSequence().Set("id", value.NewInt(42)))
	require.NoError(t, err)

	// 42 in a 7-bit field (lb=0, ub=100) is 0101010; WriteRawBits expects
	// that payload left-aligned in its byte with the trailing bit
	// zero-padded, i.e. 0x54, mirroring bitbuffer.Buffer.Slice's convention.
	raw, err := c.Encode(value.NewSequence().Set("id", value.RawBits{Bytes: []byte{0x54}, BitLen: 7}))
	require.NoError(t, err)

	require.Equal(t, normal, raw)
}

func TestBuildAllResolvesRecursiveViaStationChain(t *testing.T) {
	stationField, err := schema.NewCharString(schema.IA5String, nil, ptr64(0), ptr64(10), nil, false)
	require.NoError(t, err)

	viaStation, err := schema.NewSequence([]schema.Field{
		{Name: "station", Schema: stationField},
		{Name: "next", Schema: schema.NewReference("ViaStation"), Optional: true},
	}, nil)
	require.NoError(t, err)

	reg := schema.NewRegistry()
	reg["ViaStation"] = viaStation

	codecs, err := BuildAll(context.Background(), reg)
	require.NoError(t, err)
	require.Contains(t, codecs, "ViaStation")

	via := codecs["ViaStation"]

	innermost := value.NewSequence()
	innermost.Set("station", value.CharString("C"))

	middle := value.NewSequence()
	middle.Set("station", value.CharString("B"))
	middle.Set("next", innermost)

	outer := value.NewSequence()
	outer.Set("station", value.CharString("A"))
	outer.Set("next", middle)

	b, err := via.Encode(outer)
	require.NoError(t, err)

	decoded, err := via.Decode(b)
	require.NoError(t, err)

	ds := decoded.(*value.Sequence)
	station, _ := ds.Get("station")
	require.Equal(t, value.CharString("A"), station)

	next, ok := ds.Get("next")
	require.True(t, ok)
	nextSeq := next.(*value.Sequence)
	nextStation, _ := nextSeq.Get("station")
	require.Equal(t, value.CharString("B"), nextStation)

	leaf, ok := nextSeq.Get("next")
	require.True(t, ok)
	leafSeq := leaf.(*value.Sequence)
	leafStation, _ := leafSeq.Get("station")
	require.Equal(t, value.CharString("C"), leafStation)

	_, hasNext := leafSeq.Get("next")
	require.False(t, hasNext)
}

func TestBuildFailsOnUnresolvedReference(t *testing.T) {
	_, err := Build(schema.NewReference("Missing"), schema.NewRegistry())
	require.Error(t, err)
}
