package codec

import (
	"encoding/asn1"
	"fmt"

	"github.com/thebagchi/go-uper/lib/errs"
	"github.com/thebagchi/go-uper/lib/per"
	"github.com/thebagchi/go-uper/lib/schema"
	"github.com/thebagchi/go-uper/lib/value"
)

// leafMeta runs decodeFn (which advances the decoder past exactly one
// value) and brackets it with the bit offsets read off the buffer, giving
// every leaf compiledNode a decodeMeta for free.
func leafMeta(d *per.Decoder, decodeFn func() (value.Value, error)) (*DecodedNode, error) {
	start := d.Buffer().Tell()
	v, err := decodeFn()
	if err != nil {
		return nil, err
	}
	end := d.Buffer().Tell()
	return &DecodedNode{BitOffset: start, BitLength: end - start, Value: v, buf: d.Buffer()}, nil
}

type compiledBoolean struct{}

func (c *compiledBoolean) encode(e *per.Encoder, v value.Value, path string) error {
	b, ok := v.(value.Bool)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected BOOLEAN, got %T", v)), path)
	}
	if err := e.EncodeBoolean(bool(b)); err != nil {
		return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding BOOLEAN", err), path)
	}
	return nil
}

func (c *compiledBoolean) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return leafMeta(d, func() (value.Value, error) {
		b, err := d.DecodeBoolean()
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding BOOLEAN", err), path)
		}
		return value.Bool(b), nil
	})
}

type compiledNull struct{}

func (c *compiledNull) encode(e *per.Encoder, v value.Value, path string) error {
	if _, ok := v.(value.Null); !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected NULL, got %T", v)), path)
	}
	return e.EncodeNull()
}

func (c *compiledNull) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return leafMeta(d, func() (value.Value, error) {
		if err := d.DecodeNull(); err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding NULL", err), path)
		}
		return value.Null{}, nil
	})
}

type compiledInteger struct {
	min, max   *int64
	extensible bool
}

func (c *compiledInteger) encode(e *per.Encoder, v value.Value, path string) error {
	iv, ok := v.(value.Int)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected INTEGER, got %T", v)), path)
	}
	if !iv.IsInt64() {
		return errs.WithPath(errs.New(errs.RangeError, "INTEGER value exceeds 64-bit codec range"), path)
	}
	n := iv.Int64()
	if !c.extensible {
		if c.min != nil && n < *c.min {
			return errs.WithPath(errs.New(errs.RangeError, fmt.Sprintf("INTEGER %d below lower bound %d", n, *c.min)), path)
		}
		if c.max != nil && n > *c.max {
			return errs.WithPath(errs.New(errs.RangeError, fmt.Sprintf("INTEGER %d above upper bound %d", n, *c.max)), path)
		}
	}
	if err := e.EncodeInteger(n, c.min, c.max, c.extensible); err != nil {
		return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding INTEGER", err), path)
	}
	return nil
}

func (c *compiledInteger) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return leafMeta(d, func() (value.Value, error) {
		n, err := d.DecodeInteger(c.min, c.max, c.extensible)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding INTEGER", err), path)
		}
		return value.NewInt(n), nil
	})
}

type compiledEnumerated struct {
	names      []string
	extNames   []string
	extensible bool
}

func newCompiledEnumerated(n *schema.Enumerated) *compiledEnumerated {
	return &compiledEnumerated{names: n.Values, extNames: n.ExtensionValues, extensible: n.Extensible}
}

func (c *compiledEnumerated) indexOf(name string) (uint64, bool) {
	for i, v := range c.names {
		if v == name {
			return uint64(i), true
		}
	}
	for i, v := range c.extNames {
		if v == name {
			return uint64(len(c.names) + i), true
		}
	}
	return 0, false
}

func (c *compiledEnumerated) nameOf(index uint64) (string, error) {
	if index < uint64(len(c.names)) {
		return c.names[index], nil
	}
	extIdx := index - uint64(len(c.names))
	if extIdx < uint64(len(c.extNames)) {
		return c.extNames[extIdx], nil
	}
	return "", fmt.Errorf("enumerated index %d out of range", index)
}

func (c *compiledEnumerated) encode(e *per.Encoder, v value.Value, path string) error {
	ev, ok := v.(value.Enumerated)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected ENUMERATED, got %T", v)), path)
	}
	idx, ok := c.indexOf(string(ev))
	if !ok {
		return errs.WithPath(errs.New(errs.RangeError, fmt.Sprintf("ENUMERATED has no value named %q", ev)), path)
	}
	if err := e.EncodeEnumerated(idx, uint64(len(c.names)), c.extensible); err != nil {
		return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding ENUMERATED", err), path)
	}
	return nil
}

func (c *compiledEnumerated) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return leafMeta(d, func() (value.Value, error) {
		idx, err := d.DecodeEnumerated(uint64(len(c.names)), c.extensible)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding ENUMERATED", err), path)
		}
		name, err := c.nameOf(idx)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding ENUMERATED", err), path)
		}
		return value.Enumerated(name), nil
	})
}

type compiledBitString struct {
	fixedSize, minSize, maxSize *uint64
	extensible                  bool
}

func (c *compiledBitString) bounds() (*uint64, *uint64) {
	if c.fixedSize != nil {
		return c.fixedSize, c.fixedSize
	}
	return c.minSize, c.maxSize
}

func (c *compiledBitString) encode(e *per.Encoder, v value.Value, path string) error {
	bv, ok := v.(value.BitString)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected BIT STRING, got %T", v)), path)
	}
	lb, ub := c.bounds()
	n := uint64(bv.BitLength)
	if !c.extensible && ((lb != nil && n < *lb) || (ub != nil && n > *ub)) {
		return errs.WithPath(errs.New(errs.SizeError, fmt.Sprintf("BIT STRING length %d outside [%v,%v]", n, lb, ub)), path)
	}
	asn1bs := asn1.BitString{Bytes: bv.Bytes, BitLength: bv.BitLength}
	if err := e.EncodeBitString(&asn1bs, lb, ub, c.extensible); err != nil {
		return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding BIT STRING", err), path)
	}
	return nil
}

func (c *compiledBitString) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return leafMeta(d, func() (value.Value, error) {
		lb, ub := c.bounds()
		bs, err := d.DecodeBitString(lb, ub, c.extensible)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding BIT STRING", err), path)
		}
		return value.BitString{Bytes: bs.Bytes, BitLength: bs.BitLength}, nil
	})
}

type compiledOctetString struct {
	fixedSize, minSize, maxSize *uint64
	extensible                  bool
}

func (c *compiledOctetString) bounds() (*uint64, *uint64) {
	if c.fixedSize != nil {
		return c.fixedSize, c.fixedSize
	}
	return c.minSize, c.maxSize
}

func (c *compiledOctetString) encode(e *per.Encoder, v value.Value, path string) error {
	ov, ok := v.(value.OctetString)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected OCTET STRING, got %T", v)), path)
	}
	lb, ub := c.bounds()
	n := uint64(len(ov))
	if !c.extensible && ((lb != nil && n < *lb) || (ub != nil && n > *ub)) {
		return errs.WithPath(errs.New(errs.SizeError, fmt.Sprintf("OCTET STRING length %d outside [%v,%v]", n, lb, ub)), path)
	}
	if err := e.EncodeOctetString(ov, lb, ub, c.extensible); err != nil {
		return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding OCTET STRING", err), path)
	}
	return nil
}

func (c *compiledOctetString) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return leafMeta(d, func() (value.Value, error) {
		lb, ub := c.bounds()
		data, err := d.DecodeOctetString(lb, ub, c.extensible)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding OCTET STRING", err), path)
		}
		return value.OctetString(data), nil
	})
}

type compiledCharString struct {
	kind                        schema.CharStringKind
	fixedSize, minSize, maxSize *uint64
	extensible                  bool
	alphabet                    []rune
}

func (c *compiledCharString) bounds() (*uint64, *uint64) {
	if c.fixedSize != nil {
		return c.fixedSize, c.fixedSize
	}
	return c.minSize, c.maxSize
}

// charWidth returns the per-code-point bit width used when no explicit
// alphabet is given: 7 bits for IA5String/VisibleString (clause 30.5's
// canonical unaligned width), 0 for UTF8String (octet-per-character,
// clause 31.2). Ignored when an explicit alphabet is set — per.EncodeString/
// DecodeString compute the packed width from the alphabet itself then.
func (c *compiledCharString) charWidth() int {
	switch c.kind {
	case schema.IA5String, schema.VisibleString:
		return 7
	default:
		return 0
	}
}

// validateVisibleString enforces VisibleString's [0x20,0x7E] printable range
// (ITU-T X.680 clause 41's VisibleString character set) when no explicit
// alphabet already restricts the characters.
func (c *compiledCharString) validateVisibleString(sv value.CharString, path string) error {
	if c.kind != schema.VisibleString || c.alphabet != nil {
		return nil
	}
	for _, r := range string(sv) {
		if r < 0x20 || r > 0x7E {
			return errs.WithPath(errs.New(errs.RangeError, fmt.Sprintf("VisibleString character %q outside [0x20,0x7E]", r)), path)
		}
	}
	return nil
}

func (c *compiledCharString) encode(e *per.Encoder, v value.Value, path string) error {
	sv, ok := v.(value.CharString)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected character string, got %T", v)), path)
	}
	if err := c.validateVisibleString(sv, path); err != nil {
		return err
	}
	lb, ub := c.bounds()
	n := uint64(len([]rune(sv)))
	if !c.extensible && ((lb != nil && n < *lb) || (ub != nil && n > *ub)) {
		return errs.WithPath(errs.New(errs.SizeError, fmt.Sprintf("string length %d outside [%v,%v]", n, lb, ub)), path)
	}
	if err := e.EncodeString(string(sv), lb, ub, c.extensible, c.alphabet, c.charWidth()); err != nil {
		return errs.WithPath(errs.Wrap(errs.RangeError, "encoding character string", err), path)
	}
	return nil
}

func (c *compiledCharString) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return leafMeta(d, func() (value.Value, error) {
		lb, ub := c.bounds()
		s, err := d.DecodeString(lb, ub, c.extensible, c.alphabet, c.charWidth())
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding character string", err), path)
		}
		sv := value.CharString(s)
		if err := c.validateVisibleString(sv, path); err != nil {
			return nil, err
		}
		return sv, nil
	})
}

type compiledObjectIdentifier struct{}

func (c *compiledObjectIdentifier) encode(e *per.Encoder, v value.Value, path string) error {
	ov, ok := v.(value.ObjectIdentifier)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected OBJECT IDENTIFIER, got %T", v)), path)
	}
	oid := make(asn1.ObjectIdentifier, len(ov))
	for i, arc := range ov {
		oid[i] = int(arc)
	}
	if err := e.EncodeObjectIdentifier(oid); err != nil {
		return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding OBJECT IDENTIFIER", err), path)
	}
	return nil
}

func (c *compiledObjectIdentifier) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return leafMeta(d, func() (value.Value, error) {
		oid, err := d.DecodeObjectIdentifier()
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding OBJECT IDENTIFIER", err), path)
		}
		arcs := make(value.ObjectIdentifier, len(oid))
		for i, arc := range oid {
			arcs[i] = uint64(arc)
		}
		return arcs, nil
	})
}
