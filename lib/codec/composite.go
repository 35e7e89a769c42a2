package codec

import (
	"fmt"

	"github.com/thebagchi/go-uper/lib/errs"
	"github.com/thebagchi/go-uper/lib/per"
	"github.com/thebagchi/go-uper/lib/schema"
	"github.com/thebagchi/go-uper/lib/value"
)

// compiledField is one SEQUENCE field: its compiled schema plus the
// optionality/default metadata the preamble bitmap and absent-field
// handling need.
type compiledField struct {
	name     string
	codec    compiledNode
	optional bool
	def      value.Value
}

type compiledSequence struct {
	fields    []compiledField
	extFields []compiledField
}

// effectivelyPresent reports whether f should be transmitted for sv: absent
// fields are never transmitted, and a present field equal to its declared
// DEFAULT is treated as absent too (§4.2 SEQUENCE step 2), so it is omitted
// from the wire rather than round-tripped verbatim.
func (f *compiledField) effectivelyPresent(sv *value.Sequence) (value.Value, bool) {
	val, present := sv.Get(f.name)
	if present && f.def != nil && value.Equal(val, f.def) {
		return nil, false
	}
	return val, present
}

func (b *builder) compileSequence(n *schema.Sequence) (*compiledSequence, error) {
	fields, err := b.compileFields(n.Fields)
	if err != nil {
		return nil, err
	}
	extFields, err := b.compileFields(n.ExtensionFields)
	if err != nil {
		return nil, err
	}
	return &compiledSequence{fields: fields, extFields: extFields}, nil
}

func (b *builder) compileFields(fields []schema.Field) ([]compiledField, error) {
	out := make([]compiledField, len(fields))
	for i, f := range fields {
		c, err := b.compile(f.Schema)
		if err != nil {
			return nil, err
		}
		out[i] = compiledField{name: f.Name, codec: c, optional: f.Optional, def: f.Default}
	}
	return out, nil
}

func (c *compiledSequence) encode(e *per.Encoder, v value.Value, path string) error {
	sv, ok := v.(*value.Sequence)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected SEQUENCE, got %T", v)), path)
	}

	hasExtensions := false
	if len(c.extFields) > 0 {
		for _, f := range c.extFields {
			if _, present := f.effectivelyPresent(sv); present {
				hasExtensions = true
				break
			}
		}
		bit := uint64(0)
		if hasExtensions {
			bit = 1
		}
		if err := e.WriteRawBits([]byte{byte(bit << 7)}, 1); err != nil {
			return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE extension bit", err), path)
		}
	}

	for _, f := range c.fields {
		val, present := f.effectivelyPresent(sv)
		if f.optional {
			bit := uint64(0)
			if present {
				bit = 1
			}
			if err := e.WriteRawBits([]byte{byte(bit << 7)}, 1); err != nil {
				return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE preamble bit", err), path)
			}
		} else if !present {
			return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("missing mandatory field %q", f.name)), path)
		}
		if present {
			if err := encodeValue(e, f.codec, val, path+"."+f.name); err != nil {
				return err
			}
		}
	}

	if len(c.extFields) > 0 && hasExtensions {
		if err := e.EncodeNormallySmallNonNegativeWholeNumber(uint64(len(c.extFields) - 1)); err != nil {
			return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE extension bitmap length", err), path)
		}
		for _, f := range c.extFields {
			_, present := f.effectivelyPresent(sv)
			bit := uint64(0)
			if present {
				bit = 1
			}
			if err := e.WriteRawBits([]byte{byte(bit << 7)}, 1); err != nil {
				return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE extension presence bit", err), path)
			}
		}
		for _, f := range c.extFields {
			val, present := f.effectivelyPresent(sv)
			if !present {
				continue
			}
			inner := per.NewEncoder()
			if err := encodeValue(inner, f.codec, val, path+"."+f.name); err != nil {
				return err
			}
			if err := e.EncodeOctetString(inner.Bytes(), nil, nil, false); err != nil {
				return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE extension open type", err), path)
			}
		}
	}
	return nil
}

func (c *compiledSequence) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	start := d.Buffer().Tell()
	sv := value.NewSequence()
	children := make(map[string]*DecodedNode, len(c.fields)+len(c.extFields))

	hasExtensions := false
	if len(c.extFields) > 0 {
		bit, err := d.Buffer().ReadBits(1)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding SEQUENCE extension bit", err), path)
		}
		hasExtensions = bit == 1
	}

	for _, f := range c.fields {
		present := true
		if f.optional {
			bit, err := d.Buffer().ReadBits(1)
			if err != nil {
				return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding SEQUENCE preamble bit", err), path)
			}
			present = bit == 1
		}
		if present {
			node, err := f.codec.decodeMeta(d, path+"."+f.name)
			if err != nil {
				return nil, err
			}
			sv.Set(f.name, node.Value)
			children[f.name] = node
		} else if f.def != nil {
			sv.Set(f.name, f.def)
		}
	}

	if hasExtensions {
		count, err := d.DecodeNormallySmallNonNegativeWholeNumber()
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding SEQUENCE extension bitmap length", err), path)
		}
		bitmapLen := count + 1
		present := make([]bool, bitmapLen)
		for i := range present {
			bit, err := d.Buffer().ReadBits(1)
			if err != nil {
				return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding SEQUENCE extension presence bit", err), path)
			}
			present[i] = bit == 1
		}
		for i := uint64(0); i < bitmapLen; i++ {
			if !present[i] {
				continue
			}
			raw, err := d.DecodeOctetString(nil, nil, false)
			if err != nil {
				return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding SEQUENCE extension open type", err), path)
			}
			if int(i) >= len(c.extFields) {
				// Extension addition unknown to this compiled schema (added
				// by a newer sender); skip it, as PER's extensibility model
				// requires.
				continue
			}
			f := c.extFields[i]
			inner := per.NewDecoder(raw)
			node, err := f.codec.decodeMeta(inner, path+"."+f.name)
			if err != nil {
				return nil, err
			}
			sv.Set(f.name, node.Value)
			children[f.name] = node
		}
	}

	end := d.Buffer().Tell()
	return &DecodedNode{BitOffset: start, BitLength: end - start, Value: sv, Children: children, buf: d.Buffer()}, nil
}

type compiledSequenceOf struct {
	item                         compiledNode
	fixedSize, minSize, maxSize *uint64
	extensible                   bool
}

func (b *builder) compileSequenceOf(n *schema.SequenceOf) (*compiledSequenceOf, error) {
	item, err := b.compile(n.Item)
	if err != nil {
		return nil, err
	}
	return &compiledSequenceOf{
		item: item, fixedSize: n.FixedSize, minSize: n.MinSize, maxSize: n.MaxSize, extensible: n.Extensible,
	}, nil
}

func (c *compiledSequenceOf) bounds() (*uint64, *uint64) {
	if c.fixedSize != nil {
		return c.fixedSize, c.fixedSize
	}
	return c.minSize, c.maxSize
}

func (c *compiledSequenceOf) encode(e *per.Encoder, v value.Value, path string) error {
	sv, ok := v.(value.SequenceOf)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected SEQUENCE OF, got %T", v)), path)
	}
	lb, ub := c.bounds()
	n := uint64(len(sv))

	if c.extensible {
		extended := (lb != nil && n < *lb) || (ub != nil && n > *ub)
		bit := uint64(0)
		if extended {
			bit = 1
		}
		if err := e.WriteRawBits([]byte{byte(bit << 7)}, 1); err != nil {
			return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE OF extension bit", err), path)
		}
		if extended {
			zero := uint64(0)
			return c.encodeItems(e, sv, &zero, nil, path)
		}
	} else if (lb != nil && n < *lb) || (ub != nil && n > *ub) {
		return errs.WithPath(errs.New(errs.SizeError, fmt.Sprintf("SEQUENCE OF length %d outside [%v,%v]", n, lb, ub)), path)
	}

	if ub != nil && *ub == 0 {
		return nil
	}
	if lb != nil && ub != nil && *lb == *ub {
		return c.encodeAll(e, sv, path)
	}
	return c.encodeItems(e, sv, lb, ub, path)
}

func (c *compiledSequenceOf) encodeAll(e *per.Encoder, items value.SequenceOf, path string) error {
	for i, item := range items {
		if err := encodeValue(e, c.item, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// encodeItems mirrors per.Encoder.EncodeOctetStringFragments' fragmentation
// loop, but counts items instead of octets.
func (c *compiledSequenceOf) encodeItems(e *per.Encoder, items value.SequenceOf, lb, ub *uint64, path string) error {
	n := uint64(len(items))
	if n == 0 {
		_, err := e.EncodeLengthDeterminant(0, lb, ub)
		if err != nil {
			return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE OF length", err), path)
		}
		return nil
	}
	offset := uint64(0)
	for offset < n {
		remaining := n - offset
		pending, err := e.EncodeLengthDeterminant(remaining, lb, ub)
		if err != nil {
			return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE OF length", err), path)
		}
		length := remaining
		if pending != 0 {
			length = remaining - pending
		}
		for i := uint64(0); i < length; i++ {
			idx := offset + i
			if err := encodeValue(e, c.item, items[idx], fmt.Sprintf("%s[%d]", path, idx)); err != nil {
				return err
			}
		}
		offset += length
		if pending == 0 {
			// A last piece sent in the fragment form is closed by a
			// zero-length terminating fragment, as decodeItems expects.
			if length >= per.FRAGMENT_SIZE && length%per.FRAGMENT_SIZE == 0 && (ub == nil || *ub >= per.MAX_CONSTRAINED_LENGTH) {
				if _, err := e.EncodeLengthDeterminant(0, lb, ub); err != nil {
					return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding SEQUENCE OF length", err), path)
				}
			}
			break
		}
	}
	return nil
}

func (c *compiledSequenceOf) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	start := d.Buffer().Tell()
	lb, ub := c.bounds()

	if c.extensible {
		bit, err := d.Buffer().ReadBits(1)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding SEQUENCE OF extension bit", err), path)
		}
		if bit == 1 {
			zero := uint64(0)
			items, children, err := c.decodeItems(d, &zero, nil, path)
			if err != nil {
				return nil, err
			}
			end := d.Buffer().Tell()
			return &DecodedNode{BitOffset: start, BitLength: end - start, Value: items, Children: children, buf: d.Buffer()}, nil
		}
	}

	if ub != nil && *ub == 0 {
		end := d.Buffer().Tell()
		return &DecodedNode{BitOffset: start, BitLength: end - start, Value: value.SequenceOf{}, buf: d.Buffer()}, nil
	}

	var items value.SequenceOf
	var children []*DecodedNode
	var err error
	if lb != nil && ub != nil && *lb == *ub {
		items, children, err = c.decodeAll(d, *ub, path)
	} else {
		items, children, err = c.decodeItems(d, lb, ub, path)
	}
	if err != nil {
		return nil, err
	}
	end := d.Buffer().Tell()
	return &DecodedNode{BitOffset: start, BitLength: end - start, Value: items, Children: children, buf: d.Buffer()}, nil
}

func (c *compiledSequenceOf) decodeAll(d *per.Decoder, count uint64, path string) (value.SequenceOf, []*DecodedNode, error) {
	items := make(value.SequenceOf, count)
	children := make([]*DecodedNode, count)
	for i := uint64(0); i < count; i++ {
		node, err := c.item.decodeMeta(d, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, nil, err
		}
		items[i] = node.Value
		children[i] = node
	}
	return items, children, nil
}

// decodeItems mirrors per.Decoder.DecodeOctetStringFragments' fragmentation
// loop, counting items instead of octets.
func (c *compiledSequenceOf) decodeItems(d *per.Decoder, lb, ub *uint64, path string) (value.SequenceOf, []*DecodedNode, error) {
	var items value.SequenceOf
	var children []*DecodedNode
	more := true
	for more {
		n, err := d.DecodeLengthDeterminant(lb, ub)
		if err != nil {
			return nil, nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding SEQUENCE OF length", err), path)
		}
		for i := uint64(0); i < n; i++ {
			node, err := c.item.decodeMeta(d, fmt.Sprintf("%s[%d]", path, len(items)))
			if err != nil {
				return nil, nil, err
			}
			items = append(items, node.Value)
			children = append(children, node)
		}
		more = n >= per.FRAGMENT_SIZE && n%per.FRAGMENT_SIZE == 0 && (ub == nil || *ub >= per.MAX_CONSTRAINED_LENGTH)
		if lb != nil && ub != nil && *ub < per.MAX_CONSTRAINED_LENGTH {
			more = false
		}
	}
	return items, children, nil
}

type compiledAlternative struct {
	name  string
	codec compiledNode
}

type compiledChoice struct {
	alternatives    []compiledAlternative
	extAlternatives []compiledAlternative
}

func (b *builder) compileChoice(n *schema.Choice) (*compiledChoice, error) {
	alts, err := b.compileAlternatives(n.Alternatives)
	if err != nil {
		return nil, err
	}
	extAlts, err := b.compileAlternatives(n.ExtensionAlternatives)
	if err != nil {
		return nil, err
	}
	return &compiledChoice{alternatives: alts, extAlternatives: extAlts}, nil
}

func (b *builder) compileAlternatives(alts []schema.Alternative) ([]compiledAlternative, error) {
	out := make([]compiledAlternative, len(alts))
	for i, a := range alts {
		c, err := b.compile(a.Schema)
		if err != nil {
			return nil, err
		}
		out[i] = compiledAlternative{name: a.Name, codec: c}
	}
	return out, nil
}

func (c *compiledChoice) indexOf(name string) (int, bool, bool) {
	for i, a := range c.alternatives {
		if a.name == name {
			return i, false, true
		}
	}
	for i, a := range c.extAlternatives {
		if a.name == name {
			return i, true, true
		}
	}
	return 0, false, false
}

func (c *compiledChoice) encode(e *per.Encoder, v value.Value, path string) error {
	cv, ok := v.(value.Choice)
	if !ok {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("expected CHOICE, got %T", v)), path)
	}
	idx, isExt, found := c.indexOf(cv.Name)
	extensible := len(c.extAlternatives) > 0
	if !found || (isExt && !extensible) {
		return errs.WithPath(errs.New(errs.ShapeError, fmt.Sprintf("CHOICE has no alternative named %q", cv.Name)), path)
	}

	if extensible {
		bit := uint64(0)
		if isExt {
			bit = 1
		}
		if err := e.WriteRawBits([]byte{byte(bit << 7)}, 1); err != nil {
			return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding CHOICE extension bit", err), path)
		}
	}

	if !isExt {
		if err := e.EncodeConstrainedWholeNumber(0, int64(len(c.alternatives)-1), int64(idx)); err != nil {
			return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding CHOICE index", err), path)
		}
		return encodeValue(e, c.alternatives[idx].codec, cv.Value, path+"."+cv.Name)
	}

	if err := e.EncodeNormallySmallNonNegativeWholeNumber(uint64(idx)); err != nil {
		return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding CHOICE extension index", err), path)
	}
	inner := per.NewEncoder()
	if err := encodeValue(inner, c.extAlternatives[idx].codec, cv.Value, path+"."+cv.Name); err != nil {
		return err
	}
	if err := e.EncodeOctetString(inner.Bytes(), nil, nil, false); err != nil {
		return errs.WithPath(errs.Wrap(errs.DecodeError, "encoding CHOICE extension open type", err), path)
	}
	return nil
}

func (c *compiledChoice) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	start := d.Buffer().Tell()
	extensible := len(c.extAlternatives) > 0

	isExt := false
	if extensible {
		bit, err := d.Buffer().ReadBits(1)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding CHOICE extension bit", err), path)
		}
		isExt = bit == 1
	}

	var alt compiledAlternative
	var picked *DecodedNode
	if !isExt {
		idx, err := d.DecodeConstrainedWholeNumber(0, int64(len(c.alternatives)-1))
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding CHOICE index", err), path)
		}
		if idx < 0 || int(idx) >= len(c.alternatives) {
			return nil, errs.WithPath(errs.New(errs.DecodeError, fmt.Sprintf("CHOICE index %d out of range", idx)), path)
		}
		alt = c.alternatives[idx]
		picked, err = alt.codec.decodeMeta(d, path+"."+alt.name)
		if err != nil {
			return nil, err
		}
	} else {
		idx, err := d.DecodeNormallySmallNonNegativeWholeNumber()
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding CHOICE extension index", err), path)
		}
		raw, err := d.DecodeOctetString(nil, nil, false)
		if err != nil {
			return nil, errs.WithPath(errs.Wrap(errs.DecodeError, "decoding CHOICE extension open type", err), path)
		}
		if idx >= uint64(len(c.extAlternatives)) {
			return nil, errs.WithPath(errs.New(errs.DecodeError, fmt.Sprintf("unknown CHOICE extension index %d", idx)), path)
		}
		alt = c.extAlternatives[idx]
		inner := per.NewDecoder(raw)
		picked, err = alt.codec.decodeMeta(inner, path+"."+alt.name)
		if err != nil {
			return nil, err
		}
	}

	end := d.Buffer().Tell()
	cv := value.Choice{Name: alt.name, Value: picked.Value}
	children := map[string]*DecodedNode{alt.name: picked}
	return &DecodedNode{BitOffset: start, BitLength: end - start, Value: cv, Children: children, buf: d.Buffer()}, nil
}
