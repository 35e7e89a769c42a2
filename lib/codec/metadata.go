package codec

import (
	"github.com/thebagchi/go-uper/lib/bitbuffer"
	"github.com/thebagchi/go-uper/lib/value"
)

// DecodedNode is the result of a metadata-preserving decode (C6): it
// carries the decoded value alongside the exact bit range it occupied in
// the source buffer, plus (for composite schemas) nested DecodedNodes for
// each sub-value.
//
// Children is nil for leaf values, map[string]*DecodedNode for SEQUENCE and
// CHOICE (keyed by field/alternative name), and []*DecodedNode for
// SEQUENCE OF.
type DecodedNode struct {
	BitOffset uint64
	BitLength uint64
	Value     value.Value
	Children  any

	buf *bitbuffer.Buffer
}

// RawBytes lazily slices the source buffer to the bits this node occupies,
// left-aligned with trailing bits zero-padded. It re-slices on every call
// rather than caching, matching bitbuffer.Buffer.Slice's own contract of
// never mutating or retaining beyond what's asked for.
func (n *DecodedNode) RawBytes() ([]byte, error) {
	return n.buf.Slice(n.BitOffset, n.BitLength)
}

// StripMetadata discards bit-range provenance and returns the plain decoded
// value. Composite node values are already assembled as ordinary
// value.Value trees (value.Sequence, value.SequenceOf, value.Choice) during
// decode, so this is never more than a field access.
func StripMetadata(n *DecodedNode) value.Value {
	return n.Value
}
