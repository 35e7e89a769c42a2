// Package codec is the schema interpreter (SPEC_FULL.md C4/C6/C7): it
// compiles a schema.Node into a graph of compiled codecs and drives
// encode/decode against lib/per, resolving named references (including
// recursive ones) through a schema.Registry.
package codec

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/thebagchi/go-uper/lib/errs"
	"github.com/thebagchi/go-uper/lib/per"
	"github.com/thebagchi/go-uper/lib/schema"
	"github.com/thebagchi/go-uper/lib/value"
)

// compiledNode is the interpreter's internal unit of work: one per schema
// node, closing over everything needed to encode or decode a value at that
// position without re-consulting the schema tree.
type compiledNode interface {
	encode(e *per.Encoder, v value.Value, path string) error
	decodeMeta(d *per.Decoder, path string) (*DecodedNode, error)
}

// encodeValue is the raw-bytes passthrough dispatcher (C7): every call site
// that would otherwise invoke a compiledNode's encode method goes through
// this function first, so a value.RawBits sentinel at any slot is written
// verbatim instead of being interpreted against the schema there.
func encodeValue(e *per.Encoder, node compiledNode, v value.Value, path string) error {
	if raw, ok := v.(value.RawBits); ok {
		if err := e.WriteRawBits(raw.Bytes, raw.BitLen); err != nil {
			return errs.WithPath(errs.Wrap(errs.DecodeError, "writing raw bits", err), path)
		}
		return nil
	}
	return node.encode(e, v, path)
}

// indirection is the handle returned for every named reference. It lets the
// builder hand out a stable pointer before the referenced schema has
// finished compiling (the cycle case for recursive types); by the time any
// Codec is used, every indirection's target has been patched in.
type indirection struct {
	name   string
	target compiledNode
}

func (i *indirection) encode(e *per.Encoder, v value.Value, path string) error {
	return encodeValue(e, i.target, v, path)
}

func (i *indirection) decodeMeta(d *per.Decoder, path string) (*DecodedNode, error) {
	return i.target.decodeMeta(d, path)
}

// builder compiles schema.Node trees into compiledNode graphs, sharing one
// indirection per registry name so that two references to the same named
// type (including a self-reference) resolve to the same compiled subgraph.
//
// mu guards the nodes map only. A name's placeholder is installed under mu
// before its referent is compiled, so two BuildAll goroutines racing to
// resolve the same shared name never double-compile it; the compile itself
// runs outside the lock.
type builder struct {
	mu    sync.Mutex
	reg   schema.Registry
	nodes map[string]*indirection
}

func newBuilder(reg schema.Registry) *builder {
	return &builder{reg: reg, nodes: make(map[string]*indirection)}
}

// resolve returns the shared indirection for name, compiling its referent
// the first time it is requested. The lock is held only long enough to
// check/install the placeholder — compile() below may itself recurse into
// resolve() for nested references, which would deadlock against a
// non-reentrant mutex held across that call.
func (b *builder) resolve(name string) (*indirection, error) {
	b.mu.Lock()
	if ind, ok := b.nodes[name]; ok {
		b.mu.Unlock()
		return ind, nil
	}
	ind := &indirection{name: name}
	b.nodes[name] = ind
	b.mu.Unlock()

	referent, ok := b.reg.Resolve(name)
	if !ok {
		return nil, errs.New(errs.SchemaError, fmt.Sprintf("reference %q is unresolved", name))
	}
	compiled, err := b.compile(referent)
	if err != nil {
		return nil, err
	}
	ind.target = compiled
	return ind, nil
}

func (b *builder) compile(n schema.Node) (compiledNode, error) {
	switch node := n.(type) {
	case schema.Boolean:
		return &compiledBoolean{}, nil
	case schema.Null:
		return &compiledNull{}, nil
	case *schema.Integer:
		return &compiledInteger{min: node.Min, max: node.Max, extensible: node.Extensible}, nil
	case *schema.Enumerated:
		return newCompiledEnumerated(node), nil
	case *schema.BitString:
		return &compiledBitString{
			fixedSize: node.FixedSize, minSize: node.MinSize, maxSize: node.MaxSize, extensible: node.Extensible,
		}, nil
	case *schema.OctetString:
		return &compiledOctetString{
			fixedSize: node.FixedSize, minSize: node.MinSize, maxSize: node.MaxSize, extensible: node.Extensible,
		}, nil
	case *schema.CharString:
		return &compiledCharString{
			kind:      node.Kind,
			fixedSize: node.FixedSize, minSize: node.MinSize, maxSize: node.MaxSize,
			extensible: node.Extensible, alphabet: node.Alphabet,
		}, nil
	case schema.ObjectIdentifier:
		return &compiledObjectIdentifier{}, nil
	case *schema.Sequence:
		return b.compileSequence(node)
	case *schema.SequenceOf:
		return b.compileSequenceOf(node)
	case *schema.Choice:
		return b.compileChoice(node)
	case schema.Reference:
		return b.resolve(node.Name)
	default:
		return nil, errs.New(errs.SchemaError, fmt.Sprintf("unsupported schema node %T", n))
	}
}

// Codec is a fully built, immutable codec graph rooted at one schema node.
// It is safe to share across goroutines; Encode/Decode/DecodeWithMetadata
// calls against distinct buffers and values share no mutable state.
type Codec struct {
	root compiledNode
}

// Build compiles a single schema node against a registry snapshot, eagerly
// resolving every Reference it contains (transitively). The registry is
// read-only to Build; it is never mutated.
func Build(n schema.Node, reg schema.Registry) (*Codec, error) {
	if reg == nil {
		reg = schema.NewRegistry()
	}
	b := newBuilder(reg)
	root, err := b.compile(n)
	if err != nil {
		return nil, err
	}
	return &Codec{root: root}, nil
}

// BuildAll compiles a codec for every named schema in reg, sharing one
// builder (and therefore one indirection per name) so that mutually
// recursive named types resolve against each other correctly. Independent
// names are compiled concurrently, at most GOMAXPROCS at a time; ctx lets a
// caller abort a large registry compile early.
func BuildAll(ctx context.Context, reg schema.Registry) (map[string]*Codec, error) {
	b := newBuilder(reg)
	names := reg.Names()

	codecs := make(map[string]*Codec, len(names))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ind, err := b.resolve(name)
			if err != nil {
				return errs.WithPath(err, name)
			}
			mu.Lock()
			codecs[name] = &Codec{root: ind}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return codecs, nil
}

// Encode compiles v against the codec's root schema and returns the compact
// PER-unaligned byte encoding. Encoding is atomic: on error, no partial
// byte slice is returned.
func (c *Codec) Encode(v value.Value) ([]byte, error) {
	e := per.NewEncoder()
	if err := encodeValue(e, c.root, v, "root"); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// EncodeToRaw is Encode plus the exact bit length written, for callers that
// need to splice the result into a larger bit stream (e.g. as a value.RawBits
// fragment) without the trailing zero-padding bits being mistaken for data.
func (c *Codec) EncodeToRaw(v value.Value) ([]byte, uint64, error) {
	e := per.NewEncoder()
	if err := encodeValue(e, c.root, v, "root"); err != nil {
		return nil, 0, err
	}
	return e.Bytes(), e.BitLength(), nil
}

// Decode is the inverse of Encode. On error it returns (nil, err); it never
// returns a partially decoded value.
func (c *Codec) Decode(b []byte) (value.Value, error) {
	d := per.NewDecoder(b)
	node, err := c.root.decodeMeta(d, "root")
	if err != nil {
		return nil, err
	}
	return node.Value, nil
}

// DecodeWithMetadata is Decode plus bit-range provenance for every
// sub-value visited, via the returned DecodedNode tree.
func (c *Codec) DecodeWithMetadata(b []byte) (*DecodedNode, error) {
	d := per.NewDecoder(b)
	return c.root.decodeMeta(d, "root")
}
