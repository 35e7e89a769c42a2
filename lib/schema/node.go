// Package schema describes the declarative, serializable schema tree that
// drives the codec interpreter (lib/codec). A schema is a closed set of
// tagged-union node types; every constructor validates the invariants
// named in the node table at construction time, so a *schema.Node that
// exists is always valid — codec never has to re-check constraint shape.
package schema

import (
	"fmt"

	"github.com/thebagchi/go-uper/lib/errs"
	"github.com/thebagchi/go-uper/lib/value"
)

// Node is implemented by every schema node variant. It is a closed set —
// type-switch on the concrete type, never on behavior.
type Node interface {
	isNode()
	// Tag returns the node's discriminator, matching the JSON "type" value.
	Tag() string
}

// Boolean is the BOOLEAN schema node. It has no attributes.
type Boolean struct{}

func (Boolean) isNode()     {}
func (Boolean) Tag() string { return "BOOLEAN" }

// NewBoolean returns a BOOLEAN node.
func NewBoolean() Boolean { return Boolean{} }

// Null is the NULL schema node. It has no attributes.
type Null struct{}

func (Null) isNode()     {}
func (Null) Tag() string { return "NULL" }

// NewNull returns a NULL node.
func NewNull() Null { return Null{} }

// Integer is the INTEGER schema node.
type Integer struct {
	Min        *int64
	Max        *int64
	Extensible bool
}

func (*Integer) isNode()     {}
func (*Integer) Tag() string { return "INTEGER" }

// NewInteger validates min ≤ max (when both are given) before returning
// the node.
func NewInteger(min, max *int64, extensible bool) (*Integer, error) {
	if min != nil && max != nil && *min > *max {
		return nil, errs.New(errs.SchemaError, fmt.Sprintf("INTEGER min %d exceeds max %d", *min, *max))
	}
	return &Integer{Min: min, Max: max, Extensible: extensible}, nil
}

// Enumerated is the ENUMERATED schema node.
type Enumerated struct {
	Values          []string
	ExtensionValues []string
	Extensible      bool
}

func (*Enumerated) isNode()     {}
func (*Enumerated) Tag() string { return "ENUMERATED" }

// NewEnumerated validates that there is at least one root value and that
// names are unique across Values and ExtensionValues combined.
func NewEnumerated(values, extensionValues []string, extensible bool) (*Enumerated, error) {
	if len(values) == 0 {
		return nil, errs.New(errs.SchemaError, "ENUMERATED requires at least one root value")
	}
	seen := make(map[string]bool, len(values)+len(extensionValues))
	for _, v := range values {
		if seen[v] {
			return nil, errs.New(errs.SchemaError, fmt.Sprintf("ENUMERATED duplicate name %q", v))
		}
		seen[v] = true
	}
	for _, v := range extensionValues {
		if seen[v] {
			return nil, errs.New(errs.SchemaError, fmt.Sprintf("ENUMERATED duplicate name %q", v))
		}
		seen[v] = true
	}
	return &Enumerated{Values: values, ExtensionValues: extensionValues, Extensible: extensible}, nil
}

// validateSizeConstraint enforces that FixedSize and Min/MaxSize are
// mutually exclusive, shared by BIT STRING, OCTET STRING, CharString, and
// SEQUENCE OF.
func validateSizeConstraint(fixed, min, max *uint64) error {
	if fixed != nil && (min != nil || max != nil) {
		return errs.New(errs.SchemaError, "fixed_size is mutually exclusive with min_size/max_size")
	}
	if min != nil && max != nil && *min > *max {
		return errs.New(errs.SchemaError, fmt.Sprintf("min_size %d exceeds max_size %d", *min, *max))
	}
	return nil
}

// BitString is the BIT STRING schema node.
type BitString struct {
	FixedSize  *uint64
	MinSize    *uint64
	MaxSize    *uint64
	Extensible bool
}

func (*BitString) isNode()     {}
func (*BitString) Tag() string { return "BIT_STRING" }

// NewBitString validates the shared size-constraint invariant.
func NewBitString(fixed, min, max *uint64, extensible bool) (*BitString, error) {
	if err := validateSizeConstraint(fixed, min, max); err != nil {
		return nil, err
	}
	return &BitString{FixedSize: fixed, MinSize: min, MaxSize: max, Extensible: extensible}, nil
}

// OctetString is the OCTET STRING schema node.
type OctetString struct {
	FixedSize  *uint64
	MinSize    *uint64
	MaxSize    *uint64
	Extensible bool
}

func (*OctetString) isNode()     {}
func (*OctetString) Tag() string { return "OCTET_STRING" }

// NewOctetString validates the shared size-constraint invariant.
func NewOctetString(fixed, min, max *uint64, extensible bool) (*OctetString, error) {
	if err := validateSizeConstraint(fixed, min, max); err != nil {
		return nil, err
	}
	return &OctetString{FixedSize: fixed, MinSize: min, MaxSize: max, Extensible: extensible}, nil
}

// CharStringKind distinguishes the restricted character string subtypes.
type CharStringKind int

const (
	IA5String CharStringKind = iota
	VisibleString
	UTF8String
)

func (k CharStringKind) String() string {
	switch k {
	case IA5String:
		return "IA5String"
	case VisibleString:
		return "VisibleString"
	case UTF8String:
		return "UTF8String"
	default:
		return "UnknownCharString"
	}
}

// CharString is the schema node for IA5String, VisibleString, and
// UTF8String, distinguished by Kind.
type CharString struct {
	Kind       CharStringKind
	FixedSize  *uint64
	MinSize    *uint64
	MaxSize    *uint64
	Alphabet   []rune
	Extensible bool
}

func (*CharString) isNode()     {}
func (c *CharString) Tag() string { return c.Kind.String() }

// NewCharString validates the shared size-constraint invariant.
func NewCharString(kind CharStringKind, fixed, min, max *uint64, alphabet []rune, extensible bool) (*CharString, error) {
	if err := validateSizeConstraint(fixed, min, max); err != nil {
		return nil, err
	}
	return &CharString{
		Kind: kind, FixedSize: fixed, MinSize: min, MaxSize: max,
		Alphabet: alphabet, Extensible: extensible,
	}, nil
}

// ObjectIdentifier is the OBJECT IDENTIFIER schema node. It has no
// attributes.
type ObjectIdentifier struct{}

func (ObjectIdentifier) isNode()     {}
func (ObjectIdentifier) Tag() string { return "OBJECT_IDENTIFIER" }

// NewObjectIdentifier returns an OBJECT IDENTIFIER node.
func NewObjectIdentifier() ObjectIdentifier { return ObjectIdentifier{} }

// Field is one field of a SEQUENCE.
type Field struct {
	Name     string
	Schema   Node
	Optional bool
	Default  value.Value
}

// Sequence is the SEQUENCE schema node.
type Sequence struct {
	Fields          []Field
	ExtensionFields []Field
}

func (*Sequence) isNode()     {}
func (*Sequence) Tag() string { return "SEQUENCE" }

// NewSequence validates that field names are unique across Fields and
// ExtensionFields combined, and that a Default is only set on a field
// marked Optional.
func NewSequence(fields, extensionFields []Field) (*Sequence, error) {
	seen := make(map[string]bool, len(fields)+len(extensionFields))
	for _, list := range [][]Field{fields, extensionFields} {
		for _, f := range list {
			if seen[f.Name] {
				return nil, errs.New(errs.SchemaError, fmt.Sprintf("SEQUENCE duplicate field name %q", f.Name))
			}
			seen[f.Name] = true
			if f.Default != nil && !f.Optional {
				return nil, errs.New(errs.SchemaError, fmt.Sprintf("SEQUENCE field %q has a default but is not optional", f.Name))
			}
		}
	}
	return &Sequence{Fields: fields, ExtensionFields: extensionFields}, nil
}

// SequenceOf is the SEQUENCE OF schema node.
type SequenceOf struct {
	Item       Node
	FixedSize  *uint64
	MinSize    *uint64
	MaxSize    *uint64
	Extensible bool
}

func (*SequenceOf) isNode()     {}
func (*SequenceOf) Tag() string { return "SEQUENCE_OF" }

// NewSequenceOf validates the shared size-constraint invariant.
func NewSequenceOf(item Node, fixed, min, max *uint64, extensible bool) (*SequenceOf, error) {
	if item == nil {
		return nil, errs.New(errs.SchemaError, "SEQUENCE OF requires an item schema")
	}
	if err := validateSizeConstraint(fixed, min, max); err != nil {
		return nil, err
	}
	return &SequenceOf{Item: item, FixedSize: fixed, MinSize: min, MaxSize: max, Extensible: extensible}, nil
}

// Alternative is one alternative of a CHOICE.
type Alternative struct {
	Name   string
	Schema Node
}

// Choice is the CHOICE schema node.
type Choice struct {
	Alternatives          []Alternative
	ExtensionAlternatives []Alternative
}

func (*Choice) isNode()     {}
func (*Choice) Tag() string { return "CHOICE" }

// NewChoice validates that there is at least one alternative (root or
// extension) and that alternative names are unique across both lists.
func NewChoice(alternatives, extensionAlternatives []Alternative) (*Choice, error) {
	if len(alternatives)+len(extensionAlternatives) == 0 {
		return nil, errs.New(errs.SchemaError, "CHOICE requires at least one alternative")
	}
	seen := make(map[string]bool, len(alternatives)+len(extensionAlternatives))
	for _, list := range [][]Alternative{alternatives, extensionAlternatives} {
		for _, a := range list {
			if seen[a.Name] {
				return nil, errs.New(errs.SchemaError, fmt.Sprintf("CHOICE duplicate alternative name %q", a.Name))
			}
			seen[a.Name] = true
		}
	}
	return &Choice{Alternatives: alternatives, ExtensionAlternatives: extensionAlternatives}, nil
}

// Reference is a named pointer to another schema node, resolved through a
// Registry at build time.
type Reference struct {
	Name string
}

func (Reference) isNode()     {}
func (Reference) Tag() string { return "REFERENCE" }

// NewReference returns a Reference node naming another registered schema.
func NewReference(name string) Reference {
	return Reference{Name: name}
}
