package schema

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/thebagchi/go-uper/lib/errs"
	"github.com/thebagchi/go-uper/lib/value"
)

// envelope is the JSON-on-the-wire shape for every node variant; unused
// fields are simply omitted. "type" is the discriminator dispatched on by
// UnmarshalNode.
type envelope struct {
	Type                  string          `json:"type"`
	Min                   *int64          `json:"min,omitempty"`
	Max                   *int64          `json:"max,omitempty"`
	Extensible            bool            `json:"extensible,omitempty"`
	Values                []string        `json:"values,omitempty"`
	ExtensionValues       []string        `json:"extension_values,omitempty"`
	FixedSize             *uint64         `json:"fixed_size,omitempty"`
	MinSize               *uint64         `json:"min_size,omitempty"`
	MaxSize               *uint64         `json:"max_size,omitempty"`
	Alphabet              string          `json:"alphabet,omitempty"`
	Fields                []fieldEnv      `json:"fields,omitempty"`
	ExtensionFields        []fieldEnv      `json:"extension_fields,omitempty"`
	Item                  json.RawMessage `json:"item,omitempty"`
	Alternatives          []altEnv        `json:"alternatives,omitempty"`
	ExtensionAlternatives []altEnv        `json:"extension_alternatives,omitempty"`
	Name                  string          `json:"name,omitempty"`
}

type fieldEnv struct {
	Name     string          `json:"name"`
	Schema   json.RawMessage `json:"schema"`
	Optional bool            `json:"optional,omitempty"`
	Default  json.RawMessage `json:"default,omitempty"`
}

type altEnv struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// MarshalJSON implements json.Marshaler for every node variant by producing
// its envelope form.
func (n Boolean) MarshalJSON() ([]byte, error) { return json.Marshal(envelope{Type: n.Tag()}) }
func (n Null) MarshalJSON() ([]byte, error)    { return json.Marshal(envelope{Type: n.Tag()}) }

func (n *Integer) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: n.Tag(), Min: n.Min, Max: n.Max, Extensible: n.Extensible})
}

func (n *Enumerated) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Type: n.Tag(), Values: n.Values, ExtensionValues: n.ExtensionValues, Extensible: n.Extensible,
	})
}

func (n *BitString) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Type: n.Tag(), FixedSize: n.FixedSize, MinSize: n.MinSize, MaxSize: n.MaxSize, Extensible: n.Extensible,
	})
}

func (n *OctetString) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Type: n.Tag(), FixedSize: n.FixedSize, MinSize: n.MinSize, MaxSize: n.MaxSize, Extensible: n.Extensible,
	})
}

func (n *CharString) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{
		Type: n.Tag(), FixedSize: n.FixedSize, MinSize: n.MinSize, MaxSize: n.MaxSize,
		Alphabet: string(n.Alphabet), Extensible: n.Extensible,
	})
}

func (n ObjectIdentifier) MarshalJSON() ([]byte, error) { return json.Marshal(envelope{Type: n.Tag()}) }

func (n *Sequence) MarshalJSON() ([]byte, error) {
	fields, err := marshalFields(n.Fields)
	if err != nil {
		return nil, err
	}
	extFields, err := marshalFields(n.ExtensionFields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: n.Tag(), Fields: fields, ExtensionFields: extFields})
}

func marshalFields(fields []Field) ([]fieldEnv, error) {
	out := make([]fieldEnv, len(fields))
	for i, f := range fields {
		schemaJSON, err := json.Marshal(f.Schema)
		if err != nil {
			return nil, err
		}
		var defJSON json.RawMessage
		if f.Default != nil {
			defJSON, err = marshalValue(f.Default)
			if err != nil {
				return nil, err
			}
		}
		out[i] = fieldEnv{Name: f.Name, Schema: schemaJSON, Optional: f.Optional, Default: defJSON}
	}
	return out, nil
}

func (n *SequenceOf) MarshalJSON() ([]byte, error) {
	itemJSON, err := json.Marshal(n.Item)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		Type: n.Tag(), Item: itemJSON, FixedSize: n.FixedSize, MinSize: n.MinSize, MaxSize: n.MaxSize,
		Extensible: n.Extensible,
	})
}

func (n *Choice) MarshalJSON() ([]byte, error) {
	alts, err := marshalAlternatives(n.Alternatives)
	if err != nil {
		return nil, err
	}
	extAlts, err := marshalAlternatives(n.ExtensionAlternatives)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: n.Tag(), Alternatives: alts, ExtensionAlternatives: extAlts})
}

func marshalAlternatives(alts []Alternative) ([]altEnv, error) {
	out := make([]altEnv, len(alts))
	for i, a := range alts {
		schemaJSON, err := json.Marshal(a.Schema)
		if err != nil {
			return nil, err
		}
		out[i] = altEnv{Name: a.Name, Schema: schemaJSON}
	}
	return out, nil
}

func (n Reference) MarshalJSON() ([]byte, error) {
	return json.Marshal(envelope{Type: n.Tag(), Name: n.Name})
}

// UnmarshalNode parses a JSON-encoded schema node, dispatching on its
// "type" discriminator.
func UnmarshalNode(data []byte) (Node, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.Wrap(errs.SchemaError, "malformed schema node JSON", err)
	}
	switch env.Type {
	case "BOOLEAN":
		return NewBoolean(), nil
	case "NULL":
		return NewNull(), nil
	case "INTEGER":
		return NewInteger(env.Min, env.Max, env.Extensible)
	case "ENUMERATED":
		return NewEnumerated(env.Values, env.ExtensionValues, env.Extensible)
	case "BIT_STRING":
		return NewBitString(env.FixedSize, env.MinSize, env.MaxSize, env.Extensible)
	case "OCTET_STRING":
		return NewOctetString(env.FixedSize, env.MinSize, env.MaxSize, env.Extensible)
	case "IA5String", "VisibleString", "UTF8String":
		kind := map[string]CharStringKind{"IA5String": IA5String, "VisibleString": VisibleString, "UTF8String": UTF8String}[env.Type]
		var alphabet []rune
		if env.Alphabet != "" {
			alphabet = []rune(env.Alphabet)
		}
		return NewCharString(kind, env.FixedSize, env.MinSize, env.MaxSize, alphabet, env.Extensible)
	case "OBJECT_IDENTIFIER":
		return NewObjectIdentifier(), nil
	case "SEQUENCE":
		fields, err := unmarshalFields(env.Fields)
		if err != nil {
			return nil, err
		}
		extFields, err := unmarshalFields(env.ExtensionFields)
		if err != nil {
			return nil, err
		}
		return NewSequence(fields, extFields)
	case "SEQUENCE_OF":
		item, err := UnmarshalNode(env.Item)
		if err != nil {
			return nil, err
		}
		return NewSequenceOf(item, env.FixedSize, env.MinSize, env.MaxSize, env.Extensible)
	case "CHOICE":
		alts, err := unmarshalAlternatives(env.Alternatives)
		if err != nil {
			return nil, err
		}
		extAlts, err := unmarshalAlternatives(env.ExtensionAlternatives)
		if err != nil {
			return nil, err
		}
		return NewChoice(alts, extAlts)
	case "REFERENCE":
		return NewReference(env.Name), nil
	default:
		return nil, errs.New(errs.SchemaError, fmt.Sprintf("unknown schema node type %q", env.Type))
	}
}

func unmarshalFields(envs []fieldEnv) ([]Field, error) {
	out := make([]Field, len(envs))
	for i, fe := range envs {
		n, err := UnmarshalNode(fe.Schema)
		if err != nil {
			return nil, err
		}
		var def value.Value
		if len(fe.Default) > 0 {
			def, err = unmarshalValue(fe.Default)
			if err != nil {
				return nil, err
			}
		}
		out[i] = Field{Name: fe.Name, Schema: n, Optional: fe.Optional, Default: def}
	}
	return out, nil
}

func unmarshalAlternatives(envs []altEnv) ([]Alternative, error) {
	out := make([]Alternative, len(envs))
	for i, ae := range envs {
		n, err := UnmarshalNode(ae.Schema)
		if err != nil {
			return nil, err
		}
		out[i] = Alternative{Name: ae.Name, Schema: n}
	}
	return out, nil
}

// defaultValueEnvelope carries the small subset of value.Value kinds that
// can appear as a SEQUENCE field's DEFAULT: the schema tree's own JSON
// format only needs to round-trip literal defaults, not arbitrary decoded
// structures.
type defaultValueEnvelope struct {
	Kind   string `json:"kind"`
	Bool   bool   `json:"bool,omitempty"`
	Int    string `json:"int,omitempty"`
	String string `json:"string,omitempty"`
}

func marshalValue(v value.Value) (json.RawMessage, error) {
	switch val := v.(type) {
	case value.Bool:
		return json.Marshal(defaultValueEnvelope{Kind: "BOOLEAN", Bool: bool(val)})
	case value.Null:
		return json.Marshal(defaultValueEnvelope{Kind: "NULL"})
	case value.Int:
		return json.Marshal(defaultValueEnvelope{Kind: "INTEGER", Int: val.String()})
	case value.Enumerated:
		return json.Marshal(defaultValueEnvelope{Kind: "ENUMERATED", String: string(val)})
	case value.CharString:
		return json.Marshal(defaultValueEnvelope{Kind: "STRING", String: string(val)})
	default:
		return nil, errs.New(errs.SchemaError, fmt.Sprintf("unsupported default value kind %T", v))
	}
}

func unmarshalValue(data json.RawMessage) (value.Value, error) {
	var env defaultValueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.Wrap(errs.SchemaError, "malformed default value JSON", err)
	}
	switch env.Kind {
	case "BOOLEAN":
		return value.Bool(env.Bool), nil
	case "NULL":
		return value.Null{}, nil
	case "INTEGER":
		n, ok := new(big.Int).SetString(env.Int, 10)
		if !ok {
			return nil, errs.New(errs.SchemaError, fmt.Sprintf("malformed default integer %q", env.Int))
		}
		return value.Int{Int: n}, nil
	case "ENUMERATED":
		return value.Enumerated(env.String), nil
	case "STRING":
		return value.CharString(env.String), nil
	default:
		return nil, errs.New(errs.SchemaError, fmt.Sprintf("unknown default value kind %q", env.Kind))
	}
}

// Hash returns a structural digest of the node's canonical JSON encoding,
// usable as a map key for schema nodes. codec.BuildAll does not use it; it
// memoizes compiled references by registry name.
func Hash(n Node) (uint64, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

// Equal reports whether two nodes are structurally identical (same
// canonical JSON encoding).
func Equal(a, b Node) (bool, error) {
	da, err := json.Marshal(a)
	if err != nil {
		return false, err
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false, err
	}
	return string(normalizeJSON(da)) == string(normalizeJSON(db)), nil
}

// normalizeJSON re-marshals through a generic map/slice structure sorted by
// key so that field order in the envelope struct doesn't affect equality.
func normalizeJSON(data []byte) []byte {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return data
	}
	out, err := json.Marshal(sortKeys(v))
	if err != nil {
		return data
	}
	return out
}

func sortKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = sortKeys(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return val
	}
}
