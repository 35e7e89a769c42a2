package value

import "bytes"

// Equal reports whether a and b are the same value. Value is a closed
// interface, so — like schema.Equal/schema.Hash — this is a package-level
// function rather than a method: Value's implementers can't each grow a
// bespoke comparison method without leaking the union's shape outward.
//
// It is used to decide whether a SEQUENCE field equal to its declared
// DEFAULT can be omitted from the wire (§4.2 SEQUENCE step 2).
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Null:
		_, ok := b.(Null)
		return ok
	case Int:
		bv, ok := b.(Int)
		if !ok || av.Int == nil || bv.Int == nil {
			return ok && av.Int == nil && bv.Int == nil
		}
		return av.Cmp(bv.Int) == 0
	case BitString:
		bv, ok := b.(BitString)
		return ok && av.BitLength == bv.BitLength && bytes.Equal(av.Bytes, bv.Bytes)
	case OctetString:
		bv, ok := b.(OctetString)
		return ok && bytes.Equal(av, bv)
	case CharString:
		bv, ok := b.(CharString)
		return ok && av == bv
	case ObjectIdentifier:
		bv, ok := b.(ObjectIdentifier)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i] != bv[i] {
				return false
			}
		}
		return true
	case Enumerated:
		bv, ok := b.(Enumerated)
		return ok && av == bv
	case *Sequence:
		bv, ok := b.(*Sequence)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, name := range av.Names() {
			av1, _ := av.Get(name)
			bv1, present := bv.Get(name)
			if !present || !Equal(av1, bv1) {
				return false
			}
		}
		return true
	case SequenceOf:
		bv, ok := b.(SequenceOf)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Choice:
		bv, ok := b.(Choice)
		return ok && av.Name == bv.Name && Equal(av.Value, bv.Value)
	case RawBits:
		bv, ok := b.(RawBits)
		return ok && av.BitLen == bv.BitLen && bytes.Equal(av.Bytes, bv.Bytes)
	default:
		return false
	}
}
