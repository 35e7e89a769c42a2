package per

import "errors"

// ErrCharacterNotInAlphabet is returned when encoding a character string
// against an explicit alphabet and a rune in the value is not a member of
// that alphabet.
var ErrCharacterNotInAlphabet = errors.New("per: character not in alphabet")

// ErrInvalidChoiceIndex describes a decoded enumerated or choice index that
// has no corresponding declared value. The decoders in this package do not
// check indices against declared values and do not return it; lib/codec
// reports such indices as errs.DecodeError.
var ErrInvalidChoiceIndex = errors.New("per: decoded index out of range")

// ErrReservedLengthForm is returned when a length determinant's leading
// bits do not correspond to any of the forms defined in X.691 clause 11.9.
var ErrReservedLengthForm = errors.New("per: reserved length determinant form")
