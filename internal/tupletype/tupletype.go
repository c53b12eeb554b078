// Package tupletype defines the closed enumeration of preprocessed MPC tuple
// kinds Castor serves, along with the field and share-size constants each
// kind carries intrinsically.
//
// The set is fixed at build time, totally ordered by declaration order, and
// serializable as a short string tag so it can cross process and language
// boundaries (master/slave, cache values, repository rows) unchanged.
package tupletype

import "fmt"

// Field identifies the algebraic field a tuple type's shares live in.
type Field string

const (
	// FieldPrime denotes shares over a large prime-order field (GF(p)).
	FieldPrime Field = "prime"
	// FieldBinary denotes shares over a binary field (GF(2^k)).
	FieldBinary Field = "binary"
)

// TupleType is a closed, totally ordered enum of tuple kinds. The zero value
// is not a valid tuple type; always obtain one via the exported constants or
// Parse.
type TupleType struct {
	tag       string
	field     Field
	shareSize int
	ord       int
}

// String returns the wire tag for t, stable across deployments and languages.
func (t TupleType) String() string { return t.tag }

// Field returns the algebraic field backing t's shares.
func (t TupleType) Field() Field { return t.field }

// ShareSize returns the size in bytes of a single party's share of one tuple
// of type t.
func (t TupleType) ShareSize() int { return t.shareSize }

// Less orders tuple types by their fixed declaration order, giving a total
// order independent of string comparison (useful for deterministic iteration
// over a set of types).
func (t TupleType) Less(other TupleType) bool { return t.ord < other.ord }

// IsZero reports whether t is the unset zero value rather than one of the
// declared constants.
func (t TupleType) IsZero() bool { return t.tag == "" }

var (
	// MultiplicationTripleGFP is a Beaver multiplication triple over a
	// prime-order field.
	MultiplicationTripleGFP = TupleType{tag: "MULT_GFP", field: FieldPrime, shareSize: 16, ord: 0}
	// MultiplicationTripleGF2N is a Beaver multiplication triple over a
	// binary field.
	MultiplicationTripleGF2N = TupleType{tag: "MULT_GF2N", field: FieldBinary, shareSize: 16, ord: 1}
	// BitGFP is a random shared bit over a prime-order field.
	BitGFP = TupleType{tag: "BIT_GFP", field: FieldPrime, shareSize: 16, ord: 2}
	// BitGF2N is a random shared bit over a binary field.
	BitGF2N = TupleType{tag: "BIT_GF2N", field: FieldBinary, shareSize: 16, ord: 3}
	// InputMaskGFP is a random mask used to secret-share a party's private
	// input over a prime-order field.
	InputMaskGFP = TupleType{tag: "INPUT_MASK_GFP", field: FieldPrime, shareSize: 16, ord: 4}
	// InputMaskGF2N is a random mask used to secret-share a party's private
	// input over a binary field.
	InputMaskGF2N = TupleType{tag: "INPUT_MASK_GF2N", field: FieldBinary, shareSize: 16, ord: 5}
)

// All enumerates every declared tuple type in fixed, stable order.
func All() []TupleType {
	return []TupleType{
		MultiplicationTripleGFP,
		MultiplicationTripleGF2N,
		BitGFP,
		BitGF2N,
		InputMaskGFP,
		InputMaskGF2N,
	}
}

// Parse resolves a wire tag back to its TupleType. It returns an error for
// any tag outside the fixed set, since the enum is closed by design.
func Parse(tag string) (TupleType, error) {
	for _, t := range All() {
		if t.tag == tag {
			return t, nil
		}
	}
	return TupleType{}, fmt.Errorf("tupletype: unknown tuple type tag %q", tag)
}

// MarshalText implements encoding.TextMarshaler so TupleType serializes as
// its tag in JSON and other text-based formats.
func (t TupleType) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("tupletype: cannot marshal zero value")
	}
	return []byte(t.tag), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TupleType) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
