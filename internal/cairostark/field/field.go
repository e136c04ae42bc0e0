// Package field implements the 252-bit prime field used by the Cairo-STARK
// virtual machine: F_p with p = 2^251 + 17*2^192 + 1.
package field

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrZeroInverse is returned when attempting to invert the zero element.
var ErrZeroInverse = errors.New("field: cannot invert zero")

// ErrNonCanonical is returned when a byte string decodes to a value that is
// not the canonical (reduced) representative of a field element.
var ErrNonCanonical = errors.New("field: value is not canonical (>= modulus)")

// modulus is p = 2^251 + 17*2^192 + 1, the Cairo/StarkWare prime.
var modulus = computeModulus()

func computeModulus() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	term := new(big.Int).Lsh(big.NewInt(17), 192)
	p.Add(p, term)
	p.Add(p, big.NewInt(1))
	return p
}

// Modulus returns a copy of the field modulus.
func Modulus() *big.Int {
	return new(big.Int).Set(modulus)
}

// Felt is an element of the 252-bit prime field, represented by its
// canonical (reduced, non-negative) big.Int value. The representation
// choice mirrors the teacher codebase's big.Int-backed field element;
// spec.md leaves the representation up to the implementer and only
// constrains the external contract (arithmetic, canonical encoding,
// generator, root of unity).
type Felt struct {
	value *big.Int
}

func newReduced(v *big.Int) Felt {
	r := new(big.Int).Mod(v, modulus)
	return Felt{value: r}
}

// bigInt returns f's backing integer, treating the Go zero value of Felt
// (value == nil, as produced by e.g. `var f Felt` or a zero-initialized
// array/struct field) as the field's zero element. This makes Felt safe to
// use as the element type of plain Go arrays/slices without every call
// site having to remember to call Zero() explicitly.
func (f Felt) bigInt() *big.Int {
	if f.value == nil {
		return big.NewInt(0)
	}
	return f.value
}

// Zero returns the additive identity.
func Zero() Felt { return Felt{value: big.NewInt(0)} }

// One returns the multiplicative identity.
func One() Felt { return Felt{value: big.NewInt(1)} }

// Two returns 1+1.
func Two() Felt { return Felt{value: big.NewInt(2)} }

// FromUint64 creates a field element from a uint64.
func FromUint64(v uint64) Felt {
	return newReduced(new(big.Int).SetUint64(v))
}

// FromInt64 creates a field element from a signed int64, wrapping negative
// values modulo p.
func FromInt64(v int64) Felt {
	return newReduced(big.NewInt(v))
}

// FromBigInt creates a field element from an arbitrary big.Int, reducing it
// modulo p. Use FromCanonicalBytes when canonicality must be enforced.
func FromBigInt(v *big.Int) Felt {
	return newReduced(v)
}

// FromLimbs builds a field element from little-endian 64-bit limbs (most
// significant limb last), reducing modulo p.
func FromLimbs(limbs []uint64) Felt {
	v := new(big.Int)
	for i := len(limbs) - 1; i >= 0; i-- {
		v.Lsh(v, 64)
		v.Or(v, new(big.Int).SetUint64(limbs[i]))
	}
	return newReduced(v)
}

// FromCanonicalBytes decodes a 32-byte little-endian canonical encoding.
// It fails with ErrNonCanonical if the encoded value is >= the modulus.
func FromCanonicalBytes(b [32]byte) (Felt, error) {
	be := make([]byte, 32)
	for i := 0; i < 32; i++ {
		be[i] = b[31-i]
	}
	v := new(big.Int).SetBytes(be)
	if v.Cmp(modulus) >= 0 {
		return Felt{}, ErrNonCanonical
	}
	return Felt{value: v}, nil
}

// Bytes returns the fixed 32-byte little-endian canonical encoding.
func (f Felt) Bytes() [32]byte {
	var out [32]byte
	be := f.bigInt().FillBytes(make([]byte, 32))
	for i := 0; i < 32; i++ {
		out[i] = be[31-i]
	}
	return out
}

// AsInt returns the canonical non-negative integer representation.
func (f Felt) AsInt() *big.Int {
	return new(big.Int).Set(f.bigInt())
}

// Uint64 returns the canonical value truncated to a uint64 (panics if the
// value doesn't fit; intended for small values such as addresses/offsets).
func (f Felt) Uint64() uint64 {
	if !f.bigInt().IsUint64() {
		panic("field: value does not fit in uint64")
	}
	return f.bigInt().Uint64()
}

// FitsUint64 reports whether the canonical value fits in a uint64.
func (f Felt) FitsUint64() bool {
	return f.bigInt().IsUint64()
}

// Add returns f+g mod p.
func (f Felt) Add(g Felt) Felt {
	return newReduced(new(big.Int).Add(f.bigInt(), g.bigInt()))
}

// Sub returns f-g mod p.
func (f Felt) Sub(g Felt) Felt {
	return newReduced(new(big.Int).Sub(f.bigInt(), g.bigInt()))
}

// Neg returns -f mod p.
func (f Felt) Neg() Felt {
	return newReduced(new(big.Int).Neg(f.bigInt()))
}

// Mul returns f*g mod p.
func (f Felt) Mul(g Felt) Felt {
	return newReduced(new(big.Int).Mul(f.bigInt(), g.bigInt()))
}

// Inv returns the multiplicative inverse of f. Fails with ErrZeroInverse
// when f is zero.
func (f Felt) Inv() (Felt, error) {
	if f.IsZero() {
		return Felt{}, ErrZeroInverse
	}
	inv := new(big.Int).ModInverse(f.bigInt(), modulus)
	if inv == nil {
		return Felt{}, ErrZeroInverse
	}
	return Felt{value: inv}, nil
}

// Div returns f/g mod p. Fails with ErrZeroInverse when g is zero.
func (f Felt) Div(g Felt) (Felt, error) {
	inv, err := g.Inv()
	if err != nil {
		return Felt{}, err
	}
	return f.Mul(inv), nil
}

// Pow returns f raised to a non-negative integer exponent.
func (f Felt) Pow(exp *big.Int) Felt {
	if exp.Sign() < 0 {
		inv, err := f.Inv()
		if err != nil {
			return Zero()
		}
		return inv.Pow(new(big.Int).Neg(exp))
	}
	r := new(big.Int).Exp(f.bigInt(), exp, modulus)
	return Felt{value: r}
}

// PowUint64 is a convenience wrapper around Pow for a uint64 exponent.
func (f Felt) PowUint64(exp uint64) Felt {
	return f.Pow(new(big.Int).SetUint64(exp))
}

// Square returns f*f.
func (f Felt) Square() Felt {
	return f.Mul(f)
}

// Equal reports whether f and g represent the same field element.
func (f Felt) Equal(g Felt) bool {
	return f.bigInt().Cmp(g.bigInt()) == 0
}

// IsZero reports whether f is the additive identity.
func (f Felt) IsZero() bool {
	return f.bigInt().Sign() == 0
}

// IsOne reports whether f is the multiplicative identity.
func (f Felt) IsOne() bool {
	return f.bigInt().Cmp(big.NewInt(1)) == 0
}

// LessThan orders elements by their canonical integer representative. It
// has no field-theoretic meaning but is used by the trace builder to sort
// addresses and offsets.
func (f Felt) LessThan(g Felt) bool {
	return f.bigInt().Cmp(g.bigInt()) < 0
}

// String returns the canonical decimal representation.
func (f Felt) String() string {
	return f.bigInt().String()
}

// GoString supports %#v-style debugging.
func (f Felt) GoString() string {
	return fmt.Sprintf("field.Felt(%s)", f.bigInt().String())
}

// GobEncode implements gob.GobEncoder via the same 32-byte canonical
// encoding Bytes uses, so that Felt's unexported backing *big.Int does not
// need to be itself gob-visible. This is what lets engine.Proof (and the
// FRI transcript structures nested under it) round-trip through
// encoding/gob for the on-disk proof_bytes blob pkg/cairostarkvm writes.
func (f Felt) GobEncode() ([]byte, error) {
	b := f.Bytes()
	return b[:], nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (f *Felt) GobDecode(data []byte) error {
	var b [32]byte
	copy(b[:], data)
	decoded, err := FromCanonicalBytes(b)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// Generator is the fixed multiplicative generator g = 3 used throughout
// the field's subgroup structure.
var Generator = FromUint64(3)

// TwoAdicity is the largest k such that 2^k divides p-1.
const TwoAdicity = 192

// RootOfUnity is a primitive 2^192-th root of unity: g^((p-1)/2^192).
var RootOfUnity = computeRootOfUnity()

func computeRootOfUnity() Felt {
	pMinus1 := new(big.Int).Sub(modulus, big.NewInt(1))
	order := new(big.Int).Lsh(big.NewInt(1), TwoAdicity)
	exp := new(big.Int).Div(pMinus1, order)
	return Generator.Pow(exp)
}

// RootOfUnityForDomain returns a generator of the unique multiplicative
// subgroup of the given power-of-two size. size must divide 2^TwoAdicity.
func RootOfUnityForDomain(size uint64) (Felt, error) {
	if size == 0 || (size&(size-1)) != 0 {
		return Felt{}, fmt.Errorf("field: domain size %d is not a power of two", size)
	}
	// size = 2^k; we need ω^(2^(192-k))
	k := 0
	for s := size; s > 1; s >>= 1 {
		k++
	}
	if k > TwoAdicity {
		return Felt{}, fmt.Errorf("field: domain size %d exceeds two-adicity 2^%d", size, TwoAdicity)
	}
	shift := uint(TwoAdicity - k)
	return RootOfUnity.Pow(new(big.Int).Lsh(big.NewInt(1), shift)), nil
}
