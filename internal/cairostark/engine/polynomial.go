package engine

import (
	"fmt"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
)

// Polynomial is a dense coefficient-form univariate polynomial over the
// base field, grounded on the teacher's core/polynomial.go (NewPolynomial,
// Eval, LagrangeInterpolation) but trimmed to the operations the engine
// actually needs to interpolate trace columns and evaluate the composition
// polynomial: construction, evaluation (in the base field and, for the
// out-of-domain check, in the quadratic extension), and domain
// interpolation via the inverse DFT (the teacher's Lagrange interpolation
// works for arbitrary point sets; ours always interpolates over a
// multiplicative subgroup coset, so the DFT form is used instead since it
// is what that structure makes available and the teacher's own FRI code
// assumes evaluation domains of exactly this shape).
type Polynomial struct {
	coeffs []field.Felt // coeffs[i] is the coefficient of x^i
}

// NewPolynomial wraps coeffs as-is (no trimming is required by any caller
// in this engine: every polynomial here is built either by interpolation,
// which always yields exactly len(domain) coefficients, or by explicit
// degree-bounded construction).
func NewPolynomial(coeffs []field.Felt) Polynomial {
	return Polynomial{coeffs: coeffs}
}

// Degree returns the nominal degree (len(coeffs)-1); callers that need the
// true degree after cancellation must trim themselves.
func (p Polynomial) Degree() int {
	return len(p.coeffs) - 1
}

// Coeffs returns the polynomial's coefficients, low-degree first.
func (p Polynomial) Coeffs() []field.Felt {
	return p.coeffs
}

// Eval evaluates p at x via Horner's method.
func (p Polynomial) Eval(x field.Felt) field.Felt {
	result := field.Zero()
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		result = result.Mul(x).Add(p.coeffs[i])
	}
	return result
}

// EvalExt evaluates p at an extension-field point, lifting each base-field
// coefficient via field.FromBase. Used by the engine's out-of-domain
// consistency check (spec §9's polymorphic trace-element design note).
func (p Polynomial) EvalExt(x field.Felt2) field.Felt2 {
	result := field.Zero2()
	for i := len(p.coeffs) - 1; i >= 0; i-- {
		result = result.Mul(x).Add(field.FromBase(p.coeffs[i]))
	}
	return result
}

// EvalOnDomain evaluates p at every point of domain, in order.
func (p Polynomial) EvalOnDomain(domain []field.Felt) []field.Felt {
	out := make([]field.Felt, len(domain))
	for i, x := range domain {
		out[i] = p.Eval(x)
	}
	return out
}

// InterpolateSubgroup recovers the unique polynomial of degree < len(values)
// whose evaluation at generator^i equals values[i], where generator has
// order len(values). This is the inverse DFT: c_k = (1/N) * sum_i
// values[i] * generator^(-ik).
func InterpolateSubgroup(values []field.Felt, generator field.Felt) (Polynomial, error) {
	n := len(values)
	if n == 0 {
		return Polynomial{}, fmt.Errorf("engine: cannot interpolate zero values")
	}
	nInv, err := field.FromUint64(uint64(n)).Inv()
	if err != nil {
		return Polynomial{}, err
	}
	genInv, err := generator.Inv()
	if err != nil {
		return Polynomial{}, err
	}
	// invPow[j] = genInv^j for j in [0,n); coeffs[k] then only needs a table
	// lookup at index (i*k) mod n instead of an extra O(n) power ladder.
	invPow := make([]field.Felt, n)
	invPow[0] = field.One()
	for j := 1; j < n; j++ {
		invPow[j] = invPow[j-1].Mul(genInv)
	}
	coeffs := make([]field.Felt, n)
	for k := 0; k < n; k++ {
		acc := field.Zero()
		idx := 0
		for i := 0; i < n; i++ {
			acc = acc.Add(values[i].Mul(invPow[idx]))
			idx += k
			if idx >= n {
				idx -= n
			}
		}
		coeffs[k] = acc.Mul(nInv)
	}
	return Polynomial{coeffs: coeffs}, nil
}

// InterpolateCoset recovers the polynomial of degree < len(values) whose
// evaluation at offset*generator^i equals values[i]. It interpolates the
// substituted function h(u) = f(offset*u) over the subgroup (InterpolateSubgroup)
// and rescales h's coefficients by offset^-k to recover f's.
func InterpolateCoset(values []field.Felt, generator, offset field.Felt) (Polynomial, error) {
	h, err := InterpolateSubgroup(values, generator)
	if err != nil {
		return Polynomial{}, err
	}
	offsetInv, err := offset.Inv()
	if err != nil {
		return Polynomial{}, err
	}
	coeffs := make([]field.Felt, len(h.coeffs))
	power := field.One()
	for k, c := range h.coeffs {
		coeffs[k] = c.Mul(power)
		power = power.Mul(offsetInv)
	}
	return Polynomial{coeffs: coeffs}, nil
}
