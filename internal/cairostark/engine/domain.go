package engine

import "github.com/cairostark/cairo-stark-vm/internal/cairostark/field"

// Domain is a multiplicative coset offset*<generator> of a given size,
// following the teacher's FRIProtocol's S^(i) = <omega> construction
// (protocols/fri.go), generalised with a coset offset so the low-degree
// extension domain never intersects the trace domain itself.
type Domain struct {
	Offset    field.Felt
	Generator field.Felt
	Size      int
	points    []field.Felt
}

// NewDomain builds offset*generator^i for i in [0,size).
func NewDomain(offset, generator field.Felt, size int) Domain {
	points := make([]field.Felt, size)
	p := offset
	for i := 0; i < size; i++ {
		points[i] = p
		p = p.Mul(generator)
	}
	return Domain{Offset: offset, Generator: generator, Size: size, points: points}
}

// Points returns the domain's points in order.
func (d Domain) Points() []field.Felt {
	return d.points
}

// TraceDomain returns the size-T subgroup <w_T> used to interpolate the
// trace columns (no coset offset: trace polynomials are defined by their
// values on the subgroup itself).
func TraceDomain(t int) (Domain, error) {
	w, err := field.RootOfUnityForDomain(uint64(t))
	if err != nil {
		return Domain{}, err
	}
	return NewDomain(field.One(), w, t), nil
}

// LDEDomain returns the low-degree-extension domain: the coset
// Generator*<w_N> of size t*blowup, shifted off the trace subgroup by the
// field's fixed multiplicative generator so LDE evaluation never divides by
// zero against the trace's own vanishing polynomial.
func LDEDomain(t, blowup int) (Domain, error) {
	n := t * blowup
	w, err := field.RootOfUnityForDomain(uint64(n))
	if err != nil {
		return Domain{}, err
	}
	return NewDomain(field.Generator, w, n), nil
}

// VanishingAtFull evaluates the trace domain's vanishing polynomial
// Z_H(x) = x^T - 1 at x.
func VanishingAtFull(x field.Felt, t int) field.Felt {
	return x.PowUint64(uint64(t)).Sub(field.One())
}

// VanishingExceptLast evaluates (x^T-1)/(x-lastPoint), the zerofier used by
// aux-segment transitions which are unconditional (no selector gating) and
// therefore need an explicit last-row exemption (spec §4.G: "Exemptions
// disable last-row transitions ... last row for aux").
func VanishingExceptLast(x field.Felt, t int, lastPoint field.Felt) (field.Felt, error) {
	num := VanishingAtFull(x, t)
	den := x.Sub(lastPoint)
	return num.Div(den)
}
