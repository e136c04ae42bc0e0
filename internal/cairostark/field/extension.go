package field

// Felt2 is an element of the quadratic extension F_p[x]/(x^2 - x - 1),
// represented as a0 + a1*phi where phi^2 = phi + 1. This mirrors the
// teacher's layering of a degree-2 algebraic structure over a base field
// (core/mersenne_field.go's CirclePoint), adapted to the multiplication
// rule spec.md fixes for this extension.
type Felt2 struct {
	A0 Felt
	A1 Felt
}

// Zero2 returns the additive identity of the extension field.
func Zero2() Felt2 {
	return Felt2{A0: Zero(), A1: Zero()}
}

// One2 returns the multiplicative identity of the extension field.
func One2() Felt2 {
	return Felt2{A0: One(), A1: Zero()}
}

// FromBase lifts a base-field element into the extension.
func FromBase(f Felt) Felt2 {
	return Felt2{A0: f, A1: Zero()}
}

// Add returns x+y.
func (x Felt2) Add(y Felt2) Felt2 {
	return Felt2{A0: x.A0.Add(y.A0), A1: x.A1.Add(y.A1)}
}

// Sub returns x-y.
func (x Felt2) Sub(y Felt2) Felt2 {
	return Felt2{A0: x.A0.Sub(y.A0), A1: x.A1.Sub(y.A1)}
}

// Neg returns -x.
func (x Felt2) Neg() Felt2 {
	return Felt2{A0: x.A0.Neg(), A1: x.A1.Neg()}
}

// Mul returns x*y using the reduction phi^2 = phi + 1:
//
//	(a0 + a1*phi)(b0 + b1*phi)
//	  = a0*b0 + (a0*b1 + a1*b0)*phi + a1*b1*phi^2
//	  = (a0*b0 + a1*b1) + (a0*b1 + a1*b0 + a1*b1)*phi
func (x Felt2) Mul(y Felt2) Felt2 {
	a0b0 := x.A0.Mul(y.A0)
	a1b1 := x.A1.Mul(y.A1)
	cross := x.A0.Mul(y.A1).Add(x.A1.Mul(y.A0))
	return Felt2{
		A0: a0b0.Add(a1b1),
		A1: cross.Add(a1b1),
	}
}

// Square returns x*x.
func (x Felt2) Square() Felt2 {
	return x.Mul(x)
}

// Frobenius returns x^p, the nontrivial field automorphism of the
// extension over the base field. For this quadratic extension it maps
// a0 + a1*phi to a0 + a1*(1-phi) = (a0+a1) - a1*phi.
func (x Felt2) Frobenius() Felt2 {
	return Felt2{A0: x.A0.Add(x.A1), A1: x.A1.Neg()}
}

// Norm returns x * x^p, which lies in the base field.
func (x Felt2) Norm() Felt {
	n := x.Mul(x.Frobenius())
	if !n.A1.IsZero() {
		panic("field: norm of extension element is not in the base field")
	}
	return n.A0
}

// Inv returns the multiplicative inverse of x via x^-1 = x^p / Norm(x).
func (x Felt2) Inv() (Felt2, error) {
	if x.IsZero() {
		return Felt2{}, ErrZeroInverse
	}
	norm := x.Norm()
	normInv, err := norm.Inv()
	if err != nil {
		return Felt2{}, err
	}
	conj := x.Frobenius()
	return Felt2{A0: conj.A0.Mul(normInv), A1: conj.A1.Mul(normInv)}, nil
}

// Div returns x/y.
func (x Felt2) Div(y Felt2) (Felt2, error) {
	inv, err := y.Inv()
	if err != nil {
		return Felt2{}, err
	}
	return x.Mul(inv), nil
}

// Equal reports whether x and y represent the same extension element.
func (x Felt2) Equal(y Felt2) bool {
	return x.A0.Equal(y.A0) && x.A1.Equal(y.A1)
}

// IsZero reports whether x is the additive identity.
func (x Felt2) IsZero() bool {
	return x.A0.IsZero() && x.A1.IsZero()
}

// String renders x as "a0 + a1*phi".
func (x Felt2) String() string {
	return x.A0.String() + " + " + x.A1.String() + "*phi"
}
