package field

import (
	"math/big"
	"testing"
)

func TestFeltAddCommutative(t *testing.T) {
	a := FromUint64(123456789)
	b := FromUint64(987654321)
	if !a.Add(b).Equal(b.Add(a)) {
		t.Fatalf("addition is not commutative")
	}
}

func TestFeltMulAssociative(t *testing.T) {
	a := FromUint64(7)
	b := FromUint64(11)
	c := FromUint64(13)
	left := a.Mul(b).Mul(c)
	right := a.Mul(b.Mul(c))
	if !left.Equal(right) {
		t.Fatalf("multiplication is not associative: %s != %s", left, right)
	}
}

func TestFeltInverse(t *testing.T) {
	cases := []uint64{1, 2, 3, 12345, 999999937}
	for _, v := range cases {
		a := FromUint64(v)
		inv, err := a.Inv()
		if err != nil {
			t.Fatalf("Inv(%d) returned error: %v", v, err)
		}
		if !a.Mul(inv).IsOne() {
			t.Errorf("a * a^-1 != 1 for a=%d", v)
		}
	}
}

func TestFeltInverseOfZero(t *testing.T) {
	_, err := Zero().Inv()
	if err != ErrZeroInverse {
		t.Fatalf("expected ErrZeroInverse, got %v", err)
	}
}

func TestFeltSubNeg(t *testing.T) {
	a := FromUint64(42)
	b := FromUint64(100)
	if !a.Sub(b).Equal(a.Add(b.Neg())) {
		t.Fatalf("a-b != a+(-b)")
	}
}

func TestFeltCanonicalBytesRoundTrip(t *testing.T) {
	vals := []uint64{0, 1, 2, 3618502788}
	for _, v := range vals {
		a := FromUint64(v)
		b := a.Bytes()
		back, err := FromCanonicalBytes(b)
		if err != nil {
			t.Fatalf("FromCanonicalBytes failed: %v", err)
		}
		if !a.Equal(back) {
			t.Errorf("round trip mismatch for %d", v)
		}
	}
}

func TestFeltNonCanonicalRejected(t *testing.T) {
	var b [32]byte
	// modulus itself, little-endian, is not canonical (>= p).
	mbytes := Modulus().Bytes()
	for i := 0; i < len(mbytes) && i < 32; i++ {
		b[i] = mbytes[len(mbytes)-1-i]
	}
	if _, err := FromCanonicalBytes(b); err != ErrNonCanonical {
		t.Fatalf("expected ErrNonCanonical, got %v", err)
	}
}

func TestGeneratorOrder(t *testing.T) {
	pMinus1 := new(big.Int).Sub(Modulus(), big.NewInt(1))
	if !Generator.Pow(pMinus1).IsOne() {
		t.Fatalf("g^(p-1) != 1")
	}
}

func TestRootOfUnityOrder(t *testing.T) {
	order := new(big.Int).Lsh(big.NewInt(1), TwoAdicity)
	if !RootOfUnity.Pow(order).IsOne() {
		t.Fatalf("omega^(2^192) != 1")
	}
	halfOrder := new(big.Int).Rsh(order, 1)
	if RootOfUnity.Pow(halfOrder).IsOne() {
		t.Fatalf("omega has order dividing 2^191, expected exact order 2^192")
	}
}

func TestRootOfUnityForDomain(t *testing.T) {
	for _, size := range []uint64{2, 4, 8, 1024} {
		w, err := RootOfUnityForDomain(size)
		if err != nil {
			t.Fatalf("RootOfUnityForDomain(%d): %v", size, err)
		}
		if !w.PowUint64(size).IsOne() {
			t.Errorf("domain generator for size %d does not have order dividing %d", size, size)
		}
		if size > 1 && w.PowUint64(size/2).IsOne() {
			t.Errorf("domain generator for size %d has too small an order", size)
		}
	}
}

func TestRootOfUnityForDomainRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := RootOfUnityForDomain(3); err == nil {
		t.Fatalf("expected error for non-power-of-two domain size")
	}
}

func TestFelt2MulAndInverse(t *testing.T) {
	x := Felt2{A0: FromUint64(3), A1: FromUint64(5)}
	y := Felt2{A0: FromUint64(7), A1: FromUint64(11)}
	prod := x.Mul(y)
	if prod.IsZero() {
		t.Fatalf("unexpected zero product")
	}
	inv, err := x.Inv()
	if err != nil {
		t.Fatalf("Felt2.Inv failed: %v", err)
	}
	if !x.Mul(inv).Equal(One2()) {
		t.Fatalf("x * x^-1 != 1 in extension field")
	}
}

func TestZeroValueBehavesAsZero(t *testing.T) {
	var f Felt // the Go zero value, as produced by array/struct zero-initialization
	if !f.IsZero() {
		t.Fatalf("zero value of Felt should be the additive identity")
	}
	if !f.Equal(Zero()) {
		t.Fatalf("zero value of Felt should equal Zero()")
	}
	if !f.Add(FromUint64(5)).Equal(FromUint64(5)) {
		t.Fatalf("zero value + 5 should be 5")
	}
	var arr [3]Felt
	if !arr[1].IsZero() {
		t.Fatalf("array-zero-initialized Felt should be zero")
	}
}

func TestFelt2FrobeniusIsInvolutionOnNorm(t *testing.T) {
	x := Felt2{A0: FromUint64(21), A1: FromUint64(34)}
	n := x.Norm()
	// Norm(x) lies in the base field, so lifting and taking Frobenius again
	// must return the same value.
	lifted := FromBase(n)
	if !lifted.Frobenius().Equal(lifted) {
		t.Fatalf("Frobenius of a base-field-lifted element should be fixed")
	}
}
