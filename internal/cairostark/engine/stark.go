// Prover/verifier orchestration: threads a built main trace and its
// auxiliary segments through commitment, the composition polynomial, an
// out-of-domain consistency spot check in the quadratic extension, and
// FRI. This is the engine-side half of spec.md §4.H's prove/verify facade
// (the Go-level split follows the teacher's internal/vybium-starks-vm/stark.go
// orchestrator, which likewise owns the commit/channel/FRI wiring while the
// VM-specific trace assembly lives in its own package).
package engine

import (
	"fmt"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/air"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/auxtrace"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/tracebuilder"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/vmexec"
)

// Proof bundles everything the verifier needs beyond the public inputs:
// the three round commitments, the out-of-domain spot-check openings, and
// the FRI proof over the composition polynomial.
type Proof struct {
	MainRoot []byte
	AuxRoot  []byte
	CompRoot []byte

	OODPoint    field.Felt2
	OODMainCurr [tracebuilder.NumColumns]field.Felt2
	OODMainNext [tracebuilder.NumColumns]field.Felt2
	OODMemCurr  [auxtrace.MemoryWidth]field.Felt2
	OODMemNext  [auxtrace.MemoryWidth]field.Felt2
	OODRCCurr   [auxtrace.RangeCheckWidth]field.Felt2
	OODRCNext   [auxtrace.RangeCheckWidth]field.Felt2
	OODComp     field.Felt2

	FRI *FRIProof
}

// PublicData is everything about a trace the verifier is allowed to see:
// the data spec.md §6's PublicInputs wire format carries, plus the padded
// trace length T the prover committed to.
type PublicData struct {
	TraceLen  int
	NumSteps  int
	Init, Fin vmexec.Registers
	RCMin     uint16
	RCMax     uint16
	PublicMem []field.Felt
}

func powFelt2(x field.Felt2, exp uint64) field.Felt2 {
	result := field.One2()
	base := x
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		exp >>= 1
	}
	return result
}

func vanishingExt(x field.Felt2, t int) field.Felt2 {
	return powFelt2(x, uint64(t)).Sub(field.One2())
}

func vanishingExceptLastExt(x field.Felt2, t int, lastPoint field.Felt2) (field.Felt2, error) {
	num := vanishingExt(x, t)
	den := x.Sub(lastPoint)
	return num.Div(den)
}

// compositionShares is the common algebra behind both BuildComposition
// (evaluated pointwise over the whole LDE domain) and the out-of-domain
// check (evaluated once, at a random extension point): the same gated
// constraints, divided by the same zerofiers, combined with the same
// Fiat-Shamir coefficients.
type compositionShares struct {
	mainCurr, mainNext [tracebuilder.NumColumns]field.Felt2
	memCurr, memNext   [auxtrace.MemoryWidth]field.Felt2
	rcCurr, rcNext     [auxtrace.RangeCheckWidth]field.Felt2
}

func evaluateCompositionExt(x field.Felt2, s compositionShares, coeffs []field.Felt, pub PublicData, z, alpha, zPrime field.Felt2, tracePoint0, lastTracePoint, numStepsPoint field.Felt2) (field.Felt2, error) {
	acc := field.Zero2()
	ci := 0
	next := func() field.Felt2 { c := field.FromBase(coeffs[ci]); ci++; return c }

	mainVals := air.EvaluateMainTransitionsExt(air.MainFrameExt{Curr: s.mainCurr, Next: s.mainNext})
	zMain := vanishingExt(x, pub.TraceLen)
	zMainInv, err := zMain.Inv()
	if err != nil {
		return field.Felt2{}, err
	}
	for _, v := range mainVals {
		acc = acc.Add(next().Mul(v).Mul(zMainInv))
	}

	rawAddr := [4]int{tracebuilder.ColPC, tracebuilder.ColDstAddr, tracebuilder.ColOp0Addr, tracebuilder.ColOp1Addr}
	rawVal := [4]int{tracebuilder.ColInst, tracebuilder.ColDst, tracebuilder.ColOp0, tracebuilder.ColOp1}
	for k := 0; k < 4; k++ {
		wraps := k == 3
		var z4 field.Felt2
		if wraps {
			var err error
			z4, err = vanishingExceptLastExt(x, pub.TraceLen, lastTracePoint)
			if err != nil {
				return field.Felt2{}, err
			}
		} else {
			z4 = vanishingExt(x, pub.TraceLen)
		}
		z4Inv, err := z4.Inv()
		if err != nil {
			return field.Felt2{}, err
		}
		var aRaw, vRaw, aPrimeNext, vPrimeNext, pNext field.Felt2
		if !wraps {
			aRaw = s.mainCurr[rawAddr[k+1]]
			vRaw = s.mainCurr[rawVal[k+1]]
			aPrimeNext = s.memCurr[auxtrace.MemAPrimeStart+k+1]
			vPrimeNext = s.memCurr[auxtrace.MemVPrimeStart+k+1]
			pNext = s.memCurr[auxtrace.MemPStart+k+1]
		} else {
			aRaw = s.mainNext[rawAddr[0]]
			vRaw = s.mainNext[rawVal[0]]
			aPrimeNext = s.memNext[auxtrace.MemAPrimeStart]
			vPrimeNext = s.memNext[auxtrace.MemVPrimeStart]
			pNext = s.memNext[auxtrace.MemPStart]
		}
		frame := air.AuxFrameExt{
			ARaw: aRaw, VRaw: vRaw,
			APrime: s.memCurr[auxtrace.MemAPrimeStart+k], APrimeNext: aPrimeNext,
			VPrime: s.memCurr[auxtrace.MemVPrimeStart+k], VPrimeNext: vPrimeNext,
			P: s.memCurr[auxtrace.MemPStart+k], PNext: pNext,
			Z: z, Alpha: alpha,
		}
		vals := air.AuxTransitionConstraintsMemoryExt(frame)
		for _, v := range vals {
			acc = acc.Add(next().Mul(v).Mul(z4Inv))
		}
	}

	rawOff := [3]int{tracebuilder.ColOffDst, tracebuilder.ColOffOp0, tracebuilder.ColOffOp1}
	for k := 0; k < 3; k++ {
		wraps := k == 2
		var z3 field.Felt2
		if wraps {
			var err error
			z3, err = vanishingExceptLastExt(x, pub.TraceLen, lastTracePoint)
			if err != nil {
				return field.Felt2{}, err
			}
		} else {
			z3 = vanishingExt(x, pub.TraceLen)
		}
		z3Inv, err := z3.Inv()
		if err != nil {
			return field.Felt2{}, err
		}
		var aRaw, aPrimeNext, pNext field.Felt2
		if !wraps {
			aRaw = s.mainCurr[rawOff[k+1]]
			aPrimeNext = s.rcCurr[auxtrace.RCAPrimeStart+k+1]
			pNext = s.rcCurr[auxtrace.RCPStart+k+1]
		} else {
			aRaw = s.mainNext[rawOff[0]]
			aPrimeNext = s.rcNext[auxtrace.RCAPrimeStart]
			pNext = s.rcNext[auxtrace.RCPStart]
		}
		frame := air.AuxFrameExt{
			ARaw:   aRaw,
			APrime: s.rcCurr[auxtrace.RCAPrimeStart+k], APrimeNext: aPrimeNext,
			P: s.rcCurr[auxtrace.RCPStart+k], PNext: pNext,
			Z: zPrime,
		}
		vals := air.AuxTransitionConstraintsRangeCheckExt(frame)
		for _, v := range vals {
			acc = acc.Add(next().Mul(v).Mul(z3Inv))
		}
	}

	boundary := func(value, point, expected field.Felt2) error {
		den := x.Sub(point)
		if den.IsZero() {
			return nil
		}
		q, err := value.Sub(expected).Div(den)
		if err != nil {
			return err
		}
		acc = acc.Add(next().Mul(q))
		return nil
	}

	zPow := powFelt2(z, uint64(len(pub.PublicMem)))
	den := field.One2()
	for i, m := range pub.PublicMem {
		den = den.Mul(z.Sub(field.FromBase(field.FromUint64(uint64(i+1))).Add(alpha.Mul(field.FromBase(m)))))
	}
	pmExpected, err := zPow.Div(den)
	if err != nil {
		return field.Felt2{}, err
	}

	if err := boundary(s.mainCurr[tracebuilder.ColPC], tracePoint0, field.FromBase(pub.Init.PC)); err != nil {
		return field.Felt2{}, err
	}
	if err := boundary(s.mainCurr[tracebuilder.ColPC], numStepsPoint, field.FromBase(pub.Fin.PC)); err != nil {
		return field.Felt2{}, err
	}
	if err := boundary(s.mainCurr[tracebuilder.ColAP], tracePoint0, field.FromBase(pub.Init.AP)); err != nil {
		return field.Felt2{}, err
	}
	if err := boundary(s.mainCurr[tracebuilder.ColAP], numStepsPoint, field.FromBase(pub.Fin.AP)); err != nil {
		return field.Felt2{}, err
	}
	if err := boundary(s.memCurr[auxtrace.MemPStart+3], lastTracePoint, pmExpected); err != nil {
		return field.Felt2{}, err
	}
	if err := boundary(s.rcCurr[auxtrace.RCAPrimeStart], tracePoint0, field.FromBase(field.FromUint64(uint64(pub.RCMin)))); err != nil {
		return field.Felt2{}, err
	}
	if err := boundary(s.rcCurr[auxtrace.RCAPrimeStart+2], lastTracePoint, field.FromBase(field.FromUint64(uint64(pub.RCMax)))); err != nil {
		return field.Felt2{}, err
	}

	return acc, nil
}

// Prove runs the full commit/composition/FRI pipeline over a completed main
// trace and its auxiliary segments. z, alpha, zPrime are the randomness
// already used to build seg (auxtrace.Build); they are not drawn from
// channel. channel is the proof's own transcript: Verify replays every
// draw made here from a channel in the same starting state.
func Prove(tr tracebuilder.Trace, seg auxtrace.Segments, z, alpha, zPrime field.Felt, channel *Channel, opts Options) (*Proof, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	mainTree, err := commitRows(tr.Rows[:], func(r tracebuilder.Row) []field.Felt { return r[:] })
	if err != nil {
		return nil, err
	}
	channel.Send(mainTree.Root())

	auxRows := make([][]field.Felt, len(seg.Memory))
	for i := range seg.Memory {
		combined := make([]field.Felt, 0, auxtrace.MemoryWidth+auxtrace.RangeCheckWidth)
		combined = append(combined, seg.Memory[i][:]...)
		if i < len(seg.RangeCheck) {
			combined = append(combined, seg.RangeCheck[i][:]...)
		}
		auxRows[i] = combined
	}
	auxTree, err := commitRows(auxRows, func(r []field.Felt) []field.Felt { return r })
	if err != nil {
		return nil, err
	}
	channel.Send(auxTree.Root())

	lde, err := BuildLDE(tr, seg, opts.BlowupFactor)
	if err != nil {
		return nil, err
	}

	coeffCount := compositionConstraintCount()
	coeffs := make([]field.Felt, coeffCount)
	for i := range coeffs {
		coeffs[i] = channel.ReceiveFelt()
	}

	compEvals, err := BuildComposition(tr, seg, lde, coeffs, z, alpha)
	if err != nil {
		return nil, err
	}
	compTree, err := NewMerkleTree(compEvals)
	if err != nil {
		return nil, err
	}
	channel.Send(compTree.Root())

	oodPoint := field.Felt2{A0: channel.ReceiveFelt(), A1: channel.ReceiveFelt()}
	genExt := field.FromBase(lde.TraceDomain.Generator)
	oodNextPoint := oodPoint.Mul(genExt)

	var curr, next [tracebuilder.NumColumns]field.Felt2
	for c := 0; c < tracebuilder.NumColumns; c++ {
		curr[c] = lde.MainPoly[c].EvalExt(oodPoint)
		next[c] = lde.MainPoly[c].EvalExt(oodNextPoint)
	}
	var memCurr, memNext [auxtrace.MemoryWidth]field.Felt2
	for c := 0; c < auxtrace.MemoryWidth; c++ {
		memCurr[c] = lde.MemPoly[c].EvalExt(oodPoint)
		memNext[c] = lde.MemPoly[c].EvalExt(oodNextPoint)
	}
	var rcCurr, rcNext [auxtrace.RangeCheckWidth]field.Felt2
	for c := 0; c < auxtrace.RangeCheckWidth; c++ {
		rcCurr[c] = lde.RCPoly[c].EvalExt(oodPoint)
		rcNext[c] = lde.RCPoly[c].EvalExt(oodNextPoint)
	}

	compPoly, err := InterpolateCoset(compEvals, lde.LDEDomain.Generator, lde.LDEDomain.Offset)
	if err != nil {
		return nil, err
	}
	oodComp := compPoly.EvalExt(oodPoint)

	for c := 0; c < tracebuilder.NumColumns; c++ {
		channel.SendFelt(curr[c].A0)
		channel.SendFelt(curr[c].A1)
	}
	channel.SendFelt(oodComp.A0)
	channel.SendFelt(oodComp.A1)

	friProof, err := FRIProve(compEvals, lde.LDEDomain, channel, opts)
	if err != nil {
		return nil, err
	}

	return &Proof{
		MainRoot:    mainTree.Root(),
		AuxRoot:     auxTree.Root(),
		CompRoot:    compTree.Root(),
		OODPoint:    oodPoint,
		OODMainCurr: curr,
		OODMainNext: next,
		OODMemCurr:  memCurr,
		OODMemNext:  memNext,
		OODRCCurr:   rcCurr,
		OODRCNext:   rcNext,
		OODComp:     oodComp,
		FRI:         friProof,
	}, nil
}

// Verify replays the transcript against a claimed Proof, checks that the
// out-of-domain openings actually satisfy the AIR's main/aux transition and
// boundary identities at the sampled extension point, and checks FRI's
// low-degree certificate for the committed composition values.
func Verify(pub PublicData, z, alpha, zPrime field.Felt, proof *Proof, channel *Channel, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if proof == nil || proof.FRI == nil {
		return fmt.Errorf("engine: missing proof")
	}

	channel.Send(proof.MainRoot)
	channel.Send(proof.AuxRoot)

	coeffCount := compositionConstraintCount()
	coeffs := make([]field.Felt, coeffCount)
	for i := range coeffs {
		coeffs[i] = channel.ReceiveFelt()
	}
	channel.Send(proof.CompRoot)

	oodPoint := field.Felt2{A0: channel.ReceiveFelt(), A1: channel.ReceiveFelt()}
	if !oodPoint.Equal(proof.OODPoint) {
		return fmt.Errorf("engine: out-of-domain point does not match transcript")
	}

	for c := 0; c < tracebuilder.NumColumns; c++ {
		channel.SendFelt(proof.OODMainCurr[c].A0)
		channel.SendFelt(proof.OODMainCurr[c].A1)
	}
	channel.SendFelt(proof.OODComp.A0)
	channel.SendFelt(proof.OODComp.A1)

	td, err := TraceDomain(pub.TraceLen)
	if err != nil {
		return err
	}
	tracePoint0 := field.FromBase(td.Points()[0])
	lastTracePoint := field.FromBase(td.Points()[pub.TraceLen-1])
	// tracebuilder.Build appends the dedicated final-register row right after
	// the NumSteps executed rows, at physical index NumSteps; that is the row
	// the final pc/ap boundary below targets, not NumSteps-1 (which still
	// holds the last executed instruction's pre-step registers).
	finIdx := 0
	if pub.NumSteps < pub.TraceLen {
		finIdx = pub.NumSteps
	}
	numStepsPoint := field.FromBase(td.Points()[finIdx])

	shares := compositionShares{
		mainCurr: proof.OODMainCurr, mainNext: proof.OODMainNext,
		memCurr: proof.OODMemCurr, memNext: proof.OODMemNext,
		rcCurr: proof.OODRCCurr, rcNext: proof.OODRCNext,
	}
	predicted, err := evaluateCompositionExt(oodPoint, shares, coeffs, pub, field.FromBase(z), field.FromBase(alpha), field.FromBase(zPrime), tracePoint0, lastTracePoint, numStepsPoint)
	if err != nil {
		return err
	}
	if !predicted.Equal(proof.OODComp) {
		return fmt.Errorf("engine: out-of-domain consistency check failed")
	}

	domain, err := LDEDomain(pub.TraceLen, opts.BlowupFactor)
	if err != nil {
		return err
	}
	if err := FRIVerify(proof.FRI, domain, channel, opts); err != nil {
		return err
	}

	return nil
}

// CommitMainTrace commits the main trace's rows the same way Prove does
// internally. It exists so a caller (pkg/cairostarkvm's facade) can derive
// the main-trace root *before* the memory/range-check permutation
// challenges z, alpha, zPrime are drawn from it — those challenges are
// needed to build the auxiliary trace (auxtrace.Build) that Prove itself
// takes as an input, so the root has to be available a step earlier than
// Prove's own internal commit.
func CommitMainTrace(tr tracebuilder.Trace) (*MerkleTree, error) {
	return commitRows(tr.Rows[:], func(r tracebuilder.Row) []field.Felt { return r[:] })
}

func commitRows[T any](rows []T, toFelts func(T) []field.Felt) (*MerkleTree, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("engine: cannot commit to an empty trace")
	}
	leaves := make([]field.Felt, len(rows))
	for i, r := range rows {
		leaves[i] = hashRow(toFelts(r))
	}
	return NewMerkleTree(leaves)
}

// hashRow folds a row of field elements into one leaf value by repeated
// multiplication with the field's fixed generator, avoiding a parallel
// byte-hashing helper: every row collapses to a single Felt, which
// NewMerkleTree then hashes exactly like any other column.
func hashRow(row []field.Felt) field.Felt {
	acc := field.Zero()
	mixer := field.Generator
	for _, v := range row {
		acc = acc.Mul(mixer).Add(v)
	}
	return acc
}
