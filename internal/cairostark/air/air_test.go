package air

import (
	"testing"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/auxtrace"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/memory"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/tracebuilder"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/vmexec"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/word"
)

func mustWrite(t *testing.T, m *memory.Memory, addr, val uint64) {
	t.Helper()
	if err := m.Write(field.FromUint64(addr), field.FromUint64(val)); err != nil {
		t.Fatalf("write(%d,%d) failed: %v", addr, val, err)
	}
}

// buildAEQTrace builds a one-step AEQ trace: pc=1 (SIZ update), same fixture
// shape as tracebuilder's own tests.
func buildAEQTrace(t *testing.T) tracebuilder.Trace {
	t.Helper()
	mem := memory.New()
	dec := word.Decoded{
		OffDst: 0, OffOp0: -1, OffOp1: 1,
		DstReg: word.RegAP, Op0Reg: word.RegAP, Op1Src: word.Op1VAL,
		ResLog: word.ResONE, PcUp: word.PcSIZ, ApUp: word.ApONE, Opcode: word.OpAEQ,
	}
	instWord := word.Encode(dec)
	mustWrite(t, mem, 1, instWord.Uint64())
	mustWrite(t, mem, 2, 5)
	mustWrite(t, mem, 99, 7)

	ex := vmexec.New(mem, vmexec.RunMode)
	init := vmexec.Registers{PC: field.FromUint64(1), AP: field.FromUint64(100), FP: field.FromUint64(100)}
	state, next, err := ex.Step(init)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	return tracebuilder.Build([]vmexec.InstructionState{state}, mem, init, next)
}

// buildJNZTrace builds a one-step JNZ trace with dst != 0, exercising the
// pc_branch_jnz_nonzero identity.
func buildJNZTrace(t *testing.T, dstVal uint64) tracebuilder.Trace {
	t.Helper()
	mem := memory.New()
	dec := word.Decoded{
		OffDst: 0, OffOp0: 0, OffOp1: 1,
		DstReg: word.RegAP, Op0Reg: word.RegAP, Op1Src: word.Op1VAL,
		ResLog: word.ResONE, PcUp: word.PcJNZ, ApUp: word.ApZ2, Opcode: word.OpJMPINC,
	}
	instWord := word.Encode(dec)
	mustWrite(t, mem, 10, instWord.Uint64())
	mustWrite(t, mem, 11, 40) // op1: jump target offset
	mustWrite(t, mem, 100, dstVal)

	ex := vmexec.New(mem, vmexec.RunMode)
	init := vmexec.Registers{PC: field.FromUint64(10), AP: field.FromUint64(100), FP: field.FromUint64(100)}
	state, next, err := ex.Step(init)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	return tracebuilder.Build([]vmexec.InstructionState{state}, mem, init, next)
}

func frameAt(tr tracebuilder.Trace, i int) MainFrame {
	next := (i + 1) % len(tr.Rows)
	return MainFrame{Curr: tr.Rows[i], Next: tr.Rows[next]}
}

func allZero(vals []field.Felt) bool {
	for _, v := range vals {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

func TestMainTransitionsZeroOnGenuineAEQStep(t *testing.T) {
	tr := buildAEQTrace(t)
	out := EvaluateMainTransitions(frameAt(tr, 0))
	if !allZero(out) {
		t.Fatalf("expected all main transition constraints to vanish on an honest step, got %v", out)
	}
}

func TestMainTransitionsZeroOnJNZZeroBranch(t *testing.T) {
	tr := buildJNZTrace(t, 0)
	out := EvaluateMainTransitions(frameAt(tr, 0))
	if !allZero(out) {
		t.Fatalf("expected all main transition constraints to vanish on JNZ dst=0 branch, got %v", out)
	}
}

func TestMainTransitionsZeroOnJNZNonzeroBranch(t *testing.T) {
	tr := buildJNZTrace(t, 7)
	out := EvaluateMainTransitions(frameAt(tr, 0))
	if !allZero(out) {
		t.Fatalf("expected all main transition constraints to vanish on JNZ dst!=0 branch, got %v", out)
	}
}

func TestMainTransitionsCatchCorruptedNextPC(t *testing.T) {
	tr := buildJNZTrace(t, 7)
	frame := frameAt(tr, 0)
	// Corrupt next.pc so it doesn't match pc+op1 (the dst!=0 branch).
	frame.Next[tracebuilder.ColPC] = frame.Next[tracebuilder.ColPC].Add(field.One())
	out := EvaluateMainTransitions(frame)
	if allZero(out) {
		t.Fatalf("expected a nonzero constraint after corrupting next.pc")
	}
}

func TestMainTransitionsCatchCorruptedFlag(t *testing.T) {
	tr := buildAEQTrace(t)
	frame := frameAt(tr, 0)
	// Flip f0 (dst_reg) away from {0,1} by setting it to 2.
	frame.Curr[tracebuilder.ColFlagsStart] = field.FromUint64(2)
	out := EvaluateMainTransitions(frame)
	if allZero(out) {
		t.Fatalf("expected the flag-bit-law constraint to fire on a non-boolean flag")
	}
}

func TestMainTransitionsVanishOnPaddingRow(t *testing.T) {
	tr := buildAEQTrace(t)
	// Any row beyond NumSteps is a padding row with selector=0; every main
	// transition constraint must vanish there regardless of column content.
	padIdx := tr.NumSteps
	if padIdx >= len(tr.Rows) {
		t.Skip("no padding row present")
	}
	out := EvaluateMainTransitions(frameAt(tr, padIdx))
	if !allZero(out) {
		t.Fatalf("expected selector-gated constraints to vanish on padding row, got %v", out)
	}
}

func TestAuxMemoryTransitionsZeroOnGenuineSegment(t *testing.T) {
	tr := buildAEQTrace(t)
	z, alpha := field.FromUint64(777), field.FromUint64(1009)
	seg, err := auxtrace.Build(tr, z, alpha, field.FromUint64(1009))
	if err != nil {
		t.Fatalf("auxtrace.Build failed: %v", err)
	}
	// ARaw/VRaw come from the unsorted columns before public-memory
	// replacement, the side auxtrace.Build's running-product numerator uses.
	var aRaw, vRaw []field.Felt
	for _, row := range tr.Rows {
		aRaw = append(aRaw, row[tracebuilder.ColPC], row[tracebuilder.ColDstAddr], row[tracebuilder.ColOp0Addr], row[tracebuilder.ColOp1Addr])
		vRaw = append(vRaw, row[tracebuilder.ColInst], row[tracebuilder.ColDst], row[tracebuilder.ColOp0], row[tracebuilder.ColOp1])
	}

	// Flatten the 12-wide physical rows back into the length-4T virtual
	// sequence, matching auxtrace's own round-robin splitMemory order.
	var aPrime, vPrime, p []field.Felt
	for _, row := range seg.Memory {
		for k := 0; k < 4; k++ {
			aPrime = append(aPrime, row[auxtrace.MemAPrimeStart+k])
			vPrime = append(vPrime, row[auxtrace.MemVPrimeStart+k])
			p = append(p, row[auxtrace.MemPStart+k])
		}
	}
	for i := 0; i < len(aPrime)-1; i++ {
		f := AuxFrame{
			ARaw: aRaw[i+1], VRaw: vRaw[i+1],
			APrime: aPrime[i], APrimeNext: aPrime[i+1],
			VPrime: vPrime[i], VPrimeNext: vPrime[i+1],
			P: p[i], PNext: p[i+1],
			Z: z, Alpha: alpha,
		}
		out := AuxTransitionConstraintsMemory(f)
		if !allZero(out) {
			t.Fatalf("virtual index %d: expected zero memory transition constraints, got %v", i, out)
		}
	}
}

func TestAuxRangeCheckTransitionsZeroOnGenuineSegment(t *testing.T) {
	tr := buildAEQTrace(t)
	zPrime := field.FromUint64(2048)
	seg, err := auxtrace.Build(tr, field.FromUint64(777), field.FromUint64(1009), zPrime)
	if err != nil {
		t.Fatalf("auxtrace.Build failed: %v", err)
	}
	aRaw := auxtrace.RangeCheckColumn(tr)

	var aPrime, p []field.Felt
	for _, row := range seg.RangeCheck {
		for k := 0; k < 3; k++ {
			aPrime = append(aPrime, row[auxtrace.RCAPrimeStart+k])
			p = append(p, row[auxtrace.RCPStart+k])
		}
	}
	for i := 0; i < len(aPrime)-1; i++ {
		f := AuxFrame{
			ARaw:       aRaw[i+1],
			APrime:     aPrime[i], APrimeNext: aPrime[i+1],
			P: p[i], PNext: p[i+1],
			Z: zPrime,
		}
		out := AuxTransitionConstraintsRangeCheck(f)
		if !allZero(out) {
			t.Fatalf("virtual index %d: expected zero range-check transition constraints, got %v", i, out)
		}
	}
}

func TestComputeBoundaryAssertions(t *testing.T) {
	tr := buildAEQTrace(t)
	z, alpha := field.FromUint64(777), field.FromUint64(1009)
	seg, err := auxtrace.Build(tr, z, alpha, field.FromUint64(1009))
	if err != nil {
		t.Fatalf("auxtrace.Build failed: %v", err)
	}
	ba, err := ComputeBoundaryAssertions(tr, seg, z, alpha)
	if err != nil {
		t.Fatalf("ComputeBoundaryAssertions failed: %v", err)
	}
	if !ba.PMLast.Equal(ba.PMExpected) {
		t.Errorf("p_m[last] = %s, want %s", ba.PMLast, ba.PMExpected)
	}
	if !ba.PCFirst.Equal(tr.Init.PC) {
		t.Errorf("pc[first] = %s, want %s", ba.PCFirst, tr.Init.PC)
	}
}
