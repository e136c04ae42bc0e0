package tracebuilder

import (
	"testing"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/memory"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/vmexec"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/word"
)

func buildOneStepTrace(t *testing.T) (Trace, *memory.Memory) {
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
	tr := Build([]vmexec.InstructionState{state}, mem, init, next)
	return tr, mem
}

func mustWrite(t *testing.T, m *memory.Memory, addr, val uint64) {
	t.Helper()
	if err := m.Write(field.FromUint64(addr), field.FromUint64(val)); err != nil {
		t.Fatalf("write(%d,%d) failed: %v", addr, val, err)
	}
}

func TestBuildPadsToPowerOfTwo(t *testing.T) {
	tr, _ := buildOneStepTrace(t)
	n := len(tr.Rows)
	if n == 0 || (n&(n-1)) != 0 {
		t.Fatalf("trace length %d is not a power of two", n)
	}
}

func TestBuildSelectorColumn(t *testing.T) {
	tr, _ := buildOneStepTrace(t)
	if !tr.Rows[0][ColSelector].IsOne() {
		t.Errorf("selector on executed row 0 should be 1")
	}
	for i := tr.NumSteps; i < len(tr.Rows); i++ {
		if !tr.Rows[i][ColSelector].IsZero() {
			t.Errorf("selector on padding row %d should be 0, got %s", i, tr.Rows[i][ColSelector])
		}
	}
}

func TestBuildDerivedColumns(t *testing.T) {
	tr, _ := buildOneStepTrace(t)
	row := tr.Rows[0]
	wantMul := row[ColOp0].Mul(row[ColOp1])
	if !row[ColMul].Equal(wantMul) {
		t.Errorf("mul column = %s, want op0*op1 = %s", row[ColMul], wantMul)
	}
	// This instruction is not a JNZ, so t0 and t1 must both be zero.
	if !row[ColT0].IsZero() {
		t.Errorf("t0 = %s, want 0 for non-JNZ instruction", row[ColT0])
	}
	if !row[ColT1].IsZero() {
		t.Errorf("t1 = %s, want 0 for non-JNZ instruction", row[ColT1])
	}
}

func TestBuildFlagBitLaw(t *testing.T) {
	tr, _ := buildOneStepTrace(t)
	row := tr.Rows[0]
	for i := 0; i < 15; i++ {
		f := row[ColFlagsStart+i]
		if !(f.IsZero() || f.IsOne()) {
			t.Errorf("flag f%d = %s is not 0 or 1", i, f)
		}
	}
	if !row[ColFlagsStart+15].IsZero() {
		t.Errorf("f15 = %s, want 0", row[ColFlagsStart+15])
	}
}
