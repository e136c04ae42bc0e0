// Package vmexec implements the Cairo register-machine stepper: a
// single-threaded, deterministic executor over (pc, ap, fp) and a sparse
// memory, following spec §4.D's eight-sub-step algorithm exactly. This
// mirrors the teacher's Step/Run/ExecuteAndTrace pattern
// (internal/vybium-starks-vm/vm/vm_state.go) and its per-opcode exec*
// dispatch style (vm/vm_instructions.go), adapted from a stack machine to a
// pc/ap/fp register machine.
package vmexec

import (
	"errors"
	"fmt"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/memory"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/word"
)

// ErrOperandUndefined is returned when an operand the step needs to read is
// absent from memory and no opcode-specific fix-up can supply it.
var ErrOperandUndefined = errors.New("vmexec: operand undefined")

// ErrInvalidEncoding is returned when the decoded flag groups do not match
// any of the defined step-time cases (spec §4.D step 4 / step 7).
var ErrInvalidEncoding = errors.New("vmexec: invalid encoding")

// ErrRegisterMismatch is returned in Reconstruction mode when the executor's
// derived next registers disagree with the externally supplied trajectory.
var ErrRegisterMismatch = errors.New("vmexec: register trajectory mismatch")

// ErrAbsentWrite is returned in Reconstruction mode when a derived write
// (CALL's old-fp/ret-pc, or an AEQ fix-up) targets an address the external
// run's memory dump never recorded. Reconstruction only ever fills in
// values memory already has an entry for; it never originates new ones.
var ErrAbsentWrite = errors.New("vmexec: write targets address absent from reconstructed memory")

// Registers is the VM's (pc, ap, fp) state.
type Registers struct {
	PC field.Felt
	AP field.Felt
	FP field.Felt
}

// Mode selects whether the executor may write freely to memory (Run) or
// must assert that all derived writes already match memory supplied by an
// external execution (Reconstruction).
type Mode int

const (
	RunMode Mode = iota
	ReconstructionMode
)

// HintEffect is the mutation a HintHook may apply to the registers before a
// step decodes its instruction. A nil field leaves that register unchanged.
type HintEffect struct {
	PC *field.Felt
	AP *field.Felt
	FP *field.Felt
}

// HintHook is the opaque, externally-supplied callback consulted before
// each step. It may mutate memory directly (through mem) and return a
// register effect to apply. A nil hook is a no-op, per spec §4.D.
type HintHook func(regs Registers, mem *memory.Memory) (HintEffect, error)

func applyEffect(regs Registers, eff HintEffect) Registers {
	if eff.PC != nil {
		regs.PC = *eff.PC
	}
	if eff.AP != nil {
		regs.AP = *eff.AP
	}
	if eff.FP != nil {
		regs.FP = *eff.FP
	}
	return regs
}

// InstructionState captures everything one executed step deposits into the
// trace builder's per-column buffers (spec §4.E.1–2).
type InstructionState struct {
	PC, AP, FP                field.Felt
	Inst                      field.Felt
	Decoded                   word.Decoded
	DstAddr, Op0Addr, Op1Addr field.Felt
	Dst, Op0, Op1             field.Felt
	Res                       field.Felt
	InstSize                  uint64
	NextPC, NextAP, NextFP    field.Felt
}

// Executor runs a Cairo program step by step against a shared memory.
type Executor struct {
	Mem  *memory.Memory
	Hook HintHook
	Mode Mode
}

// New returns an Executor over mem with no hint hook configured.
func New(mem *memory.Memory, mode Mode) *Executor {
	return &Executor{Mem: mem, Mode: mode}
}

// writeKind applies a derived write, honoring Mode: in ReconstructionMode
// the address must already be present (the external run's memory dump is
// the sole source of truth; Step only ever confirms or fills in a value it
// already has, per spec §4.D's reconstruction requirement), while RunMode
// writes freely.
func (e *Executor) writeKind(addr, value field.Felt, kind memory.AccessKind) error {
	if e.Mode == ReconstructionMode {
		if _, ok := e.Mem.Read(addr); !ok {
			return fmt.Errorf("%w: address %s", ErrAbsentWrite, addr)
		}
	}
	return e.Mem.WriteKind(addr, value, kind)
}

func registerValue(reg word.Register, ap, fp field.Felt) field.Felt {
	if reg == word.RegFP {
		return fp
	}
	return ap
}

func offsetFelt(off int32) field.Felt {
	if off < 0 {
		return field.FromInt64(int64(off))
	}
	return field.FromUint64(uint64(off))
}

// Step executes exactly one instruction starting from regs, following spec
// §4.D's eight sub-steps, and returns the recorded InstructionState plus the
// next register triple.
func (e *Executor) Step(regs Registers) (InstructionState, Registers, error) {
	if e.Hook != nil {
		eff, err := e.Hook(regs, e.Mem)
		if err != nil {
			return InstructionState{}, Registers{}, fmt.Errorf("vmexec: hint hook: %w", err)
		}
		regs = applyEffect(regs, eff)
	}

	// 1. inst <- memory[pc]; decode.
	instVal, ok := e.Mem.Read(regs.PC)
	if !ok {
		return InstructionState{}, Registers{}, fmt.Errorf("%w: no instruction at pc=%s", ErrOperandUndefined, regs.PC)
	}
	dec, err := word.Decode(instVal)
	if err != nil {
		return InstructionState{}, Registers{}, err
	}
	instSize := uint64(1)
	if dec.Op1Src == word.Op1VAL {
		instSize = 2
	}

	// 2. op0_addr <- (op0_reg==FP ? fp : ap) + off_op0; op0 <- memory[op0_addr].
	op0Base := registerValue(dec.Op0Reg, regs.AP, regs.FP)
	op0Addr := op0Base.Add(offsetFelt(dec.OffOp0))
	op0Val, op0Present := e.Mem.Read(op0Addr)
	if !op0Present {
		return InstructionState{}, Registers{}, fmt.Errorf("%w: op0 at %s", ErrOperandUndefined, op0Addr)
	}

	// 3. op1 source.
	var op1Base field.Felt
	switch dec.Op1Src {
	case word.Op1DBL:
		op1Base = op0Val
	case word.Op1VAL:
		op1Base = regs.PC
	case word.Op1FP:
		op1Base = regs.FP
	case word.Op1AP:
		op1Base = regs.AP
	}
	op1Addr := op1Base.Add(offsetFelt(dec.OffOp1))
	op1Val, op1Present := e.Mem.Read(op1Addr)

	// 4. compute res.
	var res field.Felt
	resPresent := false
	if dec.PcUp == word.PcJNZ {
		if dec.ResLog != word.ResONE || dec.Opcode != word.OpJMPINC || dec.ApUp == word.ApADD {
			return InstructionState{}, Registers{}, fmt.Errorf("%w: JNZ requires res_log=ONE, opcode=JMP_INC, ap_up!=ADD", ErrInvalidEncoding)
		}
		res = field.Zero()
		resPresent = true
	} else {
		if op1Present {
			switch dec.ResLog {
			case word.ResONE:
				res = op1Val
			case word.ResADD:
				res = op0Val.Add(op1Val)
			case word.ResMUL:
				res = op0Val.Mul(op1Val)
			default:
				return InstructionState{}, Registers{}, fmt.Errorf("%w: unknown res_log", ErrInvalidEncoding)
			}
			resPresent = true
		} else {
			res = field.Zero()
			resPresent = false
		}
	}

	// 5. dst_addr <- (dst_reg==FP ? fp : ap) + off_dst; dst <- memory[dst_addr].
	dstBase := registerValue(dec.DstReg, regs.AP, regs.FP)
	dstAddr := dstBase.Add(offsetFelt(dec.OffDst))
	dstVal, dstPresent := e.Mem.Read(dstAddr)

	// AEQ fix-up (spec §4.D step 7 / §9): resolve whichever of (dst, op1) is
	// unknown using the AEQ assertion dst == res, before registers are
	// finalised. Preserved exactly as the source VM defines it.
	if dec.Opcode == word.OpAEQ {
		switch {
		case resPresent && !dstPresent:
			if err := e.writeKind(dstAddr, res, memory.KindDst); err != nil {
				return InstructionState{}, Registers{}, err
			}
			dstVal = res
			dstPresent = true
		case !resPresent && dstPresent:
			if err := e.writeKind(op1Addr, dstVal, memory.KindOp1); err != nil {
				return InstructionState{}, Registers{}, err
			}
			op1Val = dstVal
			op1Present = true
			res = dstVal
			resPresent = true
		case resPresent && dstPresent:
			if !dstVal.Equal(res) {
				return InstructionState{}, Registers{}, fmt.Errorf("%w: AEQ assertion dst=%s != res=%s", memory.ErrMemoryInconsistent, dstVal, res)
			}
		default:
			return InstructionState{}, Registers{}, fmt.Errorf("%w: AEQ with both dst and op1 undefined", ErrOperandUndefined)
		}
	}

	if !op1Present {
		return InstructionState{}, Registers{}, fmt.Errorf("%w: op1 at %s", ErrOperandUndefined, op1Addr)
	}
	if !dstPresent {
		return InstructionState{}, Registers{}, fmt.Errorf("%w: dst at %s", ErrOperandUndefined, dstAddr)
	}
	if !resPresent {
		return InstructionState{}, Registers{}, fmt.Errorf("%w: res undefined after operand resolution", ErrOperandUndefined)
	}

	// 6. next_pc by pc_up.
	var nextPC field.Felt
	switch dec.PcUp {
	case word.PcSIZ:
		nextPC = regs.PC.Add(field.FromUint64(instSize))
	case word.PcABS:
		nextPC = res
	case word.PcREL:
		nextPC = regs.PC.Add(res)
	case word.PcJNZ:
		if dstVal.IsZero() {
			nextPC = regs.PC.Add(field.FromUint64(instSize))
		} else {
			nextPC = regs.PC.Add(op1Val)
		}
	default:
		return InstructionState{}, Registers{}, fmt.Errorf("%w: unknown pc_up", ErrInvalidEncoding)
	}

	// 7. next_ap and next_fp by opcode.
	var nextAP, nextFP field.Felt
	switch dec.Opcode {
	case word.OpCALL:
		if dec.ApUp != word.ApZ2 {
			return InstructionState{}, Registers{}, fmt.Errorf("%w: CALL requires ap_up=Z2", ErrInvalidEncoding)
		}
		if err := e.writeKind(regs.AP, regs.FP, memory.KindCallOldFP); err != nil {
			return InstructionState{}, Registers{}, err
		}
		retAddr := regs.PC.Add(field.FromUint64(instSize))
		apPlus1 := regs.AP.Add(field.One())
		if err := e.writeKind(apPlus1, retAddr, memory.KindCallRetPC); err != nil {
			return InstructionState{}, Registers{}, err
		}
		nextFP = regs.AP.Add(field.Two())
		nextAP = regs.AP.Add(field.Two())
	case word.OpJMPINC, word.OpRET, word.OpAEQ:
		switch dec.ApUp {
		case word.ApZ2:
			nextAP = regs.AP
		case word.ApADD:
			nextAP = regs.AP.Add(res)
		case word.ApONE:
			nextAP = regs.AP.Add(field.One())
		default:
			return InstructionState{}, Registers{}, fmt.Errorf("%w: unknown ap_up", ErrInvalidEncoding)
		}
		switch dec.Opcode {
		case word.OpJMPINC:
			nextFP = regs.FP
		case word.OpRET:
			nextFP = dstVal
		case word.OpAEQ:
			nextFP = regs.FP
		}
	default:
		return InstructionState{}, Registers{}, fmt.Errorf("%w: unknown opcode", ErrInvalidEncoding)
	}

	state := InstructionState{
		PC: regs.PC, AP: regs.AP, FP: regs.FP,
		Inst:     instVal,
		Decoded:  dec,
		DstAddr:  dstAddr, Op0Addr: op0Addr, Op1Addr: op1Addr,
		Dst: dstVal, Op0: op0Val, Op1: op1Val,
		Res:      res,
		InstSize: instSize,
		NextPC:   nextPC, NextAP: nextAP, NextFP: nextFP,
	}
	next := Registers{PC: nextPC, AP: nextAP, FP: nextFP}
	return state, next, nil
}

// Halted reports the stop condition of spec §4.D step 8: the next pc lies
// in unallocated memory, specifically when ap <= next.pc.
func Halted(nextAP, nextPC field.Felt) bool {
	return nextAP.LessThan(nextPC) || nextAP.Equal(nextPC)
}

// Run drives the executor from init until Halted reports true or an
// optional terminalPC is reached, returning the full per-step trace and the
// final registers.
func (e *Executor) Run(init Registers, terminalPC *field.Felt, maxSteps int) ([]InstructionState, Registers, error) {
	regs := init
	var states []InstructionState
	for i := 0; maxSteps <= 0 || i < maxSteps; i++ {
		if terminalPC != nil && regs.PC.Equal(*terminalPC) {
			return states, regs, nil
		}
		state, next, err := e.Step(regs)
		if err != nil {
			return states, regs, err
		}
		states = append(states, state)
		if Halted(next.AP, next.PC) {
			return states, next, nil
		}
		regs = next
	}
	return states, regs, fmt.Errorf("vmexec: exceeded maxSteps=%d without halting", maxSteps)
}

// RunReconstruction drives the executor using an externally supplied
// register trajectory (Reconstruction mode): mem must already contain the
// final memory of the external run. Each derived next-register triple is
// asserted to match trajectory[i+1].
func (e *Executor) RunReconstruction(trajectory []Registers) ([]InstructionState, error) {
	if len(trajectory) == 0 {
		return nil, nil
	}
	states := make([]InstructionState, 0, len(trajectory)-1)
	for i := 0; i < len(trajectory)-1; i++ {
		state, next, err := e.Step(trajectory[i])
		if err != nil {
			return states, err
		}
		want := trajectory[i+1]
		if !next.PC.Equal(want.PC) || !next.AP.Equal(want.AP) || !next.FP.Equal(want.FP) {
			return states, fmt.Errorf("%w: at step %d derived (pc=%s,ap=%s,fp=%s), trajectory has (pc=%s,ap=%s,fp=%s)",
				ErrRegisterMismatch, i, next.PC, next.AP, next.FP, want.PC, want.AP, want.FP)
		}
		states = append(states, state)
	}
	return states, nil
}
