// Package word implements the Cairo instruction word layout: three biased
// 16-bit signed offsets and 15 decoded flag bits packed into a 64-bit value
// carried by a single field element.
package word

import (
	"errors"
	"fmt"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
)

// ErrMalformedInstruction is returned when a word fails to decode: the high
// bit is set, a declared flag is out of {0,1}, or a mutually-exclusive flag
// group has more than one bit set.
var ErrMalformedInstruction = errors.New("word: malformed instruction")

// Register names the two registers offsets can be taken relative to.
type Register int

const (
	RegAP Register = 0
	RegFP Register = 1
)

func (r Register) String() string {
	if r == RegFP {
		return "FP"
	}
	return "AP"
}

// Op1Src names the source of the op1 operand's base address.
type Op1Src int

const (
	Op1DBL Op1Src = 0
	Op1VAL Op1Src = 1
	Op1FP  Op1Src = 2
	Op1AP  Op1Src = 4
)

func (s Op1Src) String() string {
	switch s {
	case Op1VAL:
		return "VAL"
	case Op1FP:
		return "FP"
	case Op1AP:
		return "AP"
	default:
		return "DBL"
	}
}

// ResLog names how `res` is computed from op0, op1.
type ResLog int

const (
	ResONE ResLog = 0
	ResADD ResLog = 1
	ResMUL ResLog = 2
)

func (r ResLog) String() string {
	switch r {
	case ResADD:
		return "ADD"
	case ResMUL:
		return "MUL"
	default:
		return "ONE"
	}
}

// PcUpdate names how `next.pc` is derived.
type PcUpdate int

const (
	PcSIZ PcUpdate = 0
	PcABS PcUpdate = 1
	PcREL PcUpdate = 2
	PcJNZ PcUpdate = 4
)

func (p PcUpdate) String() string {
	switch p {
	case PcABS:
		return "ABS"
	case PcREL:
		return "REL"
	case PcJNZ:
		return "JNZ"
	default:
		return "SIZ"
	}
}

// ApUpdate names how `next.ap` is derived (before any opcode-driven bump).
type ApUpdate int

const (
	ApZ2  ApUpdate = 0
	ApADD ApUpdate = 1
	ApONE ApUpdate = 2
)

func (a ApUpdate) String() string {
	switch a {
	case ApADD:
		return "ADD"
	case ApONE:
		return "ONE"
	default:
		return "Z2"
	}
}

// Opcode names the instruction's opcode class.
type Opcode int

const (
	OpJMPINC Opcode = 0
	OpCALL   Opcode = 1
	OpRET    Opcode = 2
	OpAEQ    Opcode = 4
)

func (o Opcode) String() string {
	switch o {
	case OpCALL:
		return "CALL"
	case OpRET:
		return "RET"
	case OpAEQ:
		return "AEQ"
	default:
		return "JMP_INC"
	}
}

// NumFlags is the number of decoded flag bits (f0..f14); bit 15 is always 0.
const NumFlags = 15

// Decoded is the fully decoded form of a Cairo instruction word.
type Decoded struct {
	// Biased offsets as stored in the trace, each in [0, 2^16).
	BiasedOffDst uint16
	BiasedOffOp0 uint16
	BiasedOffOp1 uint16

	// Unbiased (signed) offsets used in address arithmetic.
	OffDst int32
	OffOp0 int32
	OffOp1 int32

	// Flags holds f0..f14 in bit-index order; Flags[15] is not stored (it
	// must always decode to 0 and is validated separately).
	Flags [NumFlags]bool

	DstReg Register
	Op0Reg Register
	Op1Src Op1Src
	ResLog ResLog
	PcUp   PcUpdate
	ApUp   ApUpdate
	Opcode Opcode
}

// Individual flag bit indices within the 15 decoded flag bits (f0 is bit 48
// of the word, i.e. index 0 here).
const (
	bitDstFP  = 0
	bitOp0FP  = 1
	bitOp1Val = 2
	bitOp1FP  = 3
	bitOp1AP  = 4
	bitResAdd = 5
	bitResMul = 6
	bitPcAbs  = 7
	bitPcRel  = 8
	bitPcJnz  = 9
	bitApAdd  = 10
	bitApOne  = 11
	bitOpcCall = 12
	bitOpcRet  = 13
	bitOpcAeq  = 14
)

// Bias converts a signed 16-bit-range offset to its biased unsigned form.
func Bias(v int32) uint16 {
	return uint16(v + (1 << 15))
}

// Unbias converts a biased unsigned offset back to its signed value.
func Unbias(u uint16) int32 {
	return int32(u) - (1 << 15)
}

func bit(w uint64, i int) int {
	return int((w >> uint(i)) & 1)
}

// Decode interprets a field element as a 64-bit Cairo instruction word.
func Decode(w field.Felt) (Decoded, error) {
	if !w.FitsUint64() {
		return Decoded{}, fmt.Errorf("%w: value does not fit in 64 bits", ErrMalformedInstruction)
	}
	raw := w.Uint64()
	if bit(raw, 63) != 0 {
		return Decoded{}, fmt.Errorf("%w: bit 63 is set", ErrMalformedInstruction)
	}

	biasedDst := uint16(raw & 0xFFFF)
	biasedOp0 := uint16((raw >> 16) & 0xFFFF)
	biasedOp1 := uint16((raw >> 32) & 0xFFFF)

	var flags [NumFlags]bool
	for i := 0; i < NumFlags; i++ {
		b := bit(raw, 48+i)
		if b != 0 && b != 1 {
			return Decoded{}, fmt.Errorf("%w: flag bit %d not in {0,1}", ErrMalformedInstruction, i)
		}
		flags[i] = b == 1
	}

	d := Decoded{
		BiasedOffDst: biasedDst,
		BiasedOffOp0: biasedOp0,
		BiasedOffOp1: biasedOp1,
		OffDst:       Unbias(biasedDst),
		OffOp0:       Unbias(biasedOp0),
		OffOp1:       Unbias(biasedOp1),
		Flags:        flags,
	}

	if flags[bitDstFP] {
		d.DstReg = RegFP
	} else {
		d.DstReg = RegAP
	}
	if flags[bitOp0FP] {
		d.Op0Reg = RegFP
	} else {
		d.Op0Reg = RegAP
	}

	op1Count := boolCount(flags[bitOp1Val], flags[bitOp1FP], flags[bitOp1AP])
	if op1Count > 1 {
		return Decoded{}, fmt.Errorf("%w: op1_src group has more than one bit set", ErrMalformedInstruction)
	}
	switch {
	case flags[bitOp1Val]:
		d.Op1Src = Op1VAL
	case flags[bitOp1FP]:
		d.Op1Src = Op1FP
	case flags[bitOp1AP]:
		d.Op1Src = Op1AP
	default:
		d.Op1Src = Op1DBL
	}

	resCount := boolCount(flags[bitResAdd], flags[bitResMul])
	if resCount > 1 {
		return Decoded{}, fmt.Errorf("%w: res_log group has more than one bit set", ErrMalformedInstruction)
	}
	switch {
	case flags[bitResAdd]:
		d.ResLog = ResADD
	case flags[bitResMul]:
		d.ResLog = ResMUL
	default:
		d.ResLog = ResONE
	}

	pcCount := boolCount(flags[bitPcAbs], flags[bitPcRel], flags[bitPcJnz])
	if pcCount > 1 {
		return Decoded{}, fmt.Errorf("%w: pc_up group has more than one bit set", ErrMalformedInstruction)
	}
	switch {
	case flags[bitPcAbs]:
		d.PcUp = PcABS
	case flags[bitPcRel]:
		d.PcUp = PcREL
	case flags[bitPcJnz]:
		d.PcUp = PcJNZ
	default:
		d.PcUp = PcSIZ
	}

	apCount := boolCount(flags[bitApAdd], flags[bitApOne])
	if apCount > 1 {
		return Decoded{}, fmt.Errorf("%w: ap_up group has more than one bit set", ErrMalformedInstruction)
	}
	switch {
	case flags[bitApAdd]:
		d.ApUp = ApADD
	case flags[bitApOne]:
		d.ApUp = ApONE
	default:
		d.ApUp = ApZ2
	}

	opcodeCount := boolCount(flags[bitOpcCall], flags[bitOpcRet], flags[bitOpcAeq])
	if opcodeCount > 1 {
		return Decoded{}, fmt.Errorf("%w: opcode group has more than one bit set", ErrMalformedInstruction)
	}
	switch {
	case flags[bitOpcCall]:
		d.Opcode = OpCALL
	case flags[bitOpcRet]:
		d.Opcode = OpRET
	case flags[bitOpcAeq]:
		d.Opcode = OpAEQ
	default:
		d.Opcode = OpJMPINC
	}

	return d, nil
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// Encode re-packs a Decoded instruction into its 64-bit word, following the
// identity of spec §4.B:
//
//	inst = (off_dst+2^15) + 2^16*(off_op0+2^15) + 2^32*(off_op1+2^15)
//	       + 2^48 * sum_i 2^i*f_i
//
// Offsets are taken from the signed OffDst/OffOp0/OffOp1 fields. A flag bit
// is set when it is set in d.Flags or implied by the grouped fields (DstReg,
// Op0Reg, Op1Src, ResLog, PcUp, ApUp, Opcode), so either form may be used to
// describe the instruction.
func Encode(d Decoded) field.Felt {
	var raw uint64
	raw |= uint64(Bias(d.OffDst))
	raw |= uint64(Bias(d.OffOp0)) << 16
	raw |= uint64(Bias(d.OffOp1)) << 32
	flags := d.Flags
	for i, set := range [NumFlags]bool{
		d.DstReg == RegFP, d.Op0Reg == RegFP,
		d.Op1Src == Op1VAL, d.Op1Src == Op1FP, d.Op1Src == Op1AP,
		d.ResLog == ResADD, d.ResLog == ResMUL,
		d.PcUp == PcABS, d.PcUp == PcREL, d.PcUp == PcJNZ,
		d.ApUp == ApADD, d.ApUp == ApONE,
		d.Opcode == OpCALL, d.Opcode == OpRET, d.Opcode == OpAEQ,
	} {
		flags[i] = flags[i] || set
	}
	for i := 0; i < NumFlags; i++ {
		if flags[i] {
			raw |= uint64(1) << uint(48+i)
		}
	}
	return field.FromUint64(raw)
}
