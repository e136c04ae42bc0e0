// Package tracebuilder assembles the fixed 34-column main trace matrix from
// a completed executor run, following spec §4.E. This mirrors the
// teacher's trace-materialization step (internal/vybium-starks-vm/vm
// package's table-row assembly from a finished run), adapted from
// TritonVM's many-table layout down to the single main segment spec.md
// names.
package tracebuilder

import (
	"sort"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/memory"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/vmexec"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/word"
)

// NumColumns is the fixed width of the main trace (spec §3).
const NumColumns = 34

// Column offsets within a trace row, per spec §3's column layout table.
const (
	ColFlagsStart = 0  // 16 columns: f0..f15
	ColRes        = 16
	ColAP         = 17
	ColFP         = 18
	ColPC         = 19
	ColDstAddr    = 20
	ColOp0Addr    = 21
	ColOp1Addr    = 22
	ColInst       = 23
	ColDst        = 24
	ColOp0        = 25
	ColOp1        = 26
	ColOffDst     = 27
	ColOffOp0     = 28
	ColOffOp1     = 29
	ColT0         = 30
	ColT1         = 31
	ColMul        = 32
	ColSelector   = 33
)

// Row is one row of the main trace: 34 field elements addressed by the
// Col* constants above.
type Row [NumColumns]field.Felt

// Trace is the assembled main trace matrix plus the public data the AIR and
// facade need (spec §4.E / §4.H).
type Trace struct {
	Rows []Row

	NumSteps  int // number of genuinely executed rows, before any padding
	CodeLen   uint64
	RCMin     uint16
	RCMax     uint16
	PublicMem []field.Felt

	Init vmexec.Registers
	Fin  vmexec.Registers

	// FinRow is the physical row index holding the final register state Fin.
	// Rows[0..NumSteps) hold the pre-step registers of each executed
	// instruction, so Fin (the *post*-step registers of the last executed
	// instruction) is never one of those rows; it is instead carried by a
	// dedicated, non-executed (selector=0) row appended right after them, at
	// index NumSteps. The boundary assertion on the final pc/ap (spec
	// §4.G) targets this row, not Rows[NumSteps-1].
	FinRow int
}

// Build assembles the main trace from a completed executor run, per spec
// §4.E steps 1-7.
func Build(states []vmexec.InstructionState, mem *memory.Memory, init, fin vmexec.Registers) Trace {
	rows := make([]Row, 0, len(states))

	var pcAddrs, dstAddrs, op0Addrs, op1Addrs []field.Felt
	var biasedOffsets []uint16

	for _, s := range states {
		row := rowFromState(s)
		rows = append(rows, row)

		pcAddrs = append(pcAddrs, s.PC)
		dstAddrs = append(dstAddrs, s.DstAddr)
		op0Addrs = append(op0Addrs, s.Op0Addr)
		op1Addrs = append(op1Addrs, s.Op1Addr)

		biasedOffsets = append(biasedOffsets, s.Decoded.BiasedOffDst, s.Decoded.BiasedOffOp0, s.Decoded.BiasedOffOp1)
	}

	numSteps := len(states)

	// Append a dedicated row carrying the final register state (the
	// post-step registers of the last executed instruction, i.e. fin).
	// Rows[0..numSteps) only ever hold pre-step registers, so fin needs a
	// row of its own for the boundary assertion to target; its selector
	// stays 0 since it is not itself an executed instruction.
	//
	// Column 19 (pc) doubles as a memory-access address in the permutation
	// argument, so this row's pc also becomes an (address, value) pair in
	// the raw memory virtual column: pair it with the real value memory
	// holds at fin.PC (0 if fin.PC was never written, same convention as a
	// hole row) so that if fin.PC coincides with an address some other row
	// already accessed — the common case, since a well-formed Cairo
	// program halts on a self-jump whose pc is exactly fin.pc — the
	// duplicate entry agrees on value instead of tripping the single-value
	// constraint.
	finRow := len(rows)
	var finRowData Row
	finRowData[ColPC] = fin.PC
	finRowData[ColAP] = fin.AP
	finRowData[ColFP] = fin.FP
	if v, ok := mem.Read(fin.PC); ok {
		finRowData[ColInst] = v
	}
	rows = append(rows, finRowData)

	// Step 4: fill memory holes across the four address kinds combined, as
	// a single set of addresses (spec: "the set of recorded
	// (pc, dst_addr, op0_addr, op1_addr)"), plus fin.PC so that a final pc
	// outside the previously-accessed range still gets its gap filled.
	allAddrs := append(append(append(append([]field.Felt{}, pcAddrs...), dstAddrs...), op0Addrs...), op1Addrs...)
	allAddrs = append(allAddrs, fin.PC)
	holes := memory.Holes(allAddrs)
	for _, h := range holes {
		var row Row
		row[ColDstAddr] = h
		row[ColOp0Addr] = h
		row[ColOp1Addr] = h
		row[ColPC] = h
		rows = append(rows, row)
	}

	codeLen := mem.PublicLen()
	publicMem := mem.PublicValues()
	for i := uint64(0); i < codeLen; i++ {
		var row Row
		row[ColDstAddr] = field.Zero()
		row[ColOp0Addr] = field.Zero()
		row[ColOp1Addr] = field.Zero()
		row[ColPC] = field.Zero()
		rows = append(rows, row)
	}

	// Step 5: range-check hole filling on biased offsets.
	rcMin, rcMax := rcBounds(biasedOffsets)
	// The final-register, hole and public-memory rows are not executed; their
	// offset columns hold rcMin so that every entry of the range-check
	// virtual column lies in [rcMin, rcMax].
	rcMinFelt := field.FromUint64(uint64(rcMin))
	for i := numSteps; i < len(rows); i++ {
		rows[i][ColOffDst] = rcMinFelt
		rows[i][ColOffOp0] = rcMinFelt
		rows[i][ColOffOp1] = rcMinFelt
	}
	for u := rcMin; u < rcMax; u++ {
		if !containsBiased(biasedOffsets, u+1) {
			var row Row
			row[ColOffDst] = field.FromUint64(uint64(u + 1))
			row[ColOffOp0] = field.FromUint64(uint64(u + 1))
			row[ColOffOp1] = field.FromUint64(uint64(u + 1))
			rows = append(rows, row)
		}
	}

	// Step 6: selector column, already 0 by default on padding rows (and on
	// the final-register row above); set to 1 on the genuinely executed
	// prefix.
	for i := 0; i < numSteps; i++ {
		rows[i][ColSelector] = field.One()
	}

	// Step 7: pad to next power of two by repeating the last row.
	target := nextPowerOfTwo(len(rows))
	if len(rows) > 0 {
		last := rows[len(rows)-1]
		for len(rows) < target {
			rows = append(rows, last)
		}
	}

	return Trace{
		Rows:      rows,
		FinRow:    finRow,
		NumSteps:  numSteps,
		CodeLen:   codeLen,
		RCMin:     rcMin,
		RCMax:     rcMax,
		PublicMem: publicMem,
		Init:      init,
		Fin:       fin,
	}
}

func rowFromState(s vmexec.InstructionState) Row {
	var row Row
	for i := 0; i < word.NumFlags; i++ {
		if s.Decoded.Flags[i] {
			row[ColFlagsStart+i] = field.One()
		} else {
			row[ColFlagsStart+i] = field.Zero()
		}
	}
	row[ColFlagsStart+15] = field.Zero() // f15 always 0

	row[ColAP] = s.AP
	row[ColFP] = s.FP
	row[ColPC] = s.PC
	row[ColDstAddr] = s.DstAddr
	row[ColOp0Addr] = s.Op0Addr
	row[ColOp1Addr] = s.Op1Addr
	row[ColInst] = s.Inst
	row[ColDst] = s.Dst
	row[ColOp0] = s.Op0
	row[ColOp1] = s.Op1
	row[ColOffDst] = field.FromUint64(uint64(s.Decoded.BiasedOffDst))
	row[ColOffOp0] = field.FromUint64(uint64(s.Decoded.BiasedOffOp0))
	row[ColOffOp1] = field.FromUint64(uint64(s.Decoded.BiasedOffOp1))

	// Derived columns (spec §4.E.3).
	isJnz := s.Decoded.PcUp == word.PcJNZ
	var fPcJnz field.Felt
	if isJnz {
		fPcJnz = field.One()
	} else {
		fPcJnz = field.Zero()
	}
	t0 := fPcJnz.Mul(s.Dst)

	resStar := s.Res
	if isJnz && !s.Dst.IsZero() {
		if inv, err := s.Dst.Inv(); err == nil {
			resStar = inv
		}
	}
	t1 := t0.Mul(resStar)
	mul := s.Op0.Mul(s.Op1)

	row[ColRes] = s.Res
	row[ColT0] = t0
	row[ColT1] = t1
	row[ColMul] = mul

	return row
}

func rcBounds(offsets []uint16) (uint16, uint16) {
	if len(offsets) == 0 {
		return 0, 0
	}
	min, max := offsets[0], offsets[0]
	for _, o := range offsets {
		if o < min {
			min = o
		}
		if o > max {
			max = o
		}
	}
	return min, max
}

func containsBiased(offsets []uint16, v uint16) bool {
	for _, o := range offsets {
		if o == v {
			return true
		}
	}
	return false
}

func nextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// SortedSlice returns an ascending copy of the given biased offsets;
// duplicates are kept.
func SortedSlice(offsets []uint16) []uint16 {
	out := append([]uint16{}, offsets...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
