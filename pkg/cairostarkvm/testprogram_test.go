package cairostarkvm

import (
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/memory"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/vmexec"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/word"
)

// program assembles a straight-line (jump-free) Cairo microprogram directly
// as encoded instruction words. Every instruction is an AEQ assignment, dst
// always lands at the current ap and ap always advances by one, so each
// value produced during the run occupies the next free ap slot in order.
// That keeps every address the run ever touches contiguous, which keeps the
// trace's memory-hole padding at zero instead of stretching across an
// arbitrary gap between code and data.
type program struct {
	code  []field.Felt
	apPos int32
}

// dummyOff computes the operand offset, relative to the current ap, of a
// single reserved zero cell placed one address below the data region. AEQ
// always requires op0 to already be defined even when the assignment itself
// doesn't use it, so every immediate-load instruction reads this cell.
func (p *program) dummyOff() int32 {
	return -1 - p.apPos
}

func assembleWord(dstReg, op0Reg word.Register, op1Src word.Op1Src, resLog word.ResLog, offDst, offOp0, offOp1 int32) field.Felt {
	d := word.Decoded{
		OffDst: offDst,
		OffOp0: offOp0,
		OffOp1: offOp1,
	}
	if dstReg == word.RegFP {
		d.Flags[0] = true
	}
	if op0Reg == word.RegFP {
		d.Flags[1] = true
	}
	switch op1Src {
	case word.Op1VAL:
		d.Flags[2] = true
	case word.Op1FP:
		d.Flags[3] = true
	case word.Op1AP:
		d.Flags[4] = true
	}
	switch resLog {
	case word.ResADD:
		d.Flags[5] = true
	case word.ResMUL:
		d.Flags[6] = true
	}
	// pc_up stays SIZ (flags 7..9 clear): every instruction here is a plain
	// fall-through assignment, never a jump or call.
	d.Flags[10] = false
	d.Flags[11] = true // ap_up = ApONE
	d.Flags[14] = true // opcode = AEQ
	return word.Encode(d)
}

// assignImmediate emits `[ap] = imm; ap++` and returns the ap position the
// value lands at.
func (p *program) assignImmediate(imm field.Felt) int32 {
	pos := p.apPos
	instr := assembleWord(word.RegAP, word.RegAP, word.Op1VAL, word.ResONE, 0, p.dummyOff(), 1)
	p.code = append(p.code, instr, imm)
	p.apPos = pos + 1
	return pos
}

// binOp emits `[ap] = [ap+(aPos-ap)] <op> [ap+(bPos-ap)]; ap++` and returns
// the ap position the result lands at.
func (p *program) binOp(aPos, bPos int32, resLog word.ResLog) int32 {
	pos := p.apPos
	instr := assembleWord(word.RegAP, word.RegAP, word.Op1AP, resLog, 0, aPos-pos, bPos-pos)
	p.code = append(p.code, instr)
	p.apPos = pos + 1
	return pos
}

// scenario is the concrete layout a finished program assembles into: the
// public code words, the reserved zero cell right after them, and where the
// ap/fp registers start once the data region begins.
type scenario struct {
	codeWords []field.Felt
	apInit    uint64
	fpInit    uint64
	pcInit    uint64
	pcFinal   uint64
}

func (p *program) finish() scenario {
	codeLen := uint64(len(p.code))
	dummyAddr := codeLen + 1
	apInit := dummyAddr + 1
	return scenario{
		codeWords: p.code,
		apInit:    apInit,
		fpInit:    apInit,
		pcInit:    1,
		pcFinal:   codeLen + 1,
	}
}

// buildOutputTrioProgram computes x=10, y=20, z=y*y+x and leaves them at ap
// positions 0, 1, and 3 (position 2 holds the intermediate y*y).
func buildOutputTrioProgram() scenario {
	p := &program{}
	x := p.assignImmediate(field.FromUint64(10))
	y := p.assignImmediate(field.FromUint64(20))
	ySquared := p.binOp(y, y, word.ResMUL)
	p.binOp(ySquared, x, word.ResADD)
	return p.finish()
}

// buildFactorialProgram unrolls acc := 1; for k := 2..n { acc *= k }.
func buildFactorialProgram(n uint64) scenario {
	p := &program{}
	acc := p.assignImmediate(field.FromUint64(1))
	for k := uint64(2); k <= n; k++ {
		kPos := p.assignImmediate(field.FromUint64(k))
		acc = p.binOp(acc, kPos, word.ResMUL)
	}
	return p.finish()
}

// buildFibonacciProgram unrolls a, b := 1, 1; for i := 3..n { a, b = b, a+b }
// and leaves F(n) at the final ap position of b.
func buildFibonacciProgram(n int) scenario {
	p := &program{}
	a := p.assignImmediate(field.FromUint64(1))
	b := p.assignImmediate(field.FromUint64(1))
	if n < 2 {
		return p.finish()
	}
	for i := 3; i <= n; i++ {
		c := p.binOp(a, b, word.ResADD)
		a = b
		b = c
	}
	return p.finish()
}

// run executes a scenario's program to completion via the forward-execution
// stepper, then repackages the run as the external trajectory/memory-dump
// inputs ProveExecution expects from an outside source.
func (s scenario) run(t interface {
	Helper()
	Fatalf(string, ...interface{})
}) ([]field.Felt, []vmexec.Registers, []MemoryEntry, vmexec.Registers) {
	t.Helper()

	mem := memory.New()
	for i, w := range s.codeWords {
		if err := mem.WritePublic(field.FromUint64(uint64(i+1)), w); err != nil {
			t.Fatalf("writing code word %d: %v", i, err)
		}
	}
	dummyAddr := uint64(len(s.codeWords)) + 1
	if err := mem.WritePublic(field.FromUint64(dummyAddr), field.Zero()); err != nil {
		t.Fatalf("writing dummy cell: %v", err)
	}

	init := vmexec.Registers{
		PC: field.FromUint64(s.pcInit),
		AP: field.FromUint64(s.apInit),
		FP: field.FromUint64(s.fpInit),
	}
	terminalPC := field.FromUint64(s.pcFinal)

	executor := vmexec.New(mem, vmexec.RunMode)
	states, fin, err := executor.Run(init, &terminalPC, 100000)
	if err != nil {
		t.Fatalf("running program: %v", err)
	}

	trajectory := make([]vmexec.Registers, len(states)+1)
	trajectory[0] = init
	for i, st := range states {
		trajectory[i+1] = vmexec.Registers{PC: st.NextPC, AP: st.NextAP, FP: st.NextFP}
	}

	high := mem.HighWaterMark()
	dump := make([]MemoryEntry, 0, high)
	for addr := uint64(1); addr <= high; addr++ {
		v, ok := mem.Read(field.FromUint64(addr))
		if !ok {
			continue
		}
		dump = append(dump, MemoryEntry{Address: addr, Value: v})
	}

	return append([]field.Felt{}, s.codeWords...), trajectory, dump, fin
}
