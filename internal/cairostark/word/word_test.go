package word

import (
	"testing"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
)

func TestBiasRoundTrip(t *testing.T) {
	for u := 0; u < (1 << 16); u += 97 {
		got := Bias(Unbias(uint16(u)))
		if got != uint16(u) {
			t.Fatalf("bias(unbias(%d)) = %d, want %d", u, got, u)
		}
	}
}

func TestBiasConcreteValues(t *testing.T) {
	cases := []struct {
		biased uint16
		signed int32
	}{
		{0x8000, 0},
		{0x8001, 1},
		{0x7fff, -1},
	}
	for _, c := range cases {
		if got := Unbias(c.biased); got != c.signed {
			t.Errorf("Unbias(0x%04x) = %d, want %d", c.biased, got, c.signed)
		}
		if got := Bias(c.signed); got != c.biased {
			t.Errorf("Bias(%d) = 0x%04x, want 0x%04x", c.signed, got, c.biased)
		}
	}
}

func TestDecodeConcreteInstruction(t *testing.T) {
	w := field.FromUint64(0x480680017fff8000)
	d, err := Decode(w)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if d.OffDst != 0 {
		t.Errorf("OffDst = %d, want 0", d.OffDst)
	}
	if d.OffOp0 != -1 {
		t.Errorf("OffOp0 = %d, want -1", d.OffOp0)
	}
	if d.OffOp1 != 1 {
		t.Errorf("OffOp1 = %d, want 1", d.OffOp1)
	}
	if d.Op1Src != Op1VAL {
		t.Errorf("Op1Src = %s, want VAL", d.Op1Src)
	}

	reEncoded := Encode(d)
	if !reEncoded.Equal(w) {
		t.Errorf("re-encoding mismatch: got %s, want %s", reEncoded, w)
	}
}

func TestDecodeRejectsHighBit(t *testing.T) {
	w := field.FromUint64(uint64(1) << 63)
	if _, err := Decode(w); err == nil {
		t.Fatalf("expected error for word with bit 63 set")
	}
}

func TestDecodeEncodeRoundTripAllFlagCombinations(t *testing.T) {
	// Exercise every legal single-bit-per-group combination, which is the
	// full legal instruction space for the flag portion of the word.
	op1Srcs := []Op1Src{Op1DBL, Op1VAL, Op1FP, Op1AP}
	resLogs := []ResLog{ResONE, ResADD, ResMUL}
	pcUps := []PcUpdate{PcSIZ, PcABS, PcREL, PcJNZ}
	apUps := []ApUpdate{ApZ2, ApADD, ApONE}
	opcodes := []Opcode{OpJMPINC, OpCALL, OpRET, OpAEQ}

	for _, dstReg := range []Register{RegAP, RegFP} {
		for _, op0Reg := range []Register{RegAP, RegFP} {
			for _, op1Src := range op1Srcs {
				for _, resLog := range resLogs {
					for _, pcUp := range pcUps {
						for _, apUp := range apUps {
							for _, opcode := range opcodes {
								d := Decoded{
									OffDst: 5,
									OffOp0: -3,
									OffOp1: 0,
									DstReg: dstReg,
									Op0Reg: op0Reg,
									Op1Src: op1Src,
									ResLog: resLog,
									PcUp:   pcUp,
									ApUp:   apUp,
									Opcode: opcode,
								}
								d.Flags = flagsFor(d)
								w := Encode(d)
								back, err := Decode(w)
								if err != nil {
									t.Fatalf("Decode(Encode(d)) failed: %v", err)
								}
								if !Encode(back).Equal(w) {
									t.Fatalf("round trip mismatch for dstReg=%v op0Reg=%v op1Src=%v resLog=%v pcUp=%v apUp=%v opcode=%v",
										dstReg, op0Reg, op1Src, resLog, pcUp, apUp, opcode)
								}
							}
						}
					}
				}
			}
		}
	}
}

// flagsFor derives the Flags array consistent with the grouped fields of d,
// mirroring what a real encoder/decoder pair must agree on.
func flagsFor(d Decoded) [NumFlags]bool {
	var f [NumFlags]bool
	f[bitDstFP] = d.DstReg == RegFP
	f[bitOp0FP] = d.Op0Reg == RegFP
	f[bitOp1Val] = d.Op1Src == Op1VAL
	f[bitOp1FP] = d.Op1Src == Op1FP
	f[bitOp1AP] = d.Op1Src == Op1AP
	f[bitResAdd] = d.ResLog == ResADD
	f[bitResMul] = d.ResLog == ResMUL
	f[bitPcAbs] = d.PcUp == PcABS
	f[bitPcRel] = d.PcUp == PcREL
	f[bitPcJnz] = d.PcUp == PcJNZ
	f[bitApAdd] = d.ApUp == ApADD
	f[bitApOne] = d.ApUp == ApONE
	f[bitOpcCall] = d.Opcode == OpCALL
	f[bitOpcRet] = d.Opcode == OpRET
	f[bitOpcAeq] = d.Opcode == OpAEQ
	return f
}
