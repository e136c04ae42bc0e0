package cairostarkvm

import (
	"encoding/binary"
	"fmt"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/vmexec"
)

// PublicInputs is everything a verifier is handed out-of-band: the claimed
// initial/final registers, the range-check bounds the trace's sorted offset
// column must span, and the public-memory prefix (the compiled program
// together with any other addresses the loader marked public). This is the
// wire record spec.md §6 calls "input_bytes".
type PublicInputs struct {
	Init, Fin vmexec.Registers
	RCMin     uint16
	RCMax     uint16
	PublicMem []field.Felt
	NumSteps  uint64
}

// MarshalBinary encodes p in the little-endian layout spec.md §6 fixes:
// init (3 felts), fin (3 felts), rc_min/rc_max (u16 each), mem_len (u64)
// followed by mem_len felts, then num_steps (u64).
func (p PublicInputs) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 6*32+2+2+8+len(p.PublicMem)*32+8)
	appendFelt := func(f field.Felt) {
		b := f.Bytes()
		out = append(out, b[:]...)
	}
	appendFelt(p.Init.PC)
	appendFelt(p.Init.AP)
	appendFelt(p.Init.FP)
	appendFelt(p.Fin.PC)
	appendFelt(p.Fin.AP)
	appendFelt(p.Fin.FP)

	var u16buf [2]byte
	binary.LittleEndian.PutUint16(u16buf[:], p.RCMin)
	out = append(out, u16buf[:]...)
	binary.LittleEndian.PutUint16(u16buf[:], p.RCMax)
	out = append(out, u16buf[:]...)

	var u64buf [8]byte
	binary.LittleEndian.PutUint64(u64buf[:], uint64(len(p.PublicMem)))
	out = append(out, u64buf[:]...)
	for _, m := range p.PublicMem {
		appendFelt(m)
	}

	binary.LittleEndian.PutUint64(u64buf[:], p.NumSteps)
	out = append(out, u64buf[:]...)

	return out, nil
}

// UnmarshalBinary decodes p from data in the layout MarshalBinary writes.
// It fails with ErrIO on truncation and ErrNonCanonical if any 32-byte
// field element is not a canonical residue.
func (p *PublicInputs) UnmarshalBinary(data []byte) error {
	r := &byteReader{data: data}

	var err error
	if p.Init.PC, err = r.felt(); err != nil {
		return err
	}
	if p.Init.AP, err = r.felt(); err != nil {
		return err
	}
	if p.Init.FP, err = r.felt(); err != nil {
		return err
	}
	if p.Fin.PC, err = r.felt(); err != nil {
		return err
	}
	if p.Fin.AP, err = r.felt(); err != nil {
		return err
	}
	if p.Fin.FP, err = r.felt(); err != nil {
		return err
	}

	rcMin, err := r.u16()
	if err != nil {
		return err
	}
	rcMax, err := r.u16()
	if err != nil {
		return err
	}
	p.RCMin, p.RCMax = rcMin, rcMax

	memLen, err := r.u64()
	if err != nil {
		return err
	}
	p.PublicMem = make([]field.Felt, memLen)
	for i := range p.PublicMem {
		if p.PublicMem[i], err = r.felt(); err != nil {
			return err
		}
	}

	numSteps, err := r.u64()
	if err != nil {
		return err
	}
	p.NumSteps = numSteps

	if !r.atEnd() {
		return wrapErr(ErrIO, "trailing bytes after public inputs record", nil)
	}
	return nil
}

// byteReader is a minimal little-endian cursor over a fixed byte slice,
// used by PublicInputs and the external dump loaders in serialize.go.
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) atEnd() bool { return r.pos == len(r.data) }

func (r *byteReader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, wrapErr(ErrIO, fmt.Sprintf("unexpected end of input at offset %d, need %d more bytes", r.pos, n), nil)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *byteReader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *byteReader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *byteReader) felt() (field.Felt, error) {
	b, err := r.take(32)
	if err != nil {
		return field.Felt{}, err
	}
	var arr [32]byte
	copy(arr[:], b)
	f, err := field.FromCanonicalBytes(arr)
	if err != nil {
		return field.Felt{}, wrapErr(ErrNonCanonical, "public inputs field element is not canonical", err)
	}
	return f, nil
}
