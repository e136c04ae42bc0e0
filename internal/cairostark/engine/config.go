package engine

import "fmt"

// Options configures the STARK engine's proof parameters, following spec
// §6's CLI flags and the teacher's utils/config.go Config/Validate/With...
// builder pattern (renamed Options to avoid colliding with this package's
// narrower proving scope).
type Options struct {
	NumOutputs           int
	NumQueries           int
	BlowupFactor          int
	GrindingFactor        int
	FRIFoldingFactor      int
	FRIMaxRemainderSize   int
	HashFunction          string // "sha3" or "sha256", passed to NewChannel
}

// DefaultOptions mirrors the teacher's DefaultConfig, scaled to this
// engine's parameter names and spec §6's allowed ranges.
func DefaultOptions() Options {
	return Options{
		NumOutputs:          1,
		NumQueries:          32,
		BlowupFactor:         8,
		GrindingFactor:       0,
		FRIFoldingFactor:     8,
		FRIMaxRemainderSize:  64,
		HashFunction:         "sha3",
	}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate enforces spec §6's parameter-validation rules.
func (o Options) Validate() error {
	if o.NumQueries < 1 || o.NumQueries > 128 {
		return fmt.Errorf("engine: num_queries %d out of range [1,128]", o.NumQueries)
	}
	switch o.BlowupFactor {
	case 4, 8, 16, 32, 64, 128, 256:
	default:
		return fmt.Errorf("engine: blowup_factor %d must be a power of two in {4,...,256}", o.BlowupFactor)
	}
	if o.GrindingFactor < 0 || o.GrindingFactor > 32 {
		return fmt.Errorf("engine: grinding_factor %d out of range [0,32]", o.GrindingFactor)
	}
	switch o.FRIFoldingFactor {
	case 4, 8, 16:
	default:
		return fmt.Errorf("engine: fri_folding_factor %d must be one of {4,8,16}", o.FRIFoldingFactor)
	}
	if !isPowerOfTwo(o.FRIMaxRemainderSize) || o.FRIMaxRemainderSize < 32 || o.FRIMaxRemainderSize > 1024 {
		return fmt.Errorf("engine: fri_max_remainder_size %d must be a power of two in [32,1024]", o.FRIMaxRemainderSize)
	}
	return nil
}
