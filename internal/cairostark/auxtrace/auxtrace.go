// Package auxtrace builds the two auxiliary permutation segments (memory
// consistency, 16-bit range check) from verifier randomness, following
// spec §4.F. This generalizes the teacher's cross-table running-product
// permutation argument machinery (internal/vybium-starks-vm/vm package's
// lookup/permutation helpers) down to the exactly-two segments this spec
// names, operating on the main trace's virtual columns rather than
// TritonVM's many cross-linked tables.
package auxtrace

import (
	"sort"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
	"github.com/cairostark/cairo-stark-vm/internal/cairostark/tracebuilder"
)

// MemoryWidth is the physical width of the memory auxiliary segment
// (4 sub-columns each for a', v', p).
const MemoryWidth = 12

// RangeCheckWidth is the physical width of the range-check auxiliary
// segment (3 sub-columns each for a'_rc, p_rc).
const RangeCheckWidth = 6

// MemoryColumn offsets within a MemorySegment row.
const (
	MemAPrimeStart = 0 // 4 columns: a'[0..3]
	MemVPrimeStart = 4 // 4 columns: v'[0..3]
	MemPStart      = 8 // 4 columns: p[0..3]
)

// RangeCheckColumn offsets within a RangeCheckSegment row.
const (
	RCAPrimeStart = 0 // 3 columns: a'_rc[0..2]
	RCPStart      = 3 // 3 columns: p_rc[0..2]
)

// MemoryRow is one row of the memory auxiliary segment.
type MemoryRow [MemoryWidth]field.Felt

// RangeCheckRow is one row of the range-check auxiliary segment.
type RangeCheckRow [RangeCheckWidth]field.Felt

// Segments bundles both auxiliary segments, padded to the main trace's
// row count T.
type Segments struct {
	Memory     []MemoryRow
	RangeCheck []RangeCheckRow

	// PLast and PRCLast are the terminal running-product values. PLast is
	// checked by the AIR's p_m boundary assertion; PRCLast has no boundary
	// assertion.
	PLast   field.Felt
	PRCLast field.Felt
}

const memVirtualWidth = 4
const rcVirtualWidth = 3

// extractMemoryVirtualColumns reads the (a, v) virtual columns (length 4T)
// from the main trace's address/value physical columns, in the exact
// round-robin order spec §4.E.7 fixes: pc, dst_addr, op0_addr, op1_addr for
// addresses, inst, dst, op0, op1 for values.
func extractMemoryVirtualColumns(tr tracebuilder.Trace) (a, v []field.Felt) {
	t := len(tr.Rows)
	a = make([]field.Felt, 0, t*memVirtualWidth)
	v = make([]field.Felt, 0, t*memVirtualWidth)
	for _, row := range tr.Rows {
		a = append(a, row[tracebuilder.ColPC], row[tracebuilder.ColDstAddr], row[tracebuilder.ColOp0Addr], row[tracebuilder.ColOp1Addr])
		v = append(v, row[tracebuilder.ColInst], row[tracebuilder.ColDst], row[tracebuilder.ColOp0], row[tracebuilder.ColOp1])
	}
	return a, v
}

func extractRangeCheckVirtualColumn(tr tracebuilder.Trace) []field.Felt {
	t := len(tr.Rows)
	a := make([]field.Felt, 0, t*rcVirtualWidth)
	for _, row := range tr.Rows {
		a = append(a, row[tracebuilder.ColOffDst], row[tracebuilder.ColOffOp0], row[tracebuilder.ColOffOp1])
	}
	return a
}

// replacePublicMemoryTail overwrites the last codelen virtual positions of
// (a, v) with the true public-memory (address, value) pairs in index order
// (spec §4.F). Addresses are 1-indexed: PublicMem[i] lives at address i+1.
func replacePublicMemoryTail(a, v []field.Felt, publicMem []field.Felt) ([]field.Felt, []field.Felt) {
	aOut := append([]field.Felt{}, a...)
	vOut := append([]field.Felt{}, v...)
	n := len(publicMem)
	start := len(aOut) - n
	if start < 0 {
		start = 0
	}
	for i := 0; i < n && start+i < len(aOut); i++ {
		aOut[start+i] = field.FromUint64(uint64(i + 1))
		vOut[start+i] = publicMem[i]
	}
	return aOut, vOut
}

// sortByAddress returns the permutation that sorts a by canonical integer
// value, applied to both a and v.
func sortByAddress(a, v []field.Felt) (aPrime, vPrime []field.Felt) {
	idx := make([]int, len(a))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return a[idx[i]].LessThan(a[idx[j]]) })
	aPrime = make([]field.Felt, len(a))
	vPrime = make([]field.Felt, len(a))
	for pos, i := range idx {
		aPrime[pos] = a[i]
		vPrime[pos] = v[i]
	}
	return aPrime, vPrime
}

func sortSingle(a []field.Felt) []field.Felt {
	out := append([]field.Felt{}, a...)
	sort.Slice(out, func(i, j int) bool { return out[i].LessThan(out[j]) })
	return out
}

// memoryRunningProduct computes p[i] per spec §4.F's memory-permutation
// recurrence.
func memoryRunningProduct(a, v, aPrime, vPrime []field.Felt, z, alpha field.Felt) ([]field.Felt, error) {
	n := len(a)
	p := make([]field.Felt, n)
	for i := 0; i < n; i++ {
		num := z.Sub(a[i].Add(alpha.Mul(v[i])))
		den := z.Sub(aPrime[i].Add(alpha.Mul(vPrime[i])))
		ratio, err := num.Div(den)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			p[i] = ratio
		} else {
			p[i] = p[i-1].Mul(ratio)
		}
	}
	return p, nil
}

func rangeCheckRunningProduct(a, aPrime []field.Felt, zPrime field.Felt) ([]field.Felt, error) {
	n := len(a)
	p := make([]field.Felt, n)
	for i := 0; i < n; i++ {
		num := zPrime.Sub(a[i])
		den := zPrime.Sub(aPrime[i])
		ratio, err := num.Div(den)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			p[i] = ratio
		} else {
			p[i] = p[i-1].Mul(ratio)
		}
	}
	return p, nil
}

// splitMemory folds the length-4T virtual columns a', v', p into T physical
// rows of width 12, round-robin by index mod 4 (spec §4.E.7's virtual
// column semantics).
func splitMemory(t int, aPrime, vPrime, p []field.Felt) []MemoryRow {
	rows := make([]MemoryRow, t)
	for i := 0; i < t; i++ {
		for k := 0; k < memVirtualWidth; k++ {
			idx := i*memVirtualWidth + k
			rows[i][MemAPrimeStart+k] = aPrime[idx]
			rows[i][MemVPrimeStart+k] = vPrime[idx]
			rows[i][MemPStart+k] = p[idx]
		}
	}
	return rows
}

func splitRangeCheck(t int, aPrime, p []field.Felt) []RangeCheckRow {
	rows := make([]RangeCheckRow, t)
	for i := 0; i < t; i++ {
		for k := 0; k < rcVirtualWidth; k++ {
			idx := i*rcVirtualWidth + k
			rows[i][RCAPrimeStart+k] = aPrime[idx]
			rows[i][RCPStart+k] = p[idx]
		}
	}
	return rows
}

// ReplacedMemoryColumns returns the raw (unsorted) memory virtual columns
// (a, v) after the public-memory tail replacement, i.e. the sequence Build
// sorts into a', v'. The running product's numerator uses the columns
// before this replacement.
func ReplacedMemoryColumns(tr tracebuilder.Trace) (a, v []field.Felt) {
	a, v = extractMemoryVirtualColumns(tr)
	return replacePublicMemoryTail(a, v, tr.PublicMem)
}

// RangeCheckColumn returns the raw (unsorted) range-check virtual column.
func RangeCheckColumn(tr tracebuilder.Trace) []field.Felt {
	return extractRangeCheckVirtualColumn(tr)
}

// Build constructs both auxiliary segments for the given main trace and
// verifier randomness (z, alpha) for memory, zPrime for range-check.
func Build(tr tracebuilder.Trace, z, alpha, zPrime field.Felt) (Segments, error) {
	t := len(tr.Rows)

	a, v := extractMemoryVirtualColumns(tr)
	aReplace, vReplace := replacePublicMemoryTail(a, v, tr.PublicMem)
	aPrime, vPrime := sortByAddress(aReplace, vReplace)
	// The numerator of the permutation argument runs over the original
	// accessed columns (a, v), not the public-memory-replaced ones: only
	// a', v' (the sorted side) come from a_replace (spec §4.F). The
	// committed a_replace is still what gets sorted into a', v' above.
	p, err := memoryRunningProduct(a, v, aPrime, vPrime, z, alpha)
	if err != nil {
		return Segments{}, err
	}
	memRows := splitMemory(t, aPrime, vPrime, p)

	aRC := extractRangeCheckVirtualColumn(tr)
	aRCPrime := sortSingle(aRC)
	pRC, err := rangeCheckRunningProduct(aRC, aRCPrime, zPrime)
	if err != nil {
		return Segments{}, err
	}
	rcRows := splitRangeCheck(t, aRCPrime, pRC)

	var pLast, pRCLast field.Felt
	if len(p) > 0 {
		pLast = p[len(p)-1]
	}
	if len(pRC) > 0 {
		pRCLast = pRC[len(pRC)-1]
	}

	return Segments{
		Memory:     memRows,
		RangeCheck: rcRows,
		PLast:      pLast,
		PRCLast:    pRCLast,
	}, nil
}
