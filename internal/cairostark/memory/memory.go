// Package memory implements the sparse, write-once Cairo memory model: a
// partial map from field-element addresses to field-element values, with a
// distinguished public-memory prefix and hole detection for trace padding.
package memory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
)

// ErrMemoryInconsistent is returned when a write conflicts with a value
// already present at the same address.
var ErrMemoryInconsistent = errors.New("memory: inconsistent write")

// Access records one memory operation, grounded on the teacher's RAMCall
// access-log pattern (internal/vybium-starks-vm/vm/vm_state.go RAMCall),
// adapted from a per-cycle RAM log to the Cairo pc/dst/op0/op1 access kinds.
type Access struct {
	Address field.Felt
	Value   field.Felt
	Kind    AccessKind
}

// AccessKind identifies which operand slot produced a memory access, used
// by the trace builder to locate holes per spec §4.E.
type AccessKind int

const (
	KindInstruction AccessKind = iota
	KindDst
	KindOp0
	KindOp1
	KindPublic
	KindCallOldFP
	KindCallRetPC
)

// Memory is the sparse address -> value store. Address 0 is never a valid
// key (per spec §3: "address 0 is unused").
type Memory struct {
	values    map[uint64]field.Felt
	publicLen uint64 // length of the public-memory prefix, addresses [1, publicLen]
	log       []Access
}

// New returns an empty memory.
func New() *Memory {
	return &Memory{values: make(map[uint64]field.Felt)}
}

func addrKey(addr field.Felt) (uint64, error) {
	if !addr.FitsUint64() {
		return 0, fmt.Errorf("memory: address %s does not fit in 64 bits", addr)
	}
	return addr.Uint64(), nil
}

// Read returns the value at addr and whether it is present.
func (m *Memory) Read(addr field.Felt) (field.Felt, bool) {
	key, err := addrKey(addr)
	if err != nil {
		return field.Felt{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Write records an execution-time write. It fails with
// ErrMemoryInconsistent if addr already holds a different value.
func (m *Memory) Write(addr field.Felt, value field.Felt) error {
	return m.write(addr, value, KindInstruction)
}

// WriteKind is like Write but records the access kind for later hole
// detection (dst/op0/op1/instruction fetch).
func (m *Memory) WriteKind(addr field.Felt, value field.Felt, kind AccessKind) error {
	return m.write(addr, value, kind)
}

func (m *Memory) write(addr field.Felt, value field.Felt, kind AccessKind) error {
	key, err := addrKey(addr)
	if err != nil {
		return err
	}
	if existing, ok := m.values[key]; ok {
		if !existing.Equal(value) {
			return fmt.Errorf("%w: address %d held %s, got %s", ErrMemoryInconsistent, key, existing, value)
		}
	} else {
		m.values[key] = value
	}
	m.log = append(m.log, Access{Address: addr, Value: value, Kind: kind})
	return nil
}

// WritePublic extends the public-memory prefix at address addr (addresses
// are expected to be assigned densely starting at 1 by the loader).
func (m *Memory) WritePublic(addr field.Felt, value field.Felt) error {
	if err := m.write(addr, value, KindPublic); err != nil {
		return err
	}
	key, err := addrKey(addr)
	if err != nil {
		return err
	}
	if key > m.publicLen {
		m.publicLen = key
	}
	return nil
}

// PublicLen returns the length of the public-memory prefix (codelen).
func (m *Memory) PublicLen() uint64 {
	return m.publicLen
}

// PublicValues returns the public-memory values in address order, starting
// at address 1 through PublicLen (matching the PublicInputs wire format's
// "public memory values in address order starting at address 0" indexing,
// where index 0 of the returned slice corresponds to address 1 — address 0
// itself is never used).
func (m *Memory) PublicValues() []field.Felt {
	out := make([]field.Felt, m.publicLen)
	for i := uint64(0); i < m.publicLen; i++ {
		addr := i + 1
		if v, ok := m.values[addr]; ok {
			out[i] = v
		} else {
			out[i] = field.Zero()
		}
	}
	return out
}

// Log returns the full sequence of accesses recorded so far, in the order
// they were made.
func (m *Memory) Log() []Access {
	return m.log
}

// Holes returns the set of addresses strictly between the minimum and
// maximum addresses touched by accesses, that are not themselves among those
// accesses — used by the trace builder to insert padding rows (spec §4.E.4).
func Holes(accesses []field.Felt) []field.Felt {
	if len(accesses) == 0 {
		return nil
	}
	keys := make([]uint64, 0, len(accesses))
	present := make(map[uint64]bool, len(accesses))
	for _, a := range accesses {
		k, err := addrKey(a)
		if err != nil {
			continue
		}
		if !present[k] {
			present[k] = true
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	lo, hi := keys[0], keys[len(keys)-1]
	var holes []field.Felt
	for k := lo; k <= hi; k++ {
		if !present[k] {
			holes = append(holes, field.FromUint64(k))
		}
	}
	return holes
}

// HighWaterMark returns the largest address present in memory, or 0 if
// memory is empty.
func (m *Memory) HighWaterMark() uint64 {
	var max uint64
	for k := range m.values {
		if k > max {
			max = k
		}
	}
	return max
}
