package memory

import (
	"testing"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
)

func TestReadAbsentReturnsNone(t *testing.T) {
	m := New()
	_, ok := m.Read(field.FromUint64(42))
	if ok {
		t.Fatalf("expected absent read to report not-ok")
	}
}

func TestWriteThenRead(t *testing.T) {
	m := New()
	addr := field.FromUint64(10)
	val := field.FromUint64(99)
	if err := m.Write(addr, val); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, ok := m.Read(addr)
	if !ok {
		t.Fatalf("expected value present after write")
	}
	if !got.Equal(val) {
		t.Errorf("got %s, want %s", got, val)
	}
}

func TestWriteSameValueTwiceIsFine(t *testing.T) {
	m := New()
	addr := field.FromUint64(10)
	val := field.FromUint64(99)
	if err := m.Write(addr, val); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := m.Write(addr, val); err != nil {
		t.Fatalf("repeated identical write should not fail: %v", err)
	}
}

func TestWriteConflictingValueFails(t *testing.T) {
	m := New()
	addr := field.FromUint64(10)
	if err := m.Write(addr, field.FromUint64(1)); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	err := m.Write(addr, field.FromUint64(2))
	if err == nil {
		t.Fatalf("expected ErrMemoryInconsistent")
	}
}

func TestPublicValuesOrdering(t *testing.T) {
	m := New()
	vals := []uint64{10, 20, 410}
	for i, v := range vals {
		addr := field.FromUint64(uint64(i + 1))
		if err := m.WritePublic(addr, field.FromUint64(v)); err != nil {
			t.Fatalf("WritePublic failed: %v", err)
		}
	}
	got := m.PublicValues()
	if len(got) != len(vals) {
		t.Fatalf("PublicValues length = %d, want %d", len(got), len(vals))
	}
	for i, v := range vals {
		if !got[i].Equal(field.FromUint64(v)) {
			t.Errorf("PublicValues[%d] = %s, want %d", i, got[i], v)
		}
	}
}

func TestHolesDetectsGaps(t *testing.T) {
	accesses := []field.Felt{
		field.FromUint64(3),
		field.FromUint64(7),
		field.FromUint64(5),
	}
	holes := Holes(accesses)
	want := map[uint64]bool{4: true, 6: true}
	if len(holes) != len(want) {
		t.Fatalf("Holes returned %d entries, want %d", len(holes), len(want))
	}
	for _, h := range holes {
		if !want[h.Uint64()] {
			t.Errorf("unexpected hole address %s", h)
		}
	}
}

func TestHolesEmptyOnContiguousAccesses(t *testing.T) {
	accesses := []field.Felt{field.FromUint64(1), field.FromUint64(2), field.FromUint64(3)}
	holes := Holes(accesses)
	if len(holes) != 0 {
		t.Fatalf("expected no holes, got %d", len(holes))
	}
}
