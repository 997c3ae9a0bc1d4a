package scan_test

import (
	"encoding/binary"
	"testing"

	"github.com/grailbio/memscan/region"
	"github.com/grailbio/memscan/scan"
	"github.com/grailbio/memscan/sig"
	"github.com/grailbio/testutil/expect"
	"github.com/grailbio/testutil/h"
	"github.com/stretchr/testify/require"
)

func TestSignatureSeed(t *testing.T) {
	f := scan.New(helloIndex())
	addr, err := f.Signature(sig.String("Hello, world!", false),
		scan.Everything().ThatsReadable()).GetPointer()
	require.NoError(t, err)
	expect.EQ(t, addr, uint64(0x1000))
}

func TestDereferenceChain(t *testing.T) {
	f := scan.New(helloIndex())
	pool := f.Pointer(0x2000).
		Dereference(binary.LittleEndian).
		GetPool()
	expect.EQ(t, pool, []uint64{0x1000})
}

func TestStepForwards(t *testing.T) {
	f := scan.New(helloIndex())
	addr, err := f.Pointer(0x1000).StepForwards(4).GetPointer()
	require.NoError(t, err)
	expect.EQ(t, addr, uint64(0x1004))

	addr, err = f.Pointer(0x1004).StepBackwards(4).GetPointer()
	require.NoError(t, err)
	expect.EQ(t, addr, uint64(0x1000))
}

func TestGetPointerCounts(t *testing.T) {
	f := scan.New(helloIndex())

	// A dereference of an unmapped address drops the only pointer.
	_, err := f.Pointer(0x8000).Dereference(binary.LittleEndian).GetPointer()
	ambiguous, ok := err.(*scan.AmbiguousError)
	require.True(t, ok)
	expect.EQ(t, ambiguous.Count, 0)

	// Multiple survivors report the exact count.
	_, err = f.Pointers([]uint64{0x1000, 0x1001, 0x1002}).GetPointer()
	ambiguous, ok = err.(*scan.AmbiguousError)
	require.True(t, ok)
	expect.EQ(t, ambiguous.Count, 3)
}

func TestEmptySnapshot(t *testing.T) {
	f := scan.New(&region.Index{})
	expect.EQ(t, len(f.Signature(sig.String("x", false), scan.Everything()).GetPool()), 0)
	expect.EQ(t, len(f.Pointers(nil).GetPool()), 0)

	// Seeded pointers exist even without a backing region; the first
	// mutating step drops them.
	expect.EQ(t, f.Pointer(0x1000).GetPool(), []uint64{0x1000})
	expect.EQ(t, len(f.Pointer(0x1000).Dereference(binary.LittleEndian).GetPool()), 0)
}

func TestFilterModule(t *testing.T) {
	idx := helloIndex()
	idx.Insert(&region.Region{
		From: 0x5000, To: 0x5010,
		Perm:  region.Read,
		Name:  region.PathName("/usr/lib/ld.so"),
		Bytes: make([]byte, 0x10),
	})
	f := scan.New(idx)
	pool := f.Pointers([]uint64{0x1004, 0x5004, 0x1008, 0x9000}).
		FilterModule("libc.so.6").
		GetPool()
	expect.EQ(t, pool, []uint64{0x1004, 0x1008})
}

func TestSignatureFilter(t *testing.T) {
	f := scan.New(helloIndex())
	pool := f.Pointers([]uint64{0x1000, 0x1007}).
		SignatureFilter(sig.String("world", false)).
		GetPool()
	expect.EQ(t, pool, []uint64{0x1007})
}

func TestFilterPreservesOrder(t *testing.T) {
	f := scan.New(helloIndex())
	seed := []uint64{0x1000, 0x1001, 0x1002, 0x1003, 0x1004}
	all := f.Pointers(seed).GetPool()
	odd := f.Pointers(seed).Filter(func(p scan.Pointer) bool {
		return p.Address()%2 == 1
	}).GetPool()
	expect.EQ(t, all, seed)
	expect.EQ(t, odd, []uint64{0x1001, 0x1003})
}

func TestMapAndMutate(t *testing.T) {
	f := scan.New(helloIndex())
	pool := f.Pointer(0x1000).Map(func(p scan.Pointer) scan.Pointer {
		p.Add(2)
		return p
	}).GetPool()
	expect.EQ(t, pool, []uint64{0x1002})

	// Mutate drops pointers the mutator invalidates.
	pool = f.Pointers([]uint64{0x1000, 0x1001}).Mutate(func(p *scan.Pointer) {
		if p.Address() == 0x1001 {
			p.Invalidate()
		}
	}).GetPool()
	expect.EQ(t, pool, []uint64{0x1000})
}

func TestInspect(t *testing.T) {
	f := scan.New(helloIndex())
	var seen []uint64
	pool := f.Pointers([]uint64{0x8000, 0x9000}).
		Inspect(func(p scan.Pointer) { seen = append(seen, p.Address()) }).
		Dereference(binary.LittleEndian).
		GetPool()
	// Both flowed past the inspector before the dereference dropped them.
	expect.That(t, seen, h.ElementsAre(uint64(0x8000), uint64(0x9000)))
	expect.EQ(t, len(pool), 0)
}

func TestRepeatN(t *testing.T) {
	f := scan.New(helloIndex())
	addr, err := f.Pointer(0x1000).RepeatN(3, func(p *scan.Pointer) {
		p.Add(2)
	}).GetPointer()
	require.NoError(t, err)
	expect.EQ(t, addr, uint64(0x1006))
}

func TestRepeatWhile(t *testing.T) {
	f := scan.New(helloIndex())
	// Walk forward one byte at a time while the current byte is not 'w'.
	addr, err := f.Pointer(0x1000).RepeatWhile(func(p *scan.Pointer) bool {
		b := p.Read(1)
		if b == nil || b[0] == 'w' {
			return false
		}
		p.Add(1)
		return true
	}).GetPointer()
	require.NoError(t, err)
	expect.EQ(t, addr, uint64(0x1007))
}

func TestXrefFanOut(t *testing.T) {
	// Two regions both storing a pointer to 0x1000.
	idx := helloIndex()
	ptr := make([]byte, 8)
	binary.LittleEndian.PutUint64(ptr, 0x1000)
	idx.Insert(&region.Region{
		From: 0x7000, To: 0x7008,
		Perm:  region.Read,
		Name:  region.Name{Kind: region.Anonymous},
		Bytes: ptr,
	})
	f := scan.New(idx)

	pool := f.Pointer(0x1000).
		FindAbsoluteReferences(binary.LittleEndian, scan.Everything()).
		GetPool()
	expect.EQ(t, pool, []uint64{0x2000, 0x7000})

	// Fan-out replaces each input with its discovered set; an input with no
	// references contributes nothing.
	pool = f.Pointers([]uint64{0x1000, 0x1234}).
		FindAbsoluteReferences(binary.LittleEndian, scan.Everything()).
		GetPool()
	expect.EQ(t, pool, []uint64{0x2000, 0x7000})
}

func TestSignatureThenXref(t *testing.T) {
	f := scan.New(helloIndex())
	// Find the string, then everything pointing at it: the composition the
	// engine exists for.
	pool := f.Signature(sig.String("Hello, world!", false), scan.Everything().ThatsReadable()).
		FindAbsoluteReferences(binary.LittleEndian, scan.Everything().ThatsWritable()).
		GetPool()
	expect.EQ(t, pool, []uint64{0x2000})
}

func TestSessionIsOneShot(t *testing.T) {
	f := scan.New(helloIndex())
	s := f.Pointers([]uint64{0x1000, 0x1004})
	expect.EQ(t, s.Count(), 2)
	expect.EQ(t, s.Count(), 0)
}
