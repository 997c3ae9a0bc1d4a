package scan_test

import (
	"io"
	"testing"

	"github.com/grailbio/memscan/procmem"
	"github.com/grailbio/memscan/region"
	"github.com/grailbio/memscan/scan"
	"github.com/grailbio/memscan/sig"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeSource serves a fixed region list out of per-region byte buffers.
// Addresses missing from mem read short, the way a region that vanished
// between the maps read and the mem read would.
type fakeSource struct {
	descs []procmem.RegionDesc
	mem   map[uint64][]byte
	err   error
}

func (f *fakeSource) Regions() ([]procmem.RegionDesc, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.descs, nil
}

func (f *fakeSource) ReadAt(b []byte, off int64) (int, error) {
	data, ok := f.mem[uint64(off)]
	if !ok {
		return 0, io.EOF
	}
	n := copy(b, data)
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func desc(from, to uint64, perm region.Perm, name region.Name, devMajor uint32) procmem.RegionDesc {
	return procmem.RegionDesc{From: from, To: to, Perm: perm, Name: name, DevMajor: devMajor}
}

func TestFromSource(t *testing.T) {
	hello := make([]byte, 0x10)
	copy(hello, "Hello, world!")
	src := &fakeSource{
		descs: []procmem.RegionDesc{
			desc(0x1000, 0x1010, region.Read|region.Exec, region.PathName("/usr/bin/app"), 8),
			desc(0x2000, 0x3000, region.Read|region.Write, region.Name{Kind: region.Heap}, 0),
			desc(0x4000, 0x4010, region.Read, region.PathName("/usr/bin/gone"), 8),
		},
		mem: map[uint64][]byte{
			0x1000: hello,
			0x2000: make([]byte, 0x1000),
			0x4000: make([]byte, 0x8), // half the region: must be skipped
		},
	}

	f, err := scan.FromSource(src, true)
	require.NoError(t, err)
	require.Equal(t, 2, f.Cache().Len())
	expect.EQ(t, f.Cache().Find(0x1000).Name, region.PathName("/usr/bin/app"))
	expect.Nil(t, f.Cache().Find(0x4000))

	addr, err := f.Signature(sig.String("Hello, world!", false), scan.Everything()).GetPointer()
	require.NoError(t, err)
	expect.EQ(t, addr, uint64(0x1000))
}

func TestFromSourceSkipsDynamic(t *testing.T) {
	src := &fakeSource{
		descs: []procmem.RegionDesc{
			desc(0x1000, 0x1010, region.Read, region.PathName("/usr/bin/app"), 8),
			desc(0x2000, 0x2010, region.Read | region.Write, region.Name{Kind: region.Heap}, 0),
		},
		mem: map[uint64][]byte{
			0x1000: make([]byte, 0x10),
			0x2000: make([]byte, 0x10),
		},
	}
	f, err := scan.FromSource(src, false)
	require.NoError(t, err)
	require.Equal(t, 1, f.Cache().Len())
	expect.Nil(t, f.Cache().Find(0x2000))

	f, err = scan.FromSource(src, true)
	require.NoError(t, err)
	expect.EQ(t, f.Cache().Len(), 2)
}

func TestFromSourceEnumerationError(t *testing.T) {
	src := &fakeSource{err: errors.New("maps unavailable")}
	_, err := scan.FromSource(src, true)
	require.Error(t, err)
}

func TestFromSourceSkipsKernelHalf(t *testing.T) {
	src := &fakeSource{
		descs: []procmem.RegionDesc{
			desc(0xffffffffff600000, 0xffffffffff601000, region.Exec, region.Name{Kind: region.Vsyscall}, 0),
		},
		mem: map[uint64][]byte{},
	}
	f, err := scan.FromSource(src, true)
	require.NoError(t, err)
	expect.EQ(t, f.Cache().Len(), 0)
}
