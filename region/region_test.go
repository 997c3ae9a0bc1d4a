package region

import (
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestPermString(t *testing.T) {
	expect.EQ(t, (Read | Exec | Private).String(), "r-xp")
	expect.EQ(t, (Read | Write | Shared).String(), "rw-s")
	expect.EQ(t, Perm(0).String(), "----")
}

func TestPermBits(t *testing.T) {
	p := Read | Write
	expect.True(t, p.Readable())
	expect.True(t, p.Writable())
	expect.False(t, p.Executable())
}

func TestBasename(t *testing.T) {
	tests := []struct {
		name Name
		want string
		ok   bool
	}{
		{PathName("/usr/lib/libc.so.6"), "libc.so.6", true},
		{PathName("libc.so.6"), "libc.so.6", true},
		{OtherName("anon_inode:[perf_event]"), "anon_inode:[perf_event]", true},
		{OtherName("/memfd:wayland (deleted)"), "memfd:wayland (deleted)", true},
		{Name{Kind: Heap}, "", false},
		{Name{Kind: Anonymous}, "", false},
		{Name{Kind: Vdso}, "", false},
	}
	for _, test := range tests {
		got, ok := test.name.Basename()
		expect.EQ(t, ok, test.ok)
		expect.EQ(t, got, test.want)
	}
}

func TestNameString(t *testing.T) {
	expect.EQ(t, Name{Kind: Heap}.String(), "[heap]")
	expect.EQ(t, Name{Kind: Stack}.String(), "[stack]")
	expect.EQ(t, Name{Kind: Anonymous}.String(), "")
	expect.EQ(t, PathName("/bin/true").String(), "/bin/true")
}

func TestContains(t *testing.T) {
	r := &Region{From: 0x1000, To: 0x2000, Bytes: make([]byte, 0x1000)}
	expect.True(t, r.Contains(0x1000))
	expect.True(t, r.Contains(0x1fff))
	expect.False(t, r.Contains(0xfff))
	expect.False(t, r.Contains(0x2000))
	expect.EQ(t, r.Size(), uint64(0x1000))
}
