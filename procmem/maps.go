// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package procmem

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/grailbio/memscan/region"
	"github.com/pkg/errors"
)

// ParseMaps parses the text of a /proc/<pid>/maps file. Lines look like
//
//	55d1e4c46000-55d1e4c68000 r-xp 00000000 08:01 1835043   /usr/bin/cat
//
// where the trailing name column is optional and may contain spaces.
func ParseMaps(r io.Reader) ([]RegionDesc, error) {
	var descs []RegionDesc
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		desc, err := parseMapsLine(line)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read maps data")
	}
	return descs, nil
}

func parseMapsLine(line string) (RegionDesc, error) {
	var desc RegionDesc
	// The first five columns never contain spaces; everything after them is
	// the name.
	fields := strings.SplitN(line, " ", 6)
	if len(fields) < 5 {
		return desc, errors.Errorf("malformed maps line: %q", line)
	}

	addrs := strings.SplitN(fields[0], "-", 2)
	if len(addrs) != 2 {
		return desc, errors.Errorf("malformed address range in maps line: %q", line)
	}
	var err error
	if desc.From, err = strconv.ParseUint(addrs[0], 16, 64); err != nil {
		return desc, errors.Wrapf(err, "bad start address in maps line: %q", line)
	}
	if desc.To, err = strconv.ParseUint(addrs[1], 16, 64); err != nil {
		return desc, errors.Wrapf(err, "bad end address in maps line: %q", line)
	}
	if desc.To <= desc.From {
		return desc, errors.Errorf("empty address range in maps line: %q", line)
	}

	if desc.Perm, err = parsePerm(fields[1]); err != nil {
		return desc, errors.Wrapf(err, "bad permissions in maps line: %q", line)
	}
	if desc.Offset, err = strconv.ParseUint(fields[2], 16, 64); err != nil {
		return desc, errors.Wrapf(err, "bad offset in maps line: %q", line)
	}

	dev := strings.SplitN(fields[3], ":", 2)
	if len(dev) != 2 {
		return desc, errors.Errorf("malformed device in maps line: %q", line)
	}
	major, err := strconv.ParseUint(dev[0], 16, 32)
	if err != nil {
		return desc, errors.Wrapf(err, "bad device major in maps line: %q", line)
	}
	minor, err := strconv.ParseUint(dev[1], 16, 32)
	if err != nil {
		return desc, errors.Wrapf(err, "bad device minor in maps line: %q", line)
	}
	desc.DevMajor = uint32(major)
	desc.DevMinor = uint32(minor)

	if desc.Inode, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
		return desc, errors.Wrapf(err, "bad inode in maps line: %q", line)
	}

	if len(fields) == 6 {
		desc.Name = parseName(strings.TrimLeft(fields[5], " "))
	}
	return desc, nil
}

func parsePerm(s string) (region.Perm, error) {
	if len(s) != 4 {
		return 0, errors.Errorf("permission column %q is not 4 characters", s)
	}
	var p region.Perm
	if s[0] == 'r' {
		p |= region.Read
	}
	if s[1] == 'w' {
		p |= region.Write
	}
	if s[2] == 'x' {
		p |= region.Exec
	}
	switch s[3] {
	case 's':
		p |= region.Shared
	case 'p':
		p |= region.Private
	}
	return p, nil
}

func parseName(s string) region.Name {
	switch {
	case s == "":
		return region.Name{Kind: region.Anonymous}
	case s == "[heap]":
		return region.Name{Kind: region.Heap}
	case s == "[stack]" || strings.HasPrefix(s, "[stack:"):
		// Pre-4.5 kernels report per-thread stacks as [stack:<tid>].
		return region.Name{Kind: region.Stack}
	case s == "[vdso]":
		return region.Name{Kind: region.Vdso}
	case s == "[vvar]":
		return region.Name{Kind: region.Vvar}
	case s == "[vsyscall]":
		return region.Name{Kind: region.Vsyscall}
	case strings.HasPrefix(s, "/"):
		return region.PathName(s)
	}
	return region.OtherName(s)
}
