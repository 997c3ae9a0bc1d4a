// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package snapshotio persists memory snapshots. A snapshot file is a
// recordio container, zstd-compressed, holding one record per region; each
// record carries the region metadata, a seahash of the captured bytes, and
// the bytes themselves. The checksum is verified on load, so a truncated or
// corrupted capture fails loudly instead of yielding wrong addresses.
package snapshotio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/memscan/region"
)

const (
	trailerVersion = 1

	// Fixed-width prefix of a region record: from, to, perm, name kind,
	// name length, byte checksum.
	recHeaderLen = 8 + 8 + 1 + 1 + 4 + 8
)

func init() {
	recordiozstd.Init()
}

// Write serialises every region of the snapshot to out.
func Write(out io.Writer, index *region.Index) error {
	w := recordio.NewWriter(out, recordio.WriterOpts{
		Marshal:      marshalRegion,
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(recordio.KeyTrailer, true)
	for _, r := range index.Regions() {
		w.Append(r)
	}
	w.SetTrailer(trailer(index.Len()))
	return w.Finish()
}

// Read loads a snapshot written by Write and rebuilds the region index.
func Read(in io.ReadSeeker) (*region.Index, error) {
	sc := recordio.NewScanner(in, recordio.ScannerOpts{})
	header := sc.Header()
	if !header.HasTrailer() {
		return nil, errors.E("snapshot file has no trailer")
	}
	want, err := parseTrailer(sc.Trailer())
	if err != nil {
		return nil, err
	}
	index := &region.Index{}
	for sc.Scan() {
		r, err := unmarshalRegion(sc.Get().([]byte))
		if err != nil {
			return nil, err
		}
		index.Insert(r)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(err, "reading snapshot records")
	}
	if index.Len() != want {
		return nil, errors.E(fmt.Sprintf("snapshot holds %d regions, trailer promises %d", index.Len(), want))
	}
	return index, nil
}

func trailer(numRegions int) []byte {
	var buffer bytes.Buffer
	if err := binary.Write(&buffer, binary.LittleEndian, int64(trailerVersion)); err != nil {
		panic("couldn't write trailer version")
	}
	if err := binary.Write(&buffer, binary.LittleEndian, int64(numRegions)); err != nil {
		panic("couldn't write region count to trailer")
	}
	return buffer.Bytes()
}

func parseTrailer(trailer []byte) (int, error) {
	r := bytes.NewReader(trailer)
	var version, numRegions int64
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, errors.E(err, "reading snapshot trailer")
	}
	if version != trailerVersion {
		return 0, errors.E(fmt.Sprintf("unrecognized snapshot version: got %d, want %d", version, trailerVersion))
	}
	if err := binary.Read(r, binary.LittleEndian, &numRegions); err != nil {
		return 0, errors.E(err, "reading snapshot trailer")
	}
	return int(numRegions), nil
}

func marshalRegion(scratch []byte, v interface{}) ([]byte, error) {
	r := v.(*region.Region)
	name := r.Name.Str
	n := recHeaderLen + len(name) + len(r.Bytes)
	t := scratch
	if len(t) < n {
		t = make([]byte, n)
	}
	t = t[:n]

	binary.LittleEndian.PutUint64(t[0:8], r.From)
	binary.LittleEndian.PutUint64(t[8:16], r.To)
	t[16] = byte(r.Perm)
	t[17] = byte(r.Name.Kind)
	binary.LittleEndian.PutUint32(t[18:22], uint32(len(name)))
	binary.LittleEndian.PutUint64(t[22:30], sum(r.Bytes))
	copy(t[recHeaderLen:], name)
	copy(t[recHeaderLen+len(name):], r.Bytes)
	return t, nil
}

func unmarshalRegion(b []byte) (*region.Region, error) {
	if len(b) < recHeaderLen {
		return nil, errors.E("snapshot record too short")
	}
	from := binary.LittleEndian.Uint64(b[0:8])
	to := binary.LittleEndian.Uint64(b[8:16])
	perm := region.Perm(b[16])
	kind := region.NameKind(b[17])
	nameLen := int(binary.LittleEndian.Uint32(b[18:22]))
	wantSum := binary.LittleEndian.Uint64(b[22:30])

	if to <= from || len(b) != recHeaderLen+nameLen+int(to-from) {
		return nil, errors.E(fmt.Sprintf("inconsistent snapshot record for %x-%x", from, to))
	}
	name := string(b[recHeaderLen : recHeaderLen+nameLen])
	data := make([]byte, to-from)
	copy(data, b[recHeaderLen+nameLen:])
	if got := sum(data); got != wantSum {
		return nil, errors.E(fmt.Sprintf("checksum mismatch in region %x-%x: got %x, want %x", from, to, got, wantSum))
	}
	return &region.Region{
		From:  from,
		To:    to,
		Perm:  perm,
		Name:  region.Name{Kind: kind, Str: name},
		Bytes: data,
	}, nil
}

func sum(b []byte) uint64 {
	h := seahash.New()
	h.Write(b) // nolint: errcheck
	return h.Sum64()
}
