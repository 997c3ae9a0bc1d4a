// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sig

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Element is one position of a signature: an exact byte, or a wildcard that
// matches any byte.
type Element struct {
	Value byte
	Any   bool
}

// Signature is an immutable byte pattern. The zero value is the empty
// signature, which matches at every offset.
type Signature struct {
	elems []Element
}

// IDA parses a signature in the IDA notation: space-separated two-digit hex
// bytes, with "?" or "??" marking wildcard positions.
func IDA(pattern string) (Signature, error) {
	var elems []Element
	for _, tok := range strings.Fields(pattern) {
		if tok == "?" || tok == "??" {
			elems = append(elems, Element{Any: true})
			continue
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Signature{}, errors.Wrapf(err, "bad signature byte %q in %q", tok, pattern)
		}
		elems = append(elems, Element{Value: byte(v)})
	}
	return Signature{elems: elems}, nil
}

// String returns a signature matching the raw bytes of s. When
// includeTerminator is set the pattern also requires the trailing NUL, which
// pins the match to the end of a C string.
func String(s string, includeTerminator bool) Signature {
	b := []byte(s)
	if includeTerminator {
		b = append(b, 0)
	}
	return Raw(b)
}

// Raw returns a signature matching exactly the given bytes.
func Raw(b []byte) Signature {
	elems := make([]Element, len(b))
	for i, v := range b {
		elems[i] = Element{Value: v}
	}
	return Signature{elems: elems}
}

// Len returns the signature length in bytes.
func (s Signature) Len() int { return len(s.elems) }

// Elements returns the signature's byte predicates.
func (s Signature) Elements() []Element { return s.elems }

// Matches reports whether the signature matches at the start of b.
func (s Signature) Matches(b []byte) bool {
	if len(b) < len(s.elems) {
		return false
	}
	for i, e := range s.elems {
		if !e.Any && b[i] != e.Value {
			return false
		}
	}
	return true
}

// Next returns the offset of the first match in b.
func (s Signature) Next(b []byte) (int, bool) {
	for o := 0; o+len(s.elems) <= len(b); o++ {
		if s.Matches(b[o:]) {
			return o, true
		}
	}
	return 0, false
}

// Prev returns the offset of the last match in b.
func (s Signature) Prev(b []byte) (int, bool) {
	for o := len(b) - len(s.elems); o >= 0; o-- {
		if s.Matches(b[o:]) {
			return o, true
		}
	}
	return 0, false
}

// All returns the offsets of every match in b, in ascending order.
// Overlapping matches are all reported.
func (s Signature) All(b []byte) []int {
	var offsets []int
	for o := 0; o+len(s.elems) <= len(b); o++ {
		if s.Matches(b[o:]) {
			offsets = append(offsets, o)
		}
	}
	return offsets
}
