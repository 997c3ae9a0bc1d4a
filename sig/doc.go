// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sig implements byte-pattern signatures: sequences of byte
// predicates where each position either requires an exact byte or accepts
// anything. Signatures are written in the IDA style ("48 8B ?? 05") or built
// from raw strings, and support forward, backward, and exhaustive searches
// over a byte slice.
package sig
