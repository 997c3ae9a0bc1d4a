// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package region defines the immutable snapshot representation of a process's
// virtual memory: one Region per contiguous mapping, holding the address
// bounds, the permission bits, the kernel-reported name, and a full copy of
// the mapped bytes captured at snapshot time, plus an ordered Index that
// resolves an address to the Region containing it in O(log n).
package region
