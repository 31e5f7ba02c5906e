// SARec - Smart Adaptive Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sarec

package algorithms

import "sort"

// rankPopularity returns item ids with a nonzero occurrence count ordered by
// count descending, ties by ascending id.
func rankPopularity(occ []uint32) []uint32 {
	ids := make([]uint32, 0, len(occ))
	for id := 1; id < len(occ); id++ {
		if occ[id] > 0 {
			ids = append(ids, uint32(id))
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		ci, cj := occ[ids[i]], occ[ids[j]]
		if ci != cj {
			return ci > cj
		}
		return ids[i] < ids[j]
	})
	return ids
}
