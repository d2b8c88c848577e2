package grid

import (
	"sort"
)

// AssignLanes spreads overlapping blocks across horizontal lanes with a
// sweep over start times. Blocks in the same overlap cluster share a Lanes
// count; a block never shares a lane with a block it overlaps. Blocks with
// an empty or reversed span occupy no time and always land in lane 0 of
// their own cluster.
//
// The input is not modified and the output keeps the input order.
func AssignLanes(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	copy(out, blocks)
	if len(out) == 0 {
		return out
	}

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := out[order[a]].Event.Start, out[order[b]].Event.Start
		if sa != sb {
			return sa < sb
		}
		return spanEnd(out[order[a]]) > spanEnd(out[order[b]])
	})

	var (
		cluster    []int
		laneEnds   []int
		clusterEnd = -1
	)
	flush := func() {
		for _, idx := range cluster {
			out[idx].Lanes = max(len(laneEnds), 1)
		}
		cluster = cluster[:0]
		laneEnds = laneEnds[:0]
		clusterEnd = -1
	}

	for _, idx := range order {
		start := out[idx].Event.Start.Minutes()
		end := spanEnd(out[idx])

		if len(cluster) > 0 && start >= clusterEnd {
			flush()
		}
		if end <= start {
			// Zero-length: nothing can overlap it.
			out[idx].Lane = 0
			out[idx].Lanes = 1
			continue
		}

		lane := -1
		for l, e := range laneEnds {
			if e <= start {
				lane = l
				break
			}
		}
		if lane < 0 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, end)
		} else {
			laneEnds[lane] = end
		}

		out[idx].Lane = lane
		cluster = append(cluster, idx)
		clusterEnd = max(clusterEnd, end)
	}
	flush()

	return out
}

func spanEnd(b Block) int {
	return b.Event.End.Minutes()
}
