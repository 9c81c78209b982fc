package batch

import "sort"

// hostPick is one host selected to host coresPerNode cores of a
// reservation, and the leftover cores that placement left idle on it.
type hostPick struct {
	hostName string
	leftover int
}

// selectHostsFCFS picks the first Nodes hosts (in candidate order) that
// each have at least coresPerNode free cores. It does not try to
// minimize leftover space — FCFS only cares whether the queue head
// fits right now.
func selectHostsFCFS(candidates []string, freeCores map[string]int, nodes, coresPerNode int) ([]hostPick, bool) {
	var picks []hostPick
	for _, name := range candidates {
		if freeCores[name] >= coresPerNode {
			picks = append(picks, hostPick{hostName: name, leftover: freeCores[name] - coresPerNode})
			if len(picks) == nodes {
				return picks, true
			}
		}
	}
	return nil, false
}

// selectHostsBestFit picks the Nodes hosts with the smallest fitting
// hole (least leftover free cores after the reservation), ties broken
// by lowest host name lexicographically, per spec §4.8.
func selectHostsBestFit(candidates []string, freeCores map[string]int, nodes, coresPerNode int) ([]hostPick, bool) {
	var fits []hostPick
	for _, name := range candidates {
		if freeCores[name] >= coresPerNode {
			fits = append(fits, hostPick{hostName: name, leftover: freeCores[name] - coresPerNode})
		}
	}
	if len(fits) < nodes {
		return nil, false
	}
	sort.SliceStable(fits, func(i, j int) bool {
		if fits[i].leftover != fits[j].leftover {
			return fits[i].leftover < fits[j].leftover
		}
		return fits[i].hostName < fits[j].hostName
	})
	return fits[:nodes], true
}
