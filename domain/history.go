package domain

import "sort"

// History maps each logical task to all of its revisions, ascending by Order.
type History map[TaskKey][]Revision

// BuildHistory indexes the full revision set. The index is rebuilt per
// snapshot; callers never update it in place.
func BuildHistory(revs []Revision) History {
	h := make(History)
	for _, r := range revs {
		k := r.Key()
		h[k] = append(h[k], r)
	}
	for _, list := range h {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Order < list[j].Order })
	}
	return h
}

// For returns the revisions recorded for key, or nil.
func (h History) For(key TaskKey) []Revision {
	return h[key]
}

// MaxOrder returns the highest Order in revs, or zero for an empty slice.
func MaxOrder(revs []Revision) int {
	best := 0
	for i, r := range revs {
		if i == 0 || r.Order > best {
			best = r.Order
		}
	}
	return best
}
