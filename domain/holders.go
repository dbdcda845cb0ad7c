package domain

import (
	"strconv"
	"strings"
)

// HolderCount is the number of tasks an inspector currently holds.
type HolderCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// HolderSummary counts, for each inspector in input order, the tasks whose
// current holder refers to that inspector. A holder matches on the full name,
// on the nickname, or when it contains the full name.
func HolderSummary(tasks []Revision, inspectors []User) []HolderCount {
	out := make([]HolderCount, 0, len(inspectors))
	for _, u := range inspectors {
		n := 0
		for _, t := range tasks {
			if holds(t.CurrentHolder, u) {
				n++
			}
		}
		out = append(out, HolderCount{Label: u.DisplayName(), Count: n})
	}
	return out
}

func holds(holder string, u User) bool {
	switch {
	case holder == "":
		return false
	case holder == u.Name:
		return true
	case u.NickName != "" && holder == u.NickName:
		return true
	case u.Name != "" && strings.Contains(holder, u.Name):
		return true
	}
	return false
}

// FormatHolderSummary renders counts as "ต่อ 2, ก้อง 0".
func FormatHolderSummary(counts []HolderCount) string {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, c.Label+" "+strconv.Itoa(c.Count))
	}
	return strings.Join(parts, ", ")
}
