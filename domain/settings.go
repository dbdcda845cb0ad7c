package domain

import (
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownSheet = errors.New("unknown board")

// Settings holds the dashboard options configured per deployment.
type Settings struct {
	Boards      []string `json:"boards" yaml:"boards"`
	WorkOptions []string `json:"workOptions" yaml:"workOptions"`
	DefaultWork string   `json:"defaultWork" yaml:"defaultWork"`
}

// DefaultSettings mirrors the committee's two boards and three work streams.
func DefaultSettings() Settings {
	return Settings{
		Boards:      []string{SheetBoard, SheetExcom},
		WorkOptions: []string{"Resume", "ร่างรายงาน", "Conduct"},
		DefaultWork: "Resume",
	}
}

// ResolveFilter applies defaults to the requested board and work category.
func (s Settings) ResolveFilter(sheet, work string) (Filter, error) {
	if sheet == "" && len(s.Boards) > 0 {
		sheet = s.Boards[0]
	}
	if !slices.Contains(s.Boards, sheet) {
		return Filter{}, fmt.Errorf("%w: %q", ErrUnknownSheet, sheet)
	}
	if work == "" {
		work = s.DefaultWork
	}
	return Filter{Sheet: sheet, Work: work}, nil
}
