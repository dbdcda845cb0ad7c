package domain

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// SortByWork orders tasks by work code so that "2" sorts before "10" and case
// is ignored. The sort is stable.
func SortByWork(tasks []Revision) []Revision {
	out := make([]Revision, len(tasks))
	copy(out, tasks)
	c := collate.New(language.Und, collate.Numeric, collate.Loose)
	sort.SliceStable(out, func(i, j int) bool {
		return c.CompareString(out[i].Work, out[j].Work) < 0
	})
	return out
}

// MeetingReport renders the plain-text summary of a meeting's tasks that
// secretaries paste into the minutes.
func MeetingReport(title string, tasks []Revision) string {
	var b strings.Builder
	b.WriteString("สรุปวาระการประชุม ")
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, t := range SortByWork(tasks) {
		if t.Work != "" {
			b.WriteString(t.Work)
			b.WriteByte(' ')
		}
		b.WriteString(t.Subject)
		b.WriteByte('\n')
		b.WriteString("   - ECM: " + orDash(t.ECM) + "\n")
		b.WriteString("   - Note: " + orDash(t.Note) + "\n")
		status := t.Status
		if status == "" {
			status = StatusPendingLabel
		}
		b.WriteString("   - สถานะ: " + status + " (" + FormatName(t.Responsible) + ")\n")
		b.WriteByte('\n')
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
