package domain

// HeaderStats are counted over every raw revision on the selected board.
type HeaderStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// TaskView is a representative revision decorated for display.
type TaskView struct {
	Revision
	ResponsibleShort string   `json:"responsibleShort"`
	Badge            Badge    `json:"badge"`
	Actions          []Action `json:"actions"`
	HistoryLength    int      `json:"historyLength"`
}

// GroupView is one meeting card.
type GroupView struct {
	MeetingNo     string        `json:"meetingNo"`
	Title         string        `json:"title"`
	Subtitle      string        `json:"subtitle,omitempty"`
	Closed        int           `json:"closed"`
	Total         int           `json:"total"`
	Holders       []HolderCount `json:"holders"`
	HolderSummary string        `json:"holderSummary"`
	Tasks         []TaskView    `json:"tasks"`
}

// Dashboard is the full view for one board and work category.
type Dashboard struct {
	Sheet       string      `json:"sheet"`
	Work        string      `json:"work"`
	Stats       HeaderStats `json:"stats"`
	WorkOptions []string    `json:"workOptions"`
	Inspectors  []User      `json:"inspectors"`
	Groups      []GroupView `json:"groups"`
	Version     int64       `json:"version"`
	Degraded    bool        `json:"degraded,omitempty"`
}

// BuildDashboard derives the dashboard seen by viewer from a snapshot. It is a
// pure function of its inputs.
func BuildDashboard(revs []Revision, users []User, viewer User, f Filter, s Settings) Dashboard {
	d := Dashboard{
		Sheet:       f.Sheet,
		Work:        f.Work,
		WorkOptions: s.WorkOptions,
		Inspectors:  Inspectors(users),
		Groups:      []GroupView{},
	}
	for _, r := range revs {
		if r.Sheet != f.Sheet {
			continue
		}
		d.Stats.Total++
		if r.Status != "" {
			d.Stats.Completed++
		}
	}

	history := BuildHistory(revs)
	for _, g := range GroupByMeeting(FilterRevisions(revs, f)) {
		holders := HolderSummary(g.Latest, d.Inspectors)
		gv := GroupView{
			MeetingNo:     g.MeetingNo,
			Title:         g.Title(),
			Subtitle:      g.Subtitle(),
			Total:         len(g.Latest),
			Holders:       holders,
			HolderSummary: FormatHolderSummary(holders),
			Tasks:         make([]TaskView, 0, len(g.Latest)),
		}
		for _, t := range g.Latest {
			if t.Status == StatusClosed {
				gv.Closed++
			}
			h := history.For(t.Key())
			gv.Tasks = append(gv.Tasks, TaskView{
				Revision:         t,
				ResponsibleShort: FormatName(t.Responsible),
				Badge:            DeriveStatus(t, h),
				Actions:          AllowedActions(t, viewer.Role),
				HistoryLength:    len(h),
			})
		}
		d.Groups = append(d.Groups, gv)
	}
	return d
}

// MeetingTasks returns the representatives filed under one meeting.
func MeetingTasks(revs []Revision, f Filter, meetingNo string) []Revision {
	for _, g := range GroupByMeeting(FilterRevisions(revs, f)) {
		if g.MeetingNo == meetingNo {
			return g.Latest
		}
	}
	return nil
}
