package domain

import (
	"sort"
	"strings"
)

// NoMeeting collects revisions without a meeting number.
const NoMeeting = "No Meeting"

const meetingPrefix = "การประชุม"

// Filter selects the board tab and work category shown on a dashboard.
// An empty Work keeps every category.
type Filter struct {
	Sheet string
	Work  string
}

// MeetingGroup is one meeting bucket: every revision filed under the meeting
// and the latest revision of each subject.
type MeetingGroup struct {
	MeetingNo string
	Revisions []Revision
	Latest    []Revision
}

// Title renders the meeting heading shown above the group.
func (g MeetingGroup) Title() string {
	return MeetingTitle(g.MeetingNo)
}

// Subtitle is the remark date of the first revision filed under the meeting.
func (g MeetingGroup) Subtitle() string {
	if len(g.Revisions) == 0 {
		return ""
	}
	return g.Revisions[0].RemarkDate
}

// FilterRevisions keeps the revisions on the filter's board and work category.
func FilterRevisions(revs []Revision, f Filter) []Revision {
	out := make([]Revision, 0, len(revs))
	for _, r := range revs {
		if r.Sheet != f.Sheet {
			continue
		}
		if f.Work != "" && r.Work != f.Work {
			continue
		}
		out = append(out, r)
	}
	return out
}

// GroupByMeeting partitions revs by meeting number and reduces each bucket to
// one representative per subject. Groups are ordered by meeting key.
func GroupByMeeting(revs []Revision) []MeetingGroup {
	buckets := make(map[string][]Revision)
	for _, r := range revs {
		key := r.MeetingNo
		if key == "" {
			key = NoMeeting
		}
		buckets[key] = append(buckets[key], r)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([]MeetingGroup, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, MeetingGroup{
			MeetingNo: k,
			Revisions: buckets[k],
			Latest:    LatestBySubject(buckets[k]),
		})
	}
	return groups
}

// LatestBySubject keeps, for every subject, the revision with the highest
// Order. Subjects keep the order in which they were first seen. Order values
// are expected to be unique per subject; on a tie the first one seen wins.
func LatestBySubject(revs []Revision) []Revision {
	index := make(map[string]int)
	out := make([]Revision, 0, len(revs))
	for _, r := range revs {
		i, ok := index[r.Subject]
		if !ok {
			index[r.Subject] = len(out)
			out = append(out, r)
			continue
		}
		if r.Order > out[i].Order {
			out[i] = r
		}
	}
	return out
}

// MeetingTitle strips the meeting prefix token for display.
func MeetingTitle(meetingNo string) string {
	clean := strings.TrimSpace(strings.Replace(meetingNo, meetingPrefix, "", 1))
	return "ครั้งที่ " + clean
}
