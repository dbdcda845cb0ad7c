package domain

import "time"

// TimelineEntry is one step of a task's forwarding trail.
type TimelineEntry struct {
	Action    string    `json:"action"`
	Remark    string    `json:"remark,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// BuildTimeline lists the history entries that carry a status, newest first.
func BuildTimeline(history []Revision) []TimelineEntry {
	out := make([]TimelineEntry, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Status == "" {
			continue
		}
		out = append(out, TimelineEntry{
			Action:    timelineAction(h),
			Remark:    h.Remark,
			Status:    h.Status,
			Timestamp: h.Timestamp,
		})
	}
	return out
}

func timelineAction(h Revision) string {
	sender := h.ForwardedBy
	if sender == "" {
		sender = h.CurrentHolder
	}
	if sender == "" {
		sender = h.Responsible
	}
	short := FormatName(sender)

	switch h.Status {
	case StatusSentForReview:
		label := short
		if short == FormatName(h.Responsible) {
			label += " (ผู้รับผิดชอบ)"
		}
		return label + " > ส่งตรวจ " + FormatName(h.AssignedTo)
	case StatusReviewed:
		return short + " > ตรวจแล้ว"
	case StatusClosed:
		return short + " > ปิดงาน"
	}
	return short + " (เริ่มต้น)"
}
