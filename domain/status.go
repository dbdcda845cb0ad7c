package domain

import "sort"

// StatusCategory drives the badge style of a task row.
type StatusCategory string

const (
	CategoryClosed        StatusCategory = "closed"
	CategoryManual        StatusCategory = "manual"
	CategorySentForReview StatusCategory = "sent_for_review"
	CategoryReviewed      StatusCategory = "reviewed"
	CategoryNone          StatusCategory = "none"
)

// Badge is the derived status of a representative revision.
type Badge struct {
	Text     string         `json:"text"`
	Category StatusCategory `json:"category"`
}

// DeriveStatus computes the status badge of t, the latest revision of its
// logical task, given the task's full history.
func DeriveStatus(t Revision, history []Revision) Badge {
	switch {
	case t.Status == StatusClosed:
		return Badge{Text: StatusClosed, Category: CategoryClosed}
	case t.Status == StatusSentForReview:
		holder := t.CurrentHolder
		if holder == "" {
			holder = t.AssignedTo
		}
		return sentBadge(FormatName(holder))
	case t.Status == StatusReviewed:
		return reviewedBadge(FormatName(t.CurrentHolder))
	case !t.IsPending():
		return Badge{Text: t.Status, Category: CategoryManual}
	}

	holder := t.CurrentHolder
	if holder == "" {
		holder = t.Responsible
	}
	holderName := FormatName(holder)
	if t.CurrentHolder != "" && holderName != FormatName(t.Responsible) {
		return sentBadge(holderName)
	}

	if h, ok := lastReview(t, history); ok {
		return reviewedBadge(FormatName(h.CurrentHolder))
	}
	return Badge{Category: CategoryNone}
}

// lastReview scans history newest first, skipping t itself, for the most
// recent reviewed revision.
func lastReview(t Revision, history []Revision) (Revision, bool) {
	sorted := make([]Revision, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order > sorted[j].Order })
	for _, h := range sorted {
		if h.ID == t.ID {
			continue
		}
		if h.Status == StatusReviewed {
			return h, true
		}
	}
	return Revision{}, false
}

func sentBadge(holder string) Badge {
	return Badge{Text: "ส่ง " + holder, Category: CategorySentForReview}
}

func reviewedBadge(reviewer string) Badge {
	return Badge{Text: reviewer + " แล้ว", Category: CategoryReviewed}
}
