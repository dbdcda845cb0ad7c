package domain

import (
	"strings"
	"time"
)

// Boards partition the whole task space.
const (
	SheetBoard = "Board"
	SheetExcom = "Excom"
)

// Status values written by the forwarding protocol. Any other non-empty value
// is a manual override entered directly in the backing sheet.
const (
	StatusPending       = ""
	StatusPendingLabel  = "Pending"
	StatusSentForReview = "ส่งตรวจ"
	StatusReviewed      = "ตรวจแล้ว"
	StatusClosed        = "ปิดงาน"
)

// Revision is one immutable row of the task log. A logical task is the set of
// revisions sharing a TaskKey; the one with the highest Order is current.
type Revision struct {
	ID            string    `json:"id"`
	Sheet         string    `json:"sheet"`
	RowIndex      int       `json:"rowIndex"`
	Work          string    `json:"work"`
	MeetingNo     string    `json:"meetingNo"`
	RemarkDate    string    `json:"remarkDate,omitempty"`
	Subject       string    `json:"subject"`
	ECM           string    `json:"ecm,omitempty"`
	Note          string    `json:"note,omitempty"`
	Urgent        bool      `json:"urgent"`
	DueDate       string    `json:"dueDate,omitempty"`
	Responsible   string    `json:"responsible"`
	CurrentHolder string    `json:"currentHolder"`
	Status        string    `json:"status"`
	AssignedTo    string    `json:"assignedTo,omitempty"`
	Remark        string    `json:"remark,omitempty"`
	ForwardedBy   string    `json:"forwardedBy,omitempty"`
	Order         int       `json:"order"`
	Timestamp     time.Time `json:"timestamp"`
}

// TaskKey identifies a logical task across its revisions.
type TaskKey struct {
	Sheet     string
	Work      string
	MeetingNo string
	Subject   string
}

// Key returns the logical task identity of r.
func (r Revision) Key() TaskKey {
	return TaskKey{Sheet: r.Sheet, Work: r.Work, MeetingNo: r.MeetingNo, Subject: r.Subject}
}

// IsPending reports whether r carries no explicit status.
func (r Revision) IsPending() bool {
	return r.Status == StatusPending || r.Status == StatusPendingLabel
}

func (k TaskKey) String() string {
	return strings.Join([]string{k.Sheet, k.Work, k.MeetingNo, k.Subject}, "|")
}
