package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTargetRequired = errors.New("next holder is required")
	ErrUnknownTarget  = errors.New("next holder is not an inspector")
	ErrRowNotFound    = errors.New("task row not found")
	ErrStaleRevision  = errors.New("task row is not the latest revision")
)

// ForwardRequest is a forwarding command against the representative stored at
// Sheet/RowIndex. Actor is the display name of the user performing it.
type ForwardRequest struct {
	Sheet      string `json:"sheetName"`
	RowIndex   int    `json:"rowIndex"`
	Remark     string `json:"remark"`
	NextHolder string `json:"nextUserName"`
	Actor      string `json:"currentUserName"`
	ActorRole  Role   `json:"-"`
	Action     Action `json:"actionType"`
}

// ForwardResult is the reply to a forwarding command.
type ForwardResult struct {
	Success bool   `json:"success"`
	NewID   string `json:"newId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ForwardEvent announces a revision appended by a forwarding command.
type ForwardEvent struct {
	RevisionID string    `json:"revisionId"`
	Sheet      string    `json:"sheet"`
	Work       string    `json:"work"`
	MeetingNo  string    `json:"meetingNo"`
	Subject    string    `json:"subject"`
	Action     Action    `json:"action"`
	Actor      string    `json:"actor"`
	NextHolder string    `json:"nextHolder,omitempty"`
	Version    int64     `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
}

// CheckForward verifies that the actor may perform the request's action on
// representative rep.
func CheckForward(rep Revision, req ForwardRequest) error {
	_, err := Transition(StateOf(rep), req.ActorRole, req.Action)
	return err
}

// ValidateTarget checks the recipient of a SUBMIT against the inspectors.
// Other actions pick their own recipient.
func ValidateTarget(action Action, target string, users []User) error {
	if action != ActionSubmit {
		return nil
	}
	if target == "" {
		return ErrTargetRequired
	}
	for _, u := range Inspectors(users) {
		if target == u.DisplayName() || target == u.Name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownTarget, target)
}

// Representative locates the revision stored at row and checks that it is the
// latest revision of its logical task.
func Representative(revs []Revision, sheet string, row int) (Revision, []Revision, error) {
	var rep Revision
	found := false
	for _, r := range revs {
		if r.Sheet == sheet && r.RowIndex == row {
			rep, found = r, true
			break
		}
	}
	if !found {
		return Revision{}, nil, fmt.Errorf("%w: %s row %d", ErrRowNotFound, sheet, row)
	}
	history := BuildHistory(revs).For(rep.Key())
	if rep.Order < MaxOrder(history) {
		return Revision{}, nil, fmt.Errorf("%w: %s row %d", ErrStaleRevision, sheet, row)
	}
	return rep, history, nil
}

// NextRevision builds the revision appended when req is applied to rep. The
// row index is left for the store to assign.
func NextRevision(rep Revision, history []Revision, req ForwardRequest, id string, now time.Time) (Revision, error) {
	if err := CheckForward(rep, req); err != nil {
		return Revision{}, err
	}

	next := rep
	next.ID = id
	next.RowIndex = 0
	next.Remark = req.Remark
	next.ForwardedBy = req.Actor
	next.Order = MaxOrder(history) + 1
	if next.Order <= rep.Order {
		next.Order = rep.Order + 1
	}
	next.Timestamp = now

	switch req.Action {
	case ActionSubmit:
		if req.NextHolder == "" {
			return Revision{}, ErrTargetRequired
		}
		next.Status = StatusSentForReview
		next.CurrentHolder = Recipient(rep, req)
		next.AssignedTo = next.CurrentHolder
	case ActionReturn:
		next.Status = StatusReviewed
		next.CurrentHolder = Recipient(rep, req)
		next.AssignedTo = next.CurrentHolder
	case ActionClose:
		next.Status = StatusClosed
		next.AssignedTo = ""
	default:
		return Revision{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
	return next, nil
}

// Recipient is the holder named by req when applied to rep.
func Recipient(rep Revision, req ForwardRequest) string {
	switch req.Action {
	case ActionSubmit:
		return req.NextHolder
	case ActionReturn:
		return rep.Responsible
	}
	return ""
}

// EventFor describes the revision newID appended on top of rep.
func EventFor(rep Revision, req ForwardRequest, newID string, now time.Time, version int64) ForwardEvent {
	return ForwardEvent{
		RevisionID: newID,
		Sheet:      rep.Sheet,
		Work:       rep.Work,
		MeetingNo:  rep.MeetingNo,
		Subject:    rep.Subject,
		Action:     req.Action,
		Actor:      req.Actor,
		NextHolder: Recipient(rep, req),
		Version:    version,
		Timestamp:  now,
	}
}
