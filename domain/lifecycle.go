package domain

import (
	"errors"
	"fmt"
	"strings"
)

// State is the lifecycle position of a logical task, derived from its
// representative revision.
type State string

const (
	StatePending       State = "pending"
	StateSentForReview State = "sent_for_review"
	StateReviewed      State = "reviewed"
	StateClosed        State = "closed"
	StateOverridden    State = "overridden"
)

// Action is a forwarding action requested by a user.
type Action string

const (
	ActionSubmit Action = "SUBMIT"
	ActionReturn Action = "RETURN"
	ActionClose  Action = "CLOSE"
)

var (
	ErrUnknownAction        = errors.New("unknown action")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
)

type transitionKey struct {
	from   State
	role   Role
	action Action
}

var transitions = map[transitionKey]State{
	{StatePending, RoleOwner, ActionSubmit}:           StateSentForReview,
	{StatePending, RoleOwner, ActionClose}:            StateClosed,
	{StateSentForReview, RoleInspector, ActionReturn}: StateReviewed,
	{StateReviewed, RoleOwner, ActionClose}:           StateClosed,
}

var actionOrder = []Action{ActionSubmit, ActionReturn, ActionClose}

// ParseAction accepts the wire names SUBMIT, RETURN and CLOSE.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionSubmit, ActionReturn, ActionClose:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// StateOf derives the lifecycle state of a representative revision. A task
// without a status that sits with someone other than its owner counts as sent
// for review.
func StateOf(t Revision) State {
	switch {
	case t.Status == StatusClosed:
		return StateClosed
	case t.Status == StatusSentForReview:
		return StateSentForReview
	case t.Status == StatusReviewed:
		return StateReviewed
	case !t.IsPending():
		return StateOverridden
	}
	if t.CurrentHolder != "" && FormatName(t.CurrentHolder) != FormatName(t.Responsible) {
		return StateSentForReview
	}
	return StatePending
}

// Transition returns the state reached when a user with role performs action
// from state from.
func Transition(from State, role Role, action Action) (State, error) {
	to, ok := transitions[transitionKey{from, role, action}]
	if !ok {
		return "", fmt.Errorf("%w: %s by %q from %s", ErrTransitionNotAllowed, action, role, from)
	}
	return to, nil
}

// AllowedActions lists the actions role may take on representative t.
func AllowedActions(t Revision, role Role) []Action {
	from := StateOf(t)
	var out []Action
	for _, a := range actionOrder {
		if _, ok := transitions[transitionKey{from, role, a}]; ok {
			out = append(out, a)
		}
	}
	return out
}
