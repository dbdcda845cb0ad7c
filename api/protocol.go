package api

import (
	"time"

	"agenda-tracker/domain"
)

const requestMaxSize = 16 * 1024 // 16 KiB

// POST /api/session and GET /api/me
type sessionResponse struct {
	User        *domain.User       `json:"user,omitempty"`
	Access      domain.AccessState `json:"access"`
	DisplayName string             `json:"displayName"`
}

// POST /api/login
type loginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

// POST /api/password
type passwordRequest struct {
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// GET /api/tasks
type tasksResponse struct {
	Tasks   []domain.Revision `json:"tasks"`
	Version int64             `json:"version"`
}

// GET /api/users
type usersResponse struct {
	Users   []domain.User `json:"users"`
	Version int64         `json:"version"`
}

// GET /api/history
type historyResponse struct {
	Task     domain.Revision        `json:"task"`
	Badge    domain.Badge           `json:"badge"`
	History  []domain.Revision      `json:"history"`
	Timeline []domain.TimelineEntry `json:"timeline"`
	Version  int64                  `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// 403 body for identities still waiting for a role.
type pendingResponse struct {
	State       domain.AccessState `json:"state"`
	DisplayName string             `json:"displayName"`
}
