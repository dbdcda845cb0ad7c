package api

import (
	"context"
	"time"

	"agenda-tracker/domain"
)

// Storage abstracts the revision log for handlers.
type Storage interface {
	FetchRevisions(ctx context.Context) ([]domain.Revision, error)
	FetchUsers(ctx context.Context) ([]domain.User, error)
	ForwardTask(ctx context.Context, req domain.ForwardRequest) (string, error)
	RegisterUser(ctx context.Context, userID, displayName string) (domain.User, error)
	SetPassword(ctx context.Context, userID, passwordHash string) error
}

// CredentialStore is implemented by storages that keep password hashes.
type CredentialStore interface {
	PasswordHash(ctx context.Context, userID string) (string, error)
}

// Pinger is implemented by storages able to report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Identity is the signed-in caller as asserted by a token.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Authenticator verifies bearer tokens and issues session tokens.
type Authenticator interface {
	Identify(token []byte) (Identity, error)
	IssueSession(u domain.User) (string, time.Time, error)
}

// ForwardLocker allows at most one in-flight forward per logical task.
type ForwardLocker interface {
	// Acquire takes the lock for key and returns the token needed to release
	// it. ok is false when somebody else holds the lock.
	Acquire(ctx context.Context, key string) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// EventSink receives forward events for downstream notifiers.
type EventSink interface {
	Publish(ctx context.Context, events ...domain.ForwardEvent) error
}
