package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/google/uuid"

	"agenda-tracker/domain"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNotSupported = errors.New("operation not supported by storage backend")
)

// Backend is implemented by every revision store.
type Backend interface {
	FetchRevisions(ctx context.Context) ([]domain.Revision, error)
	FetchUsers(ctx context.Context) ([]domain.User, error)
	ForwardTask(ctx context.Context, req domain.ForwardRequest) (string, error)
	RegisterUser(ctx context.Context, userID, displayName string) (domain.User, error)
	SetPassword(ctx context.Context, userID, passwordHash string) error
}

// Importer bulk loads revisions and users, assigning fresh row references.
type Importer interface {
	Import(ctx context.Context, revs []domain.Revision, users []domain.User) error
}

// RoleSetter grants roles to registered users.
type RoleSetter interface {
	SetRole(ctx context.Context, userID string, role domain.Role) error
}

// CredentialStore exposes stored password hashes for web sign-in.
type CredentialStore interface {
	PasswordHash(ctx context.Context, userID string) (string, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

var clock = time.Now

// appendRevision resolves the row reference in req against revs and builds
// the revision to append.
func appendRevision(revs []domain.Revision, req domain.ForwardRequest) (domain.Revision, error) {
	rep, history, err := domain.Representative(revs, req.Sheet, req.RowIndex)
	if err != nil {
		return domain.Revision{}, err
	}
	return domain.NextRevision(rep, history, req, uuid.NewString(), clock().UTC())
}

func retryOptions(maxRetries int32, tryTimeout, maxDelay time.Duration) azcore.ClientOptions {
	return azcore.ClientOptions{
		Retry: policy.RetryOptions{
			MaxRetries:    maxRetries,
			TryTimeout:    tryTimeout,
			RetryDelay:    time.Second * 1,
			MaxRetryDelay: maxDelay,
			StatusCodes:   []int{408, 429, 500, 502, 503, 504},
		},
	}
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

func isErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
