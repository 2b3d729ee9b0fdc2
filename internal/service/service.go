package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noah-isme/studio-booking-api/internal/models"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
)

// transactor runs fn inside one transaction carried by the context.
type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type clock func() time.Time

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// loadUser fetches a user and, when role is set, requires it. Missing users
// and role mismatches are both reported as not found with message.
func loadUser(ctx context.Context, users userReader, id string, role models.UserRole, message string) (*models.User, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, message)
	}
	user, err := users.FindByID(ctx, id)
	if err != nil {
		if isNoRows(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, message)
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if role != "" && user.Role != role {
		return nil, appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return user, nil
}

// errorCode extracts the typed code of err for metrics labels.
func errorCode(err error) string {
	if e := appErrors.FromError(err); e != nil {
		return e.Code
	}
	return ""
}
