// Package identity applies email changes against the Firebase Authentication
// user directory. Two executors exist: one using service-account credentials
// through the Admin SDK, one using a web API key against the Identity Toolkit
// REST surface. A run uses exactly one of them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/withObsrvr/obsrvr-email-rename/internal/config"
	"github.com/withObsrvr/obsrvr-email-rename/internal/records"
)

var (
	// ErrUserNotFound means no user is registered under the old email.
	ErrUserNotFound = errors.New("user not found")

	// ErrUpdateRejected means the provider refused a lookup or update.
	ErrUpdateRejected = errors.New("update rejected")
)

// Executor changes the email of the user currently identified by
// rec.OldEmail to rec.NewEmail. It returns the uid of the updated user.
type Executor interface {
	UpdateEmail(ctx context.Context, rec records.RenameRecord) (uid string, err error)
}

// New builds the executor for the configured mode. Errors here are
// credential initialization failures and abort the run.
func New(ctx context.Context, cfg config.IdentityConfig, log *slog.Logger) (Executor, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultIdentityTimeout
	}

	switch cfg.Mode {
	case config.ModeAdmin:
		creds, err := DecodeCredentials(cfg.CredentialsJSON)
		if err != nil {
			return nil, err
		}
		exec, err := NewAdminExecutor(ctx, creds, cfg.ProjectID, timeout, log)
		if err != nil {
			return nil, fmt.Errorf("init firebase admin: %w", err)
		}
		return exec, nil
	case config.ModeToken:
		return NewTokenExecutor(cfg.Endpoint, cfg.WebAPIKey, timeout, log), nil
	default:
		return nil, fmt.Errorf("unknown identity mode: %q", cfg.Mode)
	}
}

// callContext bounds a single remote call.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
