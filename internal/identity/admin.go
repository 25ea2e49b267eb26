package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/withObsrvr/obsrvr-email-rename/internal/records"
)

// Directory is the part of the Admin SDK auth client the executor needs.
// *auth.Client satisfies it.
type Directory interface {
	GetUserByEmail(ctx context.Context, email string) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
}

// AdminExecutor updates users with service-account credentials.
type AdminExecutor struct {
	dir     Directory
	timeout time.Duration
	log     *slog.Logger
}

// NewAdminExecutor initializes a Firebase app from credentials JSON.
func NewAdminExecutor(ctx context.Context, credentialsJSON []byte, projectID string, timeout time.Duration, log *slog.Logger) (*AdminExecutor, error) {
	var fbCfg *firebase.Config
	if projectID != "" {
		fbCfg = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, fbCfg, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return nil, fmt.Errorf("create app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("create auth client: %w", err)
	}

	return NewAdminExecutorWithDirectory(client, timeout, log), nil
}

// NewAdminExecutorWithDirectory wraps an existing directory client.
func NewAdminExecutorWithDirectory(dir Directory, timeout time.Duration, log *slog.Logger) *AdminExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &AdminExecutor{
		dir:     dir,
		timeout: timeout,
		log:     log.With("component", "identity", "executor", "admin"),
	}
}

// UpdateEmail implements Executor.
func (e *AdminExecutor) UpdateEmail(ctx context.Context, rec records.RenameRecord) (string, error) {
	uid, err := e.lookup(ctx, rec.OldEmail)
	if err != nil {
		return "", err
	}

	callCtx, cancel := callContext(ctx, e.timeout)
	defer cancel()

	if _, err := e.dir.UpdateUser(callCtx, uid, (&auth.UserToUpdate{}).Email(rec.NewEmail)); err != nil {
		return "", fmt.Errorf("%w: uid=%s: %v", ErrUpdateRejected, uid, err)
	}

	e.log.Debug("email updated", "uid", uid)
	return uid, nil
}

func (e *AdminExecutor) lookup(ctx context.Context, email string) (string, error) {
	callCtx, cancel := callContext(ctx, e.timeout)
	defer cancel()

	user, err := e.dir.GetUserByEmail(callCtx, email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrUserNotFound, email)
		}
		return "", fmt.Errorf("lookup %s: %w", email, err)
	}
	if user == nil || user.UserInfo == nil || user.UID == "" {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return user.UID, nil
}

// Verify AdminExecutor implements Executor.
var _ Executor = (*AdminExecutor)(nil)
