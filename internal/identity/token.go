package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/withObsrvr/obsrvr-email-rename/internal/records"
)

// TokenExecutor updates users through the Identity Toolkit REST API using a
// web API key: accounts:lookup resolves the localId, accounts:update sets the
// new email.
type TokenExecutor struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *http.Client
	log      *slog.Logger
}

// NewTokenExecutor creates a REST executor. endpoint is the API base URL,
// e.g. https://identitytoolkit.googleapis.com/v1.
func NewTokenExecutor(endpoint, apiKey string, timeout time.Duration, log *slog.Logger) *TokenExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &TokenExecutor{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		timeout:  timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		log: log.With("component", "identity", "executor", "token"),
	}
}

type lookupRequest struct {
	Email []string `json:"email"`
}

type lookupResponse struct {
	Users []struct {
		LocalID string `json:"localId"`
		Email   string `json:"email"`
	} `json:"users"`
}

type updateRequest struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
}

// apiError is the error envelope returned by Google APIs.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// UpdateEmail implements Executor.
func (e *TokenExecutor) UpdateEmail(ctx context.Context, rec records.RenameRecord) (string, error) {
	var found lookupResponse
	if err := e.post(ctx, "accounts:lookup", lookupRequest{Email: []string{rec.OldEmail}}, &found); err != nil {
		return "", fmt.Errorf("lookup %s: %w", rec.OldEmail, err)
	}
	if len(found.Users) == 0 || found.Users[0].LocalID == "" {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, rec.OldEmail)
	}
	localID := found.Users[0].LocalID

	if err := e.post(ctx, "accounts:update", updateRequest{LocalID: localID, Email: rec.NewEmail}, nil); err != nil {
		return "", fmt.Errorf("update uid=%s: %w", localID, err)
	}

	e.log.Debug("email updated", "uid", localID)
	return localID, nil
}

// post sends one JSON request and decodes the response into out when non-nil.
// Non-2xx responses are reported as ErrUpdateRejected.
func (e *TokenExecutor) post(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := callContext(ctx, e.timeout)
	defer cancel()

	endpoint := e.endpoint + "/" + method + "?key=" + url.QueryEscape(e.apiKey)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %s", redactKey(err.Error(), e.apiKey))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http %d: %s", ErrUpdateRejected, resp.StatusCode, errorMessage(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the provider's message, e.g. EMAIL_EXISTS.
func errorMessage(body []byte) string {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// redactKey keeps the API key out of error strings that echo the request URL.
func redactKey(s, key string) string {
	if key == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(key), "REDACTED")
	return strings.ReplaceAll(s, key, "REDACTED")
}

// Verify TokenExecutor implements Executor.
var _ Executor = (*TokenExecutor)(nil)
