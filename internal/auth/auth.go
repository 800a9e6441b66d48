// Package auth resolves the credential a caller presents into a user id.
// With no identity service configured the credential is the user id itself.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the identity service is unreachable or
	// unavailable. The server fails closed.
	ErrUnavailable = errors.New("auth: unavailable")
)

// defaultTimeout bounds each call to the identity service
const defaultTimeout = 500 * time.Millisecond

// Identity is an authenticated player
type Identity struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Validator validates authentication tokens.
type Validator interface {
	// Validate returns the identity behind token, ErrInvalidToken when the
	// token is rejected, or ErrUnavailable when no decision could be made.
	Validate(ctx context.Context, token string) (Identity, error)
}

// Trusted accepts the presented token as the user id
type Trusted struct{}

func (Trusted) Validate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: token}, nil
}

// HTTPValidator validates tokens via HTTP callback to an identity service.
type HTTPValidator struct {
	url         string
	client      *http.Client
	adminSecret string
	timeout     time.Duration
}

// NewHTTPValidator creates a validator that calls an external HTTP endpoint.
func NewHTTPValidator(url string, adminSecret string) *HTTPValidator {
	return &HTTPValidator{
		url:         url,
		adminSecret: adminSecret,
		timeout:     defaultTimeout,
		client:      &http.Client{Timeout: defaultTimeout},
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	reqBody, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return Identity{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(reqBody))
	if err != nil {
		return Identity{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", v.adminSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return Identity{}, ErrInvalidToken
	default:
		return Identity{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var authResp validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&authResp); err != nil {
		return Identity{}, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}

	if !authResp.Valid {
		return Identity{}, ErrInvalidToken
	}
	if authResp.UserID == "" {
		return Identity{}, fmt.Errorf("%w: identity service returned no user id", ErrUnavailable)
	}

	return Identity{UserID: authResp.UserID, Name: authResp.Name}, nil
}
