// Package identity talks to the email/password identity provider REST API.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrRejected marks a well-formed refusal from the provider, such as a wrong
// password or an email already in use.
var ErrRejected = errors.New("identity provider rejected the request")

// Account is what the provider returns for a successful sign-in or sign-up.
type Account struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
	IDToken string `json:"idToken"`
}

// ProviderError carries the provider's own message, e.g. EMAIL_EXISTS.
type ProviderError struct {
	Status  int
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

func (e *ProviderError) Is(target error) bool { return target == ErrRejected }

// Provider signs users in and up.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Account, error)
	SignUp(ctx context.Context, email, password string) (Account, error)
}

type credentials struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a Provider for the identity toolkit REST API.
type Client struct {
	http   *resty.Client
	apiKey string
}

// NewClient creates a client for the API at baseURL, e.g.
// https://identitytoolkit.googleapis.com/v1.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c, apiKey: apiKey}
}

func (c *Client) SignIn(ctx context.Context, email, password string) (Account, error) {
	return c.call(ctx, "/accounts:signInWithPassword", email, password)
}

func (c *Client) SignUp(ctx context.Context, email, password string) (Account, error) {
	return c.call(ctx, "/accounts:signUp", email, password)
}

func (c *Client) call(ctx context.Context, path, email, password string) (Account, error) {
	var account Account
	var failure errorBody

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(credentials{Email: email, Password: password, ReturnSecureToken: true}).
		SetResult(&account).
		SetError(&failure).
		Post(path)
	if err != nil {
		return Account{}, fmt.Errorf("identity request %s: %w", path, err)
	}

	switch {
	case resp.StatusCode() == http.StatusOK:
		if account.LocalID == "" {
			return Account{}, fmt.Errorf("identity response %s: missing localId", path)
		}
		return account, nil
	case failure.Error.Message != "":
		return Account{}, &ProviderError{Status: resp.StatusCode(), Message: failure.Error.Message}
	default:
		return Account{}, fmt.Errorf("identity request %s status: %d", path, resp.StatusCode())
	}
}
