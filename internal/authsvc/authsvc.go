// Package authsvc implements the authenticated secret-service client: a
// login_async(role) and get_secret_async(role, method, path, kwargs)
// contract. The concrete backend is HashiCorp Vault's Kubernetes auth
// method, accessed through
// github.com/hashicorp/vault/api — the same client library hcat's
// vault_common.go and nomad's own vaultclient package use.
package authsvc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/eburghar/rconfd/internal/secretval"
)

// AuthHandle is the broker's cached login result for a role.
type AuthHandle struct {
	Token         string
	Role          string
	LeaseDuration *time.Duration
	Renewable     bool
	fetchedAt     time.Time
}

// IsLogged reports whether the handle is non-expired for role.
func (h AuthHandle) IsLogged(now time.Time) bool {
	if h.LeaseDuration == nil {
		return true
	}
	return now.Sub(h.fetchedAt) < *h.LeaseDuration
}

// RenewDelay mirrors secret.Secret.RenewDelay's 2/3-of-lease rule, used to
// schedule Login(role) renewal.
func (h AuthHandle) RenewDelay() (time.Duration, bool) {
	if !h.Renewable || h.LeaseDuration == nil {
		return 0, false
	}
	return time.Duration(int64(*h.LeaseDuration) * 2 / 3), true
}

// FetchError wraps a transport or application failure from the secret
// service, always fatal to the pass.
type FetchError struct {
	Role, Path string
	Errors     []string
	Err        error
}

func (e *FetchError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("authsvc: fetch %s (role %s): %s", e.Path, e.Role, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("authsvc: fetch %s (role %s): %v", e.Path, e.Role, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
func (e *FetchError) Fatal() bool   { return true }

// Client wraps *api.Client with the login-endpoint path the agent was
// configured with (-l PATH, default /auth/kubernetes/login).
type Client struct {
	api       *api.Client
	loginPath string
	jwt       string
}

// New builds a Client against baseURL, verifying TLS with caCertPath (empty
// means use the system pool), presenting jwt as the Kubernetes auth
// method's service-account token at loginPath on Login.
func New(baseURL, caCertPath, loginPath, jwt string) (*Client, error) {
	cfg := api.DefaultConfig()
	cfg.Address = baseURL
	if caCertPath != "" {
		if err := cfg.ConfigureTLS(&api.TLSConfig{CACert: caCertPath}); err != nil {
			return nil, fmt.Errorf("authsvc: configure TLS: %w", err)
		}
	}
	cli, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("authsvc: new client: %w", err)
	}
	return &Client{api: cli, loginPath: loginPath, jwt: jwt}, nil
}

// Login performs the Kubernetes auth-method login for role and returns the
// resulting handle.
func (c *Client) Login(ctx context.Context, role string) (AuthHandle, error) {
	resp, err := c.api.Logical().WriteWithContext(ctx, strings.TrimPrefix(c.loginPath, "/"), map[string]interface{}{
		"jwt":  c.jwt,
		"role": role,
	})
	if err != nil {
		return AuthHandle{}, &FetchError{Role: role, Path: c.loginPath, Err: err}
	}
	if resp == nil || resp.Auth == nil {
		return AuthHandle{}, &FetchError{Role: role, Path: c.loginPath, Err: fmt.Errorf("empty auth response")}
	}
	now := time.Now()
	var lease *time.Duration
	if resp.Auth.LeaseDuration > 0 {
		d := time.Duration(resp.Auth.LeaseDuration) * time.Second
		lease = &d
	}
	return AuthHandle{
		Token:         resp.Auth.ClientToken,
		Role:          role,
		LeaseDuration: lease,
		Renewable:     resp.Auth.Renewable,
		fetchedAt:     now,
	}, nil
}

// FetchResult is what Fetch returns: the JSON value plus lease metadata,
// from which the caller builds a secret.Secret.
type FetchResult struct {
	Value         secretval.Value
	LeaseDuration *time.Duration
	Renewable     bool
}

// Fetch retrieves the secret at path using the given role's cached token,
// method ("GET" or "POST", default "GET"), and optional kwargs passed as a
// JSON body on non-GET requests.
func (c *Client) Fetch(ctx context.Context, handle AuthHandle, method, path string, kwargs map[string]string) (FetchResult, error) {
	scoped := c.withToken(handle.Token)

	var resp *api.Secret
	var err error
	switch strings.ToUpper(method) {
	case "", "GET":
		data := make(map[string][]string, len(kwargs))
		for k, v := range kwargs {
			data[k] = []string{v}
		}
		resp, err = scoped.Logical().ReadWithDataWithContext(ctx, path, data)
	default:
		body := make(map[string]interface{}, len(kwargs))
		for k, v := range kwargs {
			body[k] = v
		}
		resp, err = scoped.Logical().WriteWithContext(ctx, path, body)
	}
	if err != nil {
		return FetchResult{}, &FetchError{Role: handle.Role, Path: path, Err: err}
	}
	if resp == nil {
		return FetchResult{}, &FetchError{Role: handle.Role, Path: path, Err: fmt.Errorf("secret not found")}
	}
	if len(resp.Warnings) > 0 {
		// Cosmetic; deliberately not surfaced as an error here.
		_ = resp.Warnings
	}

	value, err := secretval.FromAny(resp.Data)
	if err != nil {
		return FetchResult{}, &FetchError{Role: handle.Role, Path: path, Err: err}
	}

	var lease *time.Duration
	if resp.LeaseDuration > 0 {
		d := time.Duration(resp.LeaseDuration) * time.Second
		lease = &d
	}
	return FetchResult{Value: value, LeaseDuration: lease, Renewable: resp.Renewable}, nil
}

// withToken returns a shallow clone of the underlying api.Client scoped to
// token, the same pattern nomad's vaultclient uses per-derivation rather
// than mutating the shared client.
func (c *Client) withToken(token string) *api.Client {
	cl := c.api.WithNamespace(c.api.Namespace())
	cl.SetToken(token)
	return cl
}
