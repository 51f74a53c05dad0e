package agent

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// preflight performs a cheap unauthenticated reachability probe against the
// secret service before the broker is ever constructed. This distinguishes
// a ConfigError (bad URL, bad CA cert, unreachable host) from the broker's
// own, later, fatal backend errors — matching confd's own --preflight mode
// (other_examples/6d2a3011_abtreece-confd__cmd-confd-cli.go.go) and the
// original Rust client's fail-fast login before the broker starts
// (original_source/src/main.rs).
func (c *Command) preflight(ctx context.Context) error {
	client := &http.Client{Timeout: 5 * time.Second}
	if strings.HasPrefix(c.URL, "https://") && c.CACert != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(c.CACert)
		if err == nil && pool.AppendCertsFromPEM(pem) {
			client.Transport = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(c.URL, "/")+"/sys/health", nil)
	if err != nil {
		return &ConfigError{Path: c.URL, Err: fmt.Errorf("build preflight request: %w", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return &ConfigError{Path: c.URL, Err: fmt.Errorf("secret service unreachable: %w", err)}
	}
	defer resp.Body.Close()
	// Any response at all (including a Vault "sealed" 5xx) proves the host
	// and TLS config are reachable; only a transport failure is fatal here.
	return nil
}
