package agent

import (
	"fmt"
	"os"
	"strings"
)

// resolveToken implements the "-T NAME" / "-t PATH" token resolution chain:
// if -T is given, use the environment variable NAME if set, else the literal
// string NAME itself; otherwise read -t's token file. The original Rust
// VaultClient::new does the equivalent token-file read
// (original_source/src/main.rs).
func (c *Command) resolveToken() (string, error) {
	if c.TokenName != "" {
		if v, ok := os.LookupEnv(c.TokenName); ok {
			return v, nil
		}
		return c.TokenName, nil
	}
	data, err := os.ReadFile(c.TokenFile)
	if err != nil {
		return "", &ConfigError{Path: c.TokenFile, Err: fmt.Errorf("read token file: %w", err)}
	}
	return strings.TrimSpace(string(data)), nil
}
