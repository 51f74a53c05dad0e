// Package agent implements the CLI entrypoint: flag parsing, job-file
// loading, token resolution, and the startup wiring that seeds the broker
// before handing control to its event loop.
//
// Grounded on the original rconfd's args.rs (flag shape) and nomad's own
// command.Meta pattern of a small Command struct owning a *flag.FlagSet
// (_examples/hashicorp-nomad), adapted to this binary's single mode of
// operation — no subcommand dispatcher is needed, so stdlib flag.FlagSet is
// used directly instead of hashicorp/cli.
package agent

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Command holds the agent's resolved CLI configuration.
type Command struct {
	JobDir      string
	URL         string
	LoginPath   string
	SearchPath  string // comma-separated, raw from -j
	CACert      string
	TokenName   string
	TokenFile   string
	Verbose     bool
	ReadyFD     int
	Daemon      bool
	MetricsAddr string
}

const progName = "rconfd"

// NewCommand returns a Command pre-filled with its documented defaults.
func NewCommand() *Command {
	url := os.Getenv("AUTHSVC_URL")
	if url == "" {
		url = "https://localhost:8200/v1"
	}
	return &Command{
		JobDir:    "/etc/" + progName,
		URL:       url,
		LoginPath: "/auth/kubernetes/login",
		CACert:    "/var/run/secrets/kubernetes.io/serviceaccount/ca.crt",
		TokenFile: "/var/run/secrets/kubernetes.io/serviceaccount/token",
	}
}

// flags builds the getopt-style single-letter flag set this binary
// supports; no long-form flags exist.
func (c *Command) flags() *flag.FlagSet {
	fs := flag.NewFlagSet(progName, flag.ContinueOnError)
	fs.StringVar(&c.JobDir, "d", c.JobDir, "directory of .json job declarations")
	fs.StringVar(&c.URL, "u", c.URL, "secret-service base URL")
	fs.StringVar(&c.LoginPath, "l", c.LoginPath, "service login endpoint")
	fs.StringVar(&c.SearchPath, "j", c.SearchPath, "comma-separated template library search paths")
	fs.StringVar(&c.CACert, "c", c.CACert, "CA certificate for the secret service")
	fs.StringVar(&c.TokenName, "T", c.TokenName, "token: env-var name if set, else the literal string")
	fs.StringVar(&c.TokenFile, "t", c.TokenFile, "token file (used if -T not given)")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "verbose logging")
	fs.IntVar(&c.ReadyFD, "r", 0, "readiness file descriptor")
	fs.BoolVar(&c.Daemon, "D", false, "daemon mode (continue running for leased-secret renewal)")
	fs.StringVar(&c.MetricsAddr, "m", "", "optional Prometheus metrics listen address")
	return fs
}

// Parse parses args (typically os.Args[1:]) into the Command.
func (c *Command) Parse(args []string) error {
	fs := c.flags()
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("agent: parse flags: %w", err)
	}
	return nil
}

// searchPaths splits -j's comma-separated list, skipping empty entries.
func (c *Command) searchPaths() []string {
	var out []string
	for _, tok := range strings.Split(c.SearchPath, ",") {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
