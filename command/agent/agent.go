package agent

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eburghar/rconfd/internal/authsvc"
	"github.com/eburghar/rconfd/internal/broker"
	"github.com/eburghar/rconfd/internal/checksum"
	"github.com/eburghar/rconfd/internal/evalr"
	"github.com/eburghar/rconfd/internal/metrics"
	"github.com/eburghar/rconfd/internal/registry"
	"github.com/eburghar/rconfd/internal/secret"
	"github.com/eburghar/rconfd/internal/secretpath"
)

// Run parses args, wires the agent's dependencies, seeds the broker with its
// startup messages in the required order, and runs it to completion (or
// until ctx is canceled). It's the sole entry point cmd/rconfd.main calls.
func Run(ctx context.Context, args []string) error {
	c := NewCommand()
	if err := c.Parse(args); err != nil {
		return err
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  progName,
		Level: levelFor(c.Verbose),
	})

	token, err := c.resolveToken()
	if err != nil {
		return err
	}

	if err := c.preflight(ctx); err != nil {
		return err
	}

	reg, err := LoadJobs(c.JobDir)
	if err != nil {
		return err
	}
	if err := reg.ValidateDeclaredSecrets(func(p string) error {
		_, err := secretpath.Parse(p)
		return err
	}); err != nil {
		return err
	}

	authClient, err := authsvc.New(c.URL, c.CACert, c.LoginPath, token)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if c.MetricsAddr != "" {
		promReg := prometheus.NewRegistry()
		m = metrics.New(promReg)
		serveMetrics(c.MetricsAddr, promReg, logger)
	}

	b := broker.New(broker.Config{
		Store:       secret.NewStore(),
		Registry:    reg,
		Checksums:   checksum.NewStore(),
		Evaluator:   evalr.NewJsonnetEvaluator(),
		AuthClient:  authClient,
		SearchPaths: c.searchPaths(),
		Logger:      logger,
		Daemon:      c.Daemon,
		OnReady:     readySignal(c.ReadyFD),
		Metrics:     m,
	})

	seedStartup(reg, b)

	return b.Run(ctx)
}

func levelFor(verbose bool) hclog.Level {
	if verbose {
		return hclog.Debug
	}
	return hclog.Info
}

// seedStartup enqueues the startup ordering guarantee: for each job (in
// registry/file order) and each of its declared secrets, an optional
// Login(role) precedes FetchSecret(path, trigger=false); after every job is
// seeded, the startup sweep enqueues MaterializeTemplate for jobs whose
// secrets are already fully satisfied.
func seedStartup(reg *registry.Registry, b *broker.Broker) {
	loggedRoles := make(map[string]bool)
	reg.All(func(job registry.Job) {
		for declaredPath := range job.DeclaredSecrets {
			parsed, err := secretpath.Parse(declaredPath)
			if err != nil {
				// Already validated by ValidateDeclaredSecrets in Run; unreachable.
				continue
			}
			if parsed.Backend == secretpath.Authsvc && len(parsed.Args) > 0 {
				role := parsed.Args[0]
				if !loggedRoles[role] {
					b.Login(role)
					loggedRoles[role] = true
				}
			}
			b.FetchSecret(declaredPath, false)
		}
	})

	// Enqueued last: FIFO draining guarantees every startup Login/FetchSecret
	// above has already updated the store by the time this sweep runs.
	b.MaterializeAllReady()
}

// readySignal builds the -r FD readiness callback: write "\n" to the given
// file descriptor once all templates are first materialized.
// fd <= 0 means no readiness signaling was requested.
func readySignal(fd int) func() error {
	if fd <= 0 {
		return nil
	}
	return func() error {
		f := os.NewFile(uintptr(fd), "readiness")
		if f == nil {
			return fmt.Errorf("agent: invalid readiness fd %d", fd)
		}
		defer f.Close()
		_, err := f.WriteString("\n")
		return err
	}
}

// serveMetrics starts the optional Prometheus debug listener in the
// background; failures are logged, never fatal to the agent's own
// operation.
func serveMetrics(addr string, reg *prometheus.Registry, logger hclog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener stopped", "error", err)
		}
	}()
}
