// Package broker implements the single-threaded cooperative event loop
// (C8): the one actor that owns the secret store, registry, checksum
// store, and auth-handle cache, and the only goroutine that ever mutates
// them. Timer tasks (internal/timer) are the only other schedulable
// entities, and they hold no state of their own.
//
// Grounded on consul-template's Runner.Run select-loop
// (other_examples/…hashicorp-consul-template…) and the original rconfd
// Broker::run (original_source/src/main.rs), adapted to Go's
// channel-plus-goroutine idiom in place of the original's single-threaded
// async executor.
package broker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/eburghar/rconfd/internal/authsvc"
	"github.com/eburghar/rconfd/internal/backend"
	"github.com/eburghar/rconfd/internal/checksum"
	"github.com/eburghar/rconfd/internal/evalr"
	"github.com/eburghar/rconfd/internal/materialize"
	"github.com/eburghar/rconfd/internal/metrics"
	"github.com/eburghar/rconfd/internal/registry"
	"github.com/eburghar/rconfd/internal/secret"
	"github.com/eburghar/rconfd/internal/secretpath"
	"github.com/eburghar/rconfd/internal/secretval"
	"github.com/eburghar/rconfd/internal/timer"
)

// chanBuffer sizes the broker's external mailbox. The message volume this
// agent ever sees is one Login-renew per authsvc role plus one fetch-renew
// per leased secret — a few dozen at most — so a generously sized buffer,
// not true unbounded growth, is the practical Go rendering of an
// "unbounded channel".
const chanBuffer = 4096

// Broker is the event-loop actor (C8).
type Broker struct {
	ch      chan Message
	pending []Message // synchronous cascades, drained before the channel

	store     *secret.Store
	registry  *registry.Registry
	checksums *checksum.Store
	evaluator evalr.Evaluator
	authC     *authsvc.Client // nil if no authsvc paths are ever used

	searchPaths []string
	logger      hclog.Logger

	daemon    bool
	firstRun  bool
	generated int

	onReady func() error // readiness FD signal (-r FD), may be nil
	metrics *metrics.Metrics // may be nil when -m ADDR wasn't given

	authHandles map[string]authsvc.AuthHandle
	timers      *timer.Scheduler[Message]
}

// Config bundles a Broker's fixed dependencies.
type Config struct {
	Store       *secret.Store
	Registry    *registry.Registry
	Checksums   *checksum.Store
	Evaluator   evalr.Evaluator
	AuthClient  *authsvc.Client
	SearchPaths []string
	Logger      hclog.Logger
	Daemon      bool
	OnReady     func() error
	Metrics     *metrics.Metrics
}

// New constructs a Broker ready to receive enqueued messages.
func New(cfg Config) *Broker {
	ch := make(chan Message, chanBuffer)
	b := &Broker{
		ch:          ch,
		store:       cfg.Store,
		registry:    cfg.Registry,
		checksums:   cfg.Checksums,
		evaluator:   cfg.Evaluator,
		authC:       cfg.AuthClient,
		searchPaths: cfg.SearchPaths,
		logger:      cfg.Logger,
		daemon:      cfg.Daemon,
		firstRun:    true,
		onReady:     cfg.OnReady,
		metrics:     cfg.Metrics,
		authHandles: make(map[string]authsvc.AuthHandle),
	}
	b.timers = timer.New(ch)
	return b
}

// Login enqueues a Login(role) message. Exported so callers can seed the
// broker before Run starts draining (startup ordering: Login before
// FetchSecret before the first MaterializeTemplate sweep).
func (b *Broker) Login(role string) { b.pending = append(b.pending, LoginMsg(role)) }

// FetchSecret implements registry.Enqueue, letting the registry's sweep
// procedures enqueue fetches without importing this package.
func (b *Broker) FetchSecret(path string, triggerMaterialize bool) {
	b.pending = append(b.pending, FetchSecretMsg(path, triggerMaterialize))
}

// MaterializeTemplate implements registry.Enqueue.
func (b *Broker) MaterializeTemplate(templateRef string) {
	b.pending = append(b.pending, MaterializeTemplateMsg(templateRef))
}

// MaterializeAllReady enqueues the post-startup sweep. Callers
// (command/agent) must call this strictly after every startup Login/
// FetchSecret message has been enqueued, so FIFO draining guarantees the
// secret store is fully populated before the sweep runs.
func (b *Broker) MaterializeAllReady() {
	b.pending = append(b.pending, MaterializeAllReadyMsg())
}

// Channel exposes the broker's external mailbox, so timer tasks (which run
// in their own goroutines) can deliver delayed messages without reaching
// into broker internals.
func (b *Broker) Channel() chan<- Message { return b.ch }

// Run drains messages until a terminal condition is reached: the startup
// pass completes and either one-shot mode is active or daemon mode has no
// leased secrets left to keep alive, or ctx is canceled. A fatal error
// from any handler stops the loop and is returned.
func (b *Broker) Run(ctx context.Context) error {
	for {
		msg, ok, err := b.next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		done, err := b.handle(ctx, msg)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (b *Broker) next(ctx context.Context) (Message, bool, error) {
	if len(b.pending) > 0 {
		msg := b.pending[0]
		b.pending = b.pending[1:]
		return msg, true, nil
	}
	select {
	case msg := <-b.ch:
		return msg, true, nil
	case <-ctx.Done():
		return Message{}, false, ctx.Err()
	}
}

func (b *Broker) handle(ctx context.Context, msg Message) (terminate bool, err error) {
	switch {
	case msg.IsLogin():
		return false, b.handleLogin(ctx, msg.Role)
	case msg.IsFetchSecret():
		return false, b.handleFetchSecret(ctx, msg.Path, msg.TriggerMaterialize)
	case msg.IsMaterializeTemplate():
		return b.handleMaterializeTemplate(ctx, msg.TemplateRef)
	case msg.IsMaterializeAllReady():
		b.registry.MaterializeAllReady(b.store, b, func(format string, args ...interface{}) {
			b.logger.Warn(fmt.Sprintf(format, args...))
		})
		return false, nil
	default:
		return false, fmt.Errorf("broker: unknown message kind")
	}
}

func (b *Broker) handleLogin(ctx context.Context, role string) error {
	now := time.Now()
	if h, ok := b.authHandles[role]; ok && h.IsLogged(now) {
		return nil
	}
	if b.authC == nil {
		return fmt.Errorf("broker: login requested for role %q but no authsvc client is configured", role)
	}
	handle, err := b.authC.Login(ctx, role)
	if err != nil {
		return err
	}
	b.authHandles[role] = handle
	if delay, ok := handle.RenewDelay(); ok {
		b.timers.Schedule(delay, LoginMsg(role))
	}
	return nil
}

func (b *Broker) handleFetchSecret(ctx context.Context, path string, triggerMaterialize bool) error {
	now := time.Now()
	if existing, ok := b.store.Get(path); ok && existing.IsValid(now) && !existing.ToRenew(now) {
		return nil
	}

	parsed, err := secretpath.Parse(path)
	if err != nil {
		return err
	}

	value, leaseDuration, renewable, err := b.dispatch(ctx, parsed)
	if err != nil {
		return err
	}

	s := secret.New(value, leaseDuration, renewable, now)
	if delay, ok := s.RenewDelay(); ok {
		b.timers.Schedule(delay, FetchSecretMsg(path, true))
	}

	if b.metrics != nil {
		b.metrics.SecretsFetched.Inc()
	}

	changed := b.store.Replace(path, s)
	b.updateLeasedGauge()
	if changed && triggerMaterialize {
		b.registry.MaterializeForPath(b.store, path, b)
	}
	return nil
}

func (b *Broker) updateLeasedGauge() {
	if b.metrics == nil {
		return
	}
	b.metrics.LeasedSecrets.Set(float64(b.store.LeasedCount()))
}

func (b *Broker) dispatch(ctx context.Context, p secretpath.Path) (secretval.Value, *time.Duration, bool, error) {
	switch p.Backend {
	case secretpath.Env:
		res, err := backend.FetchEnv(p)
		return res.Value, res.LeaseDuration, res.Renewable, err
	case secretpath.File:
		res, err := backend.FetchFile(p)
		return res.Value, res.LeaseDuration, res.Renewable, err
	case secretpath.Exe:
		res, err := backend.FetchExe(p, os.Geteuid())
		return res.Value, res.LeaseDuration, res.Renewable, err
	case secretpath.Authsvc:
		return b.dispatchAuthsvc(ctx, p)
	default:
		return secretval.Value{}, nil, false, fmt.Errorf("broker: unhandled backend %q", p.Backend)
	}
}

func (b *Broker) dispatchAuthsvc(ctx context.Context, p secretpath.Path) (secretval.Value, *time.Duration, bool, error) {
	if len(p.Args) == 0 {
		return secretval.Value{}, nil, false, fmt.Errorf("broker: authsvc path %q missing role in args[0]", p.FullRepr())
	}
	role := p.Args[0]
	method := "GET"
	if len(p.Args) > 1 {
		method = p.Args[1]
	}
	handle, ok := b.authHandles[role]
	if !ok || !handle.IsLogged(time.Now()) {
		return secretval.Value{}, nil, false, fmt.Errorf("broker: authsvc fetch for role %q requires a prior successful Login", role)
	}
	kwargs := make(map[string]string, len(p.Kwargs))
	for _, kv := range p.Kwargs {
		kwargs[kv.Key] = kv.Value
	}
	res, err := b.authC.Fetch(ctx, handle, method, p.Path, kwargs)
	return res.Value, res.LeaseDuration, res.Renewable, err
}

func (b *Broker) handleMaterializeTemplate(ctx context.Context, templateRef string) (bool, error) {
	job, ok := b.registry.Get(templateRef)
	if !ok {
		b.logger.Warn("materialize requested for unknown template", "template_ref", templateRef)
		return false, nil
	}

	outcome, err := materialize.Run(ctx, job, b.store, b.evaluator, b.checksums, b.searchPaths, b.firstRun, b.logger)
	if err != nil {
		return false, err
	}
	if b.metrics != nil {
		b.metrics.TemplatesMaterialized.Inc()
		if outcome.HookFailed {
			b.metrics.HookFailures.Inc()
		}
	}
	if outcome.SawPreexisting {
		b.firstRun = false
	}

	b.generated++
	if b.generated < b.registry.Len() {
		return false, nil
	}

	b.generated = 0
	b.firstRun = false

	if b.onReady != nil {
		if err := b.onReady(); err != nil {
			b.logger.Warn("readiness signal failed", "error", err)
		}
	}
	b.registry.All(func(j registry.Job) {
		if materialize.FireReady(ctx, j, b.logger) && b.metrics != nil {
			b.metrics.HookFailures.Inc()
		}
	})

	if b.daemon && b.store.AnyLeased() {
		return false, nil
	}
	b.logger.Info("startup pass complete, nothing left to keep alive", "daemon", b.daemon)
	return true, nil
}
