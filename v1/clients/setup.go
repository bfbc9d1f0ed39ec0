package clients

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Logger is the logging contract of the package.
type Logger interface {
	InfoWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}

// Hook starts and stops one client of a worker, e.g. a database pool or an
// HTTP client with a token cache. Either function may be nil.
type Hook struct {
	Name     string
	Startup  func(ctx context.Context) error
	Shutdown func(ctx context.Context) error
}

// Check reports whether one client is usable. A nil error means healthy.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// State holds the clients a worker hands to its handlers together with their
// lifecycle hooks and health checks.
//
// Hooks start in registration order and stop in reverse order. Values stored
// with Set are visible to handlers through Get.
type State struct {
	cfg    Config
	logger Logger

	mu      sync.RWMutex
	hooks   []Hook
	started []Hook
	running bool
	checks  []Check
	values  map[string]interface{}
}

func NewState(cfg Config, logger Logger) *State {
	cfg.SetDefaults()
	return &State{
		cfg:    cfg,
		logger: logger,
		values: make(map[string]interface{}),
	}
}

// Register adds a lifecycle hook. Hooks cannot be added once the state runs.
func (s *State) Register(h Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("%w: cannot register %q", ErrAlreadyStarted, h.Name)
	}
	s.hooks = append(s.hooks, h)
	return nil
}

// AddCheck adds a health check.
func (s *State) AddCheck(c Check) {
	s.mu.Lock()
	s.checks = append(s.checks, c)
	s.mu.Unlock()
}

// Set stores a client under name.
func (s *State) Set(name string, client interface{}) {
	s.mu.Lock()
	s.values[name] = client
	s.mu.Unlock()
}

// Get returns the client stored under name.
func (s *State) Get(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Startup runs the startup hooks in registration order. When a hook fails,
// the hooks that already started are shut down again and the error is
// returned. Calling Startup on a running state is a no-op.
func (s *State) Startup(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	hooks := append([]Hook(nil), s.hooks...)
	s.mu.Unlock()

	for _, h := range hooks {
		if h.Startup != nil {
			if err := h.Startup(ctx); err != nil {
				s.logger.ErrorWithContext(ctx, "client failed to start", err, map[string]interface{}{"client": h.Name})
				rollbackErr := s.Shutdown(ctx)
				return fmt.Errorf("%w: %s: %w", ErrStartupFailed, h.Name, errors.Join(err, rollbackErr))
			}
		}
		s.mu.Lock()
		s.started = append(s.started, h)
		s.mu.Unlock()
		s.logger.InfoWithContext(ctx, "client started", nil, map[string]interface{}{"client": h.Name})
	}
	return nil
}

// Shutdown stops every started client in reverse order. All hooks run even if
// some fail; their errors are joined.
func (s *State) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = nil
	s.running = false
	s.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		h := started[i]
		if h.Shutdown == nil {
			continue
		}
		if err := h.Shutdown(ctx); err != nil {
			s.logger.WarnWithContext(ctx, "client failed to shut down", err, map[string]interface{}{"client": h.Name})
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Health runs all checks concurrently. A failing check is retried before it
// is reported. The result maps the name of every unhealthy client to its
// error message; an empty map means all clients are healthy.
func (s *State) Health(ctx context.Context) map[string]string {
	s.mu.RLock()
	checks := append([]Check(nil), s.checks...)
	s.mu.RUnlock()

	var (
		mu     sync.Mutex
		result = make(map[string]string)
		g      errgroup.Group
	)
	for _, c := range checks {
		g.Go(func() error {
			if err := s.runCheck(ctx, c); err != nil {
				mu.Lock()
				result[c.Name] = err.Error()
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return result
}

func (s *State) runCheck(ctx context.Context, c Check) error {
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
		defer cancel()
		return c.Fn(attemptCtx)
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.CheckInterval), uint64(s.cfg.CheckAttempts-1)),
		ctx,
	)
	return backoff.Retry(op, b)
}
