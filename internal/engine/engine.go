package engine

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/metrics"
	"github.com/roach88/courselink/internal/policy"
)

// Engine keeps parent courses consistent with their linked child courses.
//
// Thread-safety model:
//   - Handle and the Handle* methods: safe from any goroutine; they run
//     synchronously in the caller
//   - Reconcile: safe to run concurrently with handlers and with itself
//   - SetEnabled: safe from any goroutine
type Engine struct {
	links   domain.LinkRegistry
	members domain.MembershipStore
	roles   domain.RoleStore

	policy  *policy.Source
	enabled atomic.Bool
	runIDs  RunIDGenerator
	locks   *pairLocks
	logger  *slog.Logger
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPolicy sets the no-sync policy source. Default: exclude nothing.
func WithPolicy(p *policy.Source) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithRunIDGenerator sets the reconcile run id generator.
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.runIDs = g
		}
	}
}

// WithEnabled sets the initial global enable flag. Default: true.
func WithEnabled(enabled bool) EngineOption {
	return func(e *Engine) {
		e.enabled.Store(enabled)
	}
}

// New creates an Engine over the given ports.
func New(links domain.LinkRegistry, members domain.MembershipStore, roles domain.RoleStore, opts ...EngineOption) *Engine {
	e := &Engine{
		links:   links,
		members: members,
		roles:   roles,
		policy:  policy.NewSource(nil),
		runIDs:  UUIDv7Generator{},
		locks:   newPairLocks(),
		logger:  slog.Default(),
	}
	e.enabled.Store(true)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromStores creates an Engine over an adapter implementing every port.
func NewFromStores(s domain.Stores, opts ...EngineOption) *Engine {
	return New(s, s, s, opts...)
}

// Enabled reports whether the mechanism is globally enabled.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// SetEnabled flips the global enable flag. Disabling stops grant and
// membership propagation at once; the next reconciliation purges roles.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Policy returns the policy source, for reloads.
func (e *Engine) Policy() *policy.Source {
	return e.policy
}

// Handle routes an event to its handler.
//
// Outcome is "applied" when the handler looked for work, or the reason the
// event was ignored ("self", "disabled", ...). Failures of single mutations
// are logged and counted, never returned.
func (e *Engine) Handle(ctx context.Context, ev domain.Event) (string, error) {
	var outcome string
	var err error

	switch ev.Kind {
	case domain.RoleGranted:
		outcome, err = e.HandleRoleGranted(ctx, ev)
	case domain.RoleRevoked:
		outcome, err = e.HandleRoleRevoked(ctx, ev)
	case domain.MemberAdded:
		outcome, err = e.HandleMemberAdded(ctx, ev)
	case domain.MemberRemoved:
		outcome, err = e.HandleMemberRemoved(ctx, ev)
	case domain.CourseRemoved:
		outcome, err = e.HandleCourseRemoved(ctx, ev.CourseID)
	case domain.CourseUpdated:
		outcome, err = e.HandleCourseUpdated(ctx, ev.CourseID)
	default:
		return "", &RuntimeError{Code: ErrCodeInvalidEvent, Message: "unknown event kind " + ev.Kind.String()}
	}

	if err != nil {
		outcome = "error"
	}
	metrics.Events.WithLabelValues(ev.Kind.String(), outcome).Inc()
	return outcome, err
}

// apply runs one mutation under the (user, link) lock, reports it to
// metrics and logs it. Failures are logged here; callers only decide
// whether to continue.
func (e *Engine) apply(
	ctx context.Context,
	source, action string,
	user domain.UserID,
	link domain.LinkID,
	mutate func(context.Context) (bool, error),
	attrs ...any,
) (bool, error) {
	unlock := e.locks.Lock(user, link)
	changed, err := mutate(ctx)
	unlock()

	metrics.ReportMutation(source, action, changed, err)

	args := append([]any{"source", source, "action", action, "user_id", user, "link_id", link}, attrs...)
	if err != nil {
		e.logger.Warn("mutation failed", append(args, "error", err)...)
		return false, err
	}
	if changed {
		e.logger.Info("mutation applied", args...)
	} else {
		e.logger.Debug("mutation already applied", args...)
	}
	return changed, nil
}
