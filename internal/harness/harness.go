package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/engine"
	"github.com/roach88/courselink/internal/events"
	"github.com/roach88/courselink/internal/links"
	"github.com/roach88/courselink/internal/policy"
	"github.com/roach88/courselink/internal/store"
	"github.com/roach88/courselink/internal/testutil"
)

// Option configures a scenario run.
type Option func(*options)

type options struct {
	backend events.Backend
	logger  *slog.Logger
}

// WithBackend runs the scenario against b instead of a fresh in-memory
// SQLite database. b must be empty.
func WithBackend(b events.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithLogger shows engine logs. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Harness wires one scenario's store, bus, engine and link service.
type Harness struct {
	backend events.Backend
	store   *events.NotifyingStore
	bus     *events.Bus
	engine  *engine.Engine
	links   *links.Service
	policy  *policy.Source
	logger  *slog.Logger
	result  *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store with a deterministic clock and
// run id, so traces are reproducible. Events published by a step are
// dispatched before the next step starts.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	backend := o.backend
	if backend == nil {
		st, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
		backend = st
	}

	h := newHarness(scenario, backend, o.logger)
	ctx := context.Background()

	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	for i, step := range scenario.Steps {
		err := h.runStep(ctx, step)
		switch {
		case step.ExpectError == "" && err != nil:
			h.result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Do, err))
		case step.ExpectError != "" && err == nil:
			h.result.AddError(fmt.Sprintf("steps[%d] %s: expected error containing %q", i, step.Do, step.ExpectError))
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			h.result.AddError(fmt.Sprintf("steps[%d] %s: error %q does not contain %q", i, step.Do, err, step.ExpectError))
		}
		if err := h.bus.Drain(ctx); err != nil {
			return nil, fmt.Errorf("steps[%d]: dispatch: %w", i, err)
		}
	}

	state, err := testutil.Capture(ctx, backend)
	if err != nil {
		return nil, fmt.Errorf("capture state: %w", err)
	}
	h.result.State = state

	if err := h.checkExpectations(ctx, scenario.Expect); err != nil {
		return nil, err
	}
	return h.result, nil
}

func newHarness(scenario *Scenario, backend events.Backend, logger *slog.Logger) *Harness {
	h := &Harness{
		backend: backend,
		policy:  policy.NewSource(policy.ParseOrEmpty(scenario.NoSyncRoles, logger)),
		logger:  logger,
		result:  NewResult(),
	}

	// The engine and the platform side share the notifying store, so the
	// engine's own writes come back as events too.
	var bus *events.Bus
	h.store = events.NewNotifyingStore(backend, publisherFunc(func(ev domain.Event) bool {
		return bus.Publish(ev)
	}))
	h.engine = engine.NewFromStores(h.store,
		engine.WithLogger(logger),
		engine.WithPolicy(h.policy),
		engine.WithEnabled(!scenario.Disabled),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator("")),
	)
	bus = events.NewBus(&tracingHandler{engine: h.engine, result: h.result}, events.WithLogger(logger))
	h.bus = bus

	h.links = links.NewService(h.store, h.store, h.engine,
		links.WithClock(testutil.NewDeterministicClock()),
		links.WithLogger(logger),
	)
	return h
}

// setup writes the initial state straight to the backend: no events.
func (h *Harness) setup(ctx context.Context, s *Scenario) error {
	for _, c := range s.Courses {
		visible := c.Visible == nil || *c.Visible
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("Course %d", c.ID)
		}
		if err := h.backend.UpsertCourse(ctx, domain.Course{ID: c.ID, ShortName: fmt.Sprintf("C%d", c.ID), FullName: name, Visible: visible}); err != nil {
			return err
		}
	}
	for _, l := range s.Links {
		status := domain.LinkEnabled
		if l.Disabled {
			status = domain.LinkDisabled
		}
		if _, err := h.backend.CreateLink(ctx, domain.LinkInstance{ChildCourseID: l.Child, ParentCourseID: l.Parent, Status: status, Name: l.Name}); err != nil {
			return err
		}
	}
	for _, m := range s.Memberships {
		origin, _ := parseVia(m.Via)
		if _, err := h.backend.Enrol(ctx, domain.Membership{UserID: m.User, CourseID: m.Course, Origin: origin}); err != nil {
			return err
		}
	}
	for _, r := range s.Roles {
		origin, _ := parseVia(r.Via)
		if _, err := h.backend.Assign(ctx, domain.RoleAssignment{UserID: r.User, RoleID: r.Role, Context: domain.CourseContext(r.Course), Origin: origin}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Harness) runStep(ctx context.Context, st Step) error {
	origin, _ := parseVia(st.Via)
	detail := stepDetail(st, origin)
	outcome := ""
	defer func() { h.result.addTrace(TraceStep, detail, outcome) }()

	var err error
	switch st.Do {
	case StepEnrol:
		_, err = h.store.Enrol(ctx, domain.Membership{UserID: st.User, CourseID: st.Course, Origin: origin})
	case StepUnenrol:
		_, err = h.store.Unenrol(ctx, domain.Membership{UserID: st.User, CourseID: st.Course, Origin: origin})
	case StepGrant:
		_, err = h.store.Assign(ctx, domain.RoleAssignment{UserID: st.User, RoleID: st.Role, Context: domain.CourseContext(st.Course), Origin: origin})
	case StepRevoke:
		_, err = h.store.Unassign(ctx, domain.RoleAssignment{UserID: st.User, RoleID: st.Role, Context: domain.CourseContext(st.Course), Origin: origin})
	case StepReconcile:
		scope, _ := parseScope(st.Scope)
		var res *engine.Result
		res, err = h.engine.Reconcile(ctx, scope)
		if res != nil {
			outcome = fmt.Sprintf("applied=%d failed=%d", res.Applied(), res.Failed())
		}
	case StepCreateLink:
		var link domain.LinkInstance
		link, _, err = h.links.Create(ctx, st.Course, st.Child, "")
		if err == nil {
			outcome = fmt.Sprintf("link=%d", link.ID)
		}
	case StepEnableLink:
		_, err = h.links.SetStatus(ctx, st.Link, domain.LinkEnabled)
	case StepDisableLink:
		_, err = h.links.SetStatus(ctx, st.Link, domain.LinkDisabled)
	case StepRemoveLink:
		err = h.links.Remove(ctx, st.Link)
	case StepDeleteCourse:
		err = h.store.DeleteCourse(ctx, st.Course)
	case StepUpdateCourse:
		var c domain.Course
		c, err = h.backend.GetCourse(ctx, st.Course)
		if err == nil {
			err = h.store.UpsertCourse(ctx, c)
		}
	case StepSetEnabled:
		h.engine.SetEnabled(st.Value == "true")
	case StepSetNoSync:
		h.policy.SetCSV(st.Value, h.logger)
	}

	if err != nil {
		outcome = "error: " + err.Error()
	}
	return err
}

func stepDetail(st Step, origin domain.Origin) string {
	switch st.Do {
	case StepEnrol, StepUnenrol:
		return fmt.Sprintf("%s user=%d course=%d via=%s", st.Do, st.User, st.Course, origin)
	case StepGrant, StepRevoke:
		return fmt.Sprintf("%s user=%d role=%d course=%d via=%s", st.Do, st.User, st.Role, st.Course, origin)
	case StepReconcile:
		scope, _ := parseScope(st.Scope)
		return fmt.Sprintf("%s %s", st.Do, scope)
	case StepCreateLink:
		return fmt.Sprintf("%s child=%d course=%d", st.Do, st.Child, st.Course)
	case StepEnableLink, StepDisableLink, StepRemoveLink:
		return fmt.Sprintf("%s link=%d", st.Do, st.Link)
	case StepDeleteCourse, StepUpdateCourse:
		return fmt.Sprintf("%s course=%d", st.Do, st.Course)
	default:
		return fmt.Sprintf("%s %s", st.Do, st.Value)
	}
}

// tracingHandler records every event the engine handles, with its outcome.
type tracingHandler struct {
	engine *engine.Engine
	result *Result
}

func (t *tracingHandler) Handle(ctx context.Context, ev domain.Event) (string, error) {
	outcome, err := t.engine.Handle(ctx, ev)
	if err != nil {
		t.result.addTrace(TraceEvent, ev.String(), "error: "+err.Error())
		return outcome, err
	}
	t.result.addTrace(TraceEvent, ev.String(), outcome)
	return outcome, nil
}

type publisherFunc func(domain.Event) bool

func (f publisherFunc) Publish(ev domain.Event) bool { return f(ev) }
