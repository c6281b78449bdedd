// Package login drives the login form of the target application.
package login

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"shotcrawl/internal/extractor"
	"shotcrawl/internal/model"
	"shotcrawl/internal/page"
	"shotcrawl/internal/steps"
)

// State is the progress of a login attempt.
type State int

const (
	Idle State = iota
	PageRequested
	FormFilled
	Submitted
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PageRequested:
		return "page requested"
	case FormFilled:
		return "form filled"
	case Submitted:
		return "submitted"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const snapshotLimit = 512

// DefaultForm returns the form layout and test credentials of the target
// application.
func DefaultForm() page.Form {
	return page.Form{
		Selector:      "#login_form",
		UsernameField: "id_username",
		PasswordField: "id_password",
		Username:      "test@test.ch",
		Password:      "test",
	}
}

// Options configures an Automation.
type Options struct {
	Form page.Form
	// Timeout bounds the whole attempt, page load included.
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
}

func (o *Options) setDefaults() {
	def := DefaultForm()
	if o.Form.Selector == "" {
		o.Form.Selector = def.Selector
	}
	if o.Form.UsernameField == "" {
		o.Form.UsernameField = def.UsernameField
	}
	if o.Form.PasswordField == "" {
		o.Form.PasswordField = def.PasswordField
	}
	if o.Form.Username == "" {
		o.Form.Username = def.Username
	}
	if o.Form.Password == "" {
		o.Form.Password = def.Password
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
}

// Automation logs a page in by filling and submitting a POST form.
type Automation struct {
	page   page.Page
	opts   Options
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New returns an Automation in the Idle state.
func New(p page.Page, opts Options) *Automation {
	opts.setDefaults()
	return &Automation{page: p, opts: opts, logger: opts.Logger}
}

// State returns the current state.
func (a *Automation) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Automation) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	a.logger.Debug("login state", zap.Stringer("state", s))
}

// Login opens address, fills in the credentials and submits the form. It
// returns nil once the submission has finished loading. No retries are made.
func (a *Automation) Login(ctx context.Context, address string) error {
	loginCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	err := a.login(loginCtx, address)
	if err == nil {
		a.setState(Done)
		a.logger.Info("logged in", zap.String("address", address))
		return nil
	}

	a.setState(Failed)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(loginCtx.Err(), context.DeadlineExceeded) {
		return model.NewError(model.KindLoginTimeout, address, nil)
	}
	var ce *model.Error
	if errors.As(err, &ce) {
		return err
	}
	return model.NewError(model.KindLoadFailure, address, err)
}

func (a *Automation) login(ctx context.Context, address string) error {
	a.setState(PageRequested)
	if err := a.page.Open(ctx, address); err != nil {
		return eris.Wrap(err, "login: open page")
	}

	return steps.Run(ctx,
		a.awaitIdle,
		func(ctx context.Context) error {
			return a.fill(ctx, address)
		},
		a.awaitIdle,
		a.submit,
		a.awaitIdle,
	)
}

// awaitIdle polls until the page stops reporting busy.
func (a *Automation) awaitIdle(ctx context.Context) error {
	if !a.page.Busy() {
		return nil
	}
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !a.page.Busy() {
				return nil
			}
		}
	}
}

func (a *Automation) fill(ctx context.Context, address string) error {
	html, err := a.page.HTML(ctx)
	if err != nil {
		return eris.Wrap(err, "login: read page")
	}
	ext, err := extractor.New(html, a.page.URL())
	if err != nil {
		return eris.Wrap(err, "login: parse page")
	}
	if !ext.HasPostForm(a.opts.Form.Selector) {
		a.logMissingForm(ext)
		return model.NewError(model.KindFormNotFound, address, nil)
	}

	if err := a.page.FillForm(ctx, a.opts.Form); err != nil {
		if errors.Is(err, page.ErrFormNotFound) {
			return model.NewError(model.KindFormNotFound, address, err)
		}
		return eris.Wrap(err, "login: fill form")
	}
	a.setState(FormFilled)
	return nil
}

func (a *Automation) submit(ctx context.Context) error {
	if err := a.page.SubmitForm(ctx, a.opts.Form); err != nil {
		if errors.Is(err, page.ErrFormNotFound) {
			return model.NewError(model.KindFormNotFound, a.page.URL(), err)
		}
		return eris.Wrap(err, "login: submit form")
	}
	a.setState(Submitted)
	return nil
}

func (a *Automation) logMissingForm(ext *extractor.Extractor) {
	if ce := a.logger.Check(zap.DebugLevel, "login form not found"); ce != nil {
		snapshot, err := ext.Snapshot(snapshotLimit)
		if err != nil {
			snapshot = err.Error()
		}
		ce.Write(
			zap.String("selector", a.opts.Form.Selector),
			zap.String("page", snapshot),
		)
	}
}
