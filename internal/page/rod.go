package page

import (
	"context"
	"os"
	"strings"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// fillFormJS finds the first POST form among selector matches and types
// the credentials into the named fields. It returns false if none matched.
const fillFormJS = `(selector, userField, user, passField, pass) => {
	const forms = document.querySelectorAll(selector);
	for (const form of forms) {
		if ((form.getAttribute('method') || '').toUpperCase() !== 'POST') {
			continue;
		}
		const u = form.elements[userField];
		const p = form.elements[passField];
		if (!u || !p) {
			return false;
		}
		u.value = user;
		p.value = pass;
		return true;
	}
	return false;
}`

const submitFormJS = `(selector) => {
	const forms = document.querySelectorAll(selector);
	for (const form of forms) {
		if ((form.getAttribute('method') || '').toUpperCase() === 'POST') {
			form.submit();
			return true;
		}
	}
	return false;
}`

const backgroundJS = `(color) => {
	const body = document.querySelector('body');
	if (!body) {
		throw new Error('document has no body');
	}
	body.style.backgroundColor = color;
}`

// Rod implements Page on a go-rod tab. The busy flag follows the main
// frame's start/stop loading events.
type Rod struct {
	page   *rod.Page
	busy   atomic.Bool
	logger *zap.Logger
}

// NewRod wraps p and starts the event observers. logger may be nil.
func NewRod(p *rod.Page, logger *zap.Logger) *Rod {
	if logger == nil {
		logger = zap.L()
	}
	r := &Rod{page: p, logger: logger}

	_ = p.EnableDomain(&proto.PageEnable{})
	_ = p.EnableDomain(&proto.RuntimeEnable{})

	go p.EachEvent(
		func(e *proto.PageFrameStartedLoading) {
			if e.FrameID == p.FrameID {
				r.busy.Store(true)
			}
		},
		func(e *proto.PageFrameStoppedLoading) {
			if e.FrameID == p.FrameID {
				r.busy.Store(false)
			}
		},
		func(e *proto.RuntimeConsoleAPICalled) {
			parts := make([]string, 0, len(e.Args))
			for _, arg := range e.Args {
				if arg.Description != "" {
					parts = append(parts, arg.Description)
					continue
				}
				parts = append(parts, arg.Value.String())
			}
			r.logger.Debug("page console",
				zap.String("type", string(e.Type)),
				zap.String("message", strings.Join(parts, " ")),
			)
		},
		func(e *proto.RuntimeExceptionThrown) {
			if e.ExceptionDetails == nil {
				return
			}
			r.logger.Debug("page error",
				zap.String("url", r.URL()),
				zap.String("text", e.ExceptionDetails.Text),
				zap.String("source", e.ExceptionDetails.URL),
			)
		},
	)()

	return r
}

// Open navigates and waits for the load event.
func (r *Rod) Open(ctx context.Context, address string) error {
	p := r.page.Context(ctx)
	r.busy.Store(true)
	if err := p.Navigate(address); err != nil {
		r.busy.Store(false)
		return eris.Wrapf(err, "page: navigate to %s", address)
	}
	if err := p.WaitLoad(); err != nil {
		r.busy.Store(false)
		return eris.Wrapf(err, "page: wait load of %s", address)
	}
	r.busy.Store(false)
	return nil
}

func (r *Rod) Busy() bool {
	return r.busy.Load()
}

func (r *Rod) URL() string {
	info, err := r.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (r *Rod) HTML(ctx context.Context) (string, error) {
	html, err := r.page.Context(ctx).HTML()
	if err != nil {
		return "", eris.Wrap(err, "page: read html")
	}
	return html, nil
}

func (r *Rod) FillForm(ctx context.Context, form Form) error {
	res, err := r.page.Context(ctx).Eval(fillFormJS,
		form.Selector, form.UsernameField, form.Username, form.PasswordField, form.Password)
	if err != nil {
		return eris.Wrap(err, "page: fill form")
	}
	if !res.Value.Bool() {
		return ErrFormNotFound
	}
	return nil
}

// SubmitForm submits the form and waits for the navigation it starts to
// reach the load event.
func (r *Rod) SubmitForm(ctx context.Context, form Form) error {
	p := r.page.Context(ctx)
	wait := p.WaitNavigation(proto.PageLifecycleEventNameLoad)

	res, err := p.Eval(submitFormJS, form.Selector)
	if err != nil {
		return eris.Wrap(err, "page: submit form")
	}
	if !res.Value.Bool() {
		return ErrFormNotFound
	}
	wait()
	return ctx.Err()
}

func (r *Rod) SetBackground(ctx context.Context, color string) error {
	if _, err := r.page.Context(ctx).Eval(backgroundJS, color); err != nil {
		return eris.Wrap(err, "page: set background")
	}
	return nil
}

func (r *Rod) Render(ctx context.Context, path string) error {
	img, err := r.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return eris.Wrap(err, "page: screenshot")
	}
	if err := os.WriteFile(path, img, 0o644); err != nil {
		return eris.Wrapf(err, "page: write %s", path)
	}
	return nil
}

// Close closes the tab.
func (r *Rod) Close() error {
	return r.page.Close()
}
