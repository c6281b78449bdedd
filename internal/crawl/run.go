// Package crawl walks the same-origin link graph of a web application and
// captures a screenshot of every page, first anonymously and then logged in.
package crawl

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shotcrawl/internal/model"
	"shotcrawl/internal/page"
	"shotcrawl/internal/steps"
)

// Authenticator logs the page in. It returns nil once the session is
// authenticated.
type Authenticator interface {
	Login(ctx context.Context, address string) error
}

// Options configures a Run.
type Options struct {
	BaseURL   string
	HomePath  string
	LoginPath string
	OutputDir string

	// FailOnTimeout aborts the run on the first navigation or capture
	// failure instead of logging it and moving on.
	FailOnTimeout bool

	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Background        string

	// Rate caps page loads per second. Zero means unlimited.
	Rate float64

	Logger *zap.Logger
}

func (o *Options) setDefaults() {
	if o.HomePath == "" {
		o.HomePath = "/home"
	}
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 10 * time.Second
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = 200 * time.Millisecond
	}
	if o.Background == "" {
		o.Background = "#000000"
	}
	if o.Logger == nil {
		o.Logger = zap.L()
	}
}

// Capture describes one screenshot written during a run.
type Capture struct {
	Auth    model.AuthContext
	Address string
	Path    string
	Links   int
}

// Run owns the state of one crawl: the page, the visited set, the issued
// titles and the current auth context.
type Run struct {
	opts    Options
	page    page.Page
	login   Authenticator
	logger  *zap.Logger
	limiter *rate.Limiter

	frontier *Frontier
	titles   *TitleRegistry

	mu       sync.Mutex
	auth     model.AuthContext
	captures []Capture
}

// NewRun prepares a crawl of opts.BaseURL on p.
func NewRun(p page.Page, auth Authenticator, opts Options) *Run {
	opts.setDefaults()
	r := &Run{
		opts:     opts,
		page:     p,
		login:    auth,
		logger:   opts.Logger,
		frontier: NewFrontier(opts.BaseURL),
		titles:   NewTitleRegistry(),
		auth:     model.Anonymous,
	}
	if opts.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return r
}

// Execute captures the home page anonymously, logs in, then captures the
// home page again as the authenticated user. Each capture recursively
// follows same-origin links.
func (r *Run) Execute(ctx context.Context) error {
	home := r.opts.BaseURL + r.opts.HomePath
	login := r.opts.BaseURL + r.opts.LoginPath

	err := steps.Run(ctx,
		func(ctx context.Context) error {
			return r.Crawl(ctx, home)
		},
		func(ctx context.Context) error {
			r.logger.Info("logging in", zap.String("address", login))
			return r.login.Login(ctx, login)
		},
		steps.Fire(func() {
			r.setContext(model.Authenticated)
		}),
		func(ctx context.Context) error {
			return r.Crawl(ctx, home)
		},
	)

	anonymous, authenticated := r.counts()
	r.logger.Info("crawl finished",
		zap.Int("anonymous", anonymous),
		zap.Int("authenticated", authenticated),
		zap.Bool("ok", err == nil),
	)
	return err
}

// Context returns the current auth context.
func (r *Run) Context() model.AuthContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auth
}

// setContext only moves forward: Anonymous to Authenticated.
func (r *Run) setContext(auth model.AuthContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if auth > r.auth {
		r.auth = auth
	}
}

// Captures returns the screenshots written so far, in capture order.
func (r *Run) Captures() []Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Capture(nil), r.captures...)
}

func (r *Run) record(c Capture) {
	r.mu.Lock()
	r.captures = append(r.captures, c)
	r.mu.Unlock()
}

func (r *Run) counts() (anonymous, authenticated int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.captures {
		if c.Auth == model.Authenticated {
			authenticated++
		} else {
			anonymous++
		}
	}
	return anonymous, authenticated
}

type frame struct {
	links []string
	next  int
}

// Crawl captures seed and then every same-origin page reachable from it,
// depth first in link discovery order, one page at a time. Pages already
// visited in the current auth context are skipped.
func (r *Run) Crawl(ctx context.Context, seed string) error {
	auth := r.Context()
	if !r.frontier.ShouldVisit(auth, seed) {
		return nil
	}
	links, err := r.Capture(ctx, Normalize(seed))
	if err != nil {
		return err
	}

	stack := []*frame{{links: links}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next >= len(top.links) {
			stack = stack[:len(stack)-1]
			continue
		}
		link := top.links[top.next]
		top.next++

		if !r.frontier.ShouldVisit(auth, link) {
			continue
		}
		children, err := r.Capture(ctx, Normalize(link))
		if err != nil {
			return err
		}
		if len(children) > 0 {
			stack = append(stack, &frame{links: children})
		}
	}
	return nil
}
