// Package pagetest provides an in-memory page.Page for tests.
package pagetest

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"shotcrawl/internal/page"
)

// pngStub is the 8-byte PNG signature; enough for tests that count files.
var pngStub = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Site is a fake web application keyed by absolute address.
type Site struct {
	mu          sync.Mutex
	pages       map[string]string
	hang        map[string]bool
	fail        map[string]bool
	failRender  map[string]bool
	afterSubmit string
	busyPolls   int

	opened     []string
	renders    []string
	filled     []page.Form
	submitted  int
	background string
}

// NewSite returns an empty site. Unknown addresses fail to load.
func NewSite() *Site {
	return &Site{
		pages:      map[string]string{},
		hang:       map[string]bool{},
		fail:       map[string]bool{},
		failRender: map[string]bool{},
	}
}

// Handle serves html at address.
func (s *Site) Handle(address, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[address] = html
	return s
}

// Hang makes Open on address block until its context is done.
func (s *Site) Hang(address string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hang[address] = true
	return s
}

// Fail makes Open on address return an error.
func (s *Site) Fail(address string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[address] = true
	return s
}

// FailRender makes Render fail while address is the current document.
func (s *Site) FailRender(address string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRender[address] = true
	return s
}

// AfterSubmit sets the document a form submission navigates to.
func (s *Site) AfterSubmit(address string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterSubmit = address
	return s
}

// BusyFor makes Busy report true for the next n calls after every Open and
// SubmitForm, simulating a page that is still settling.
func (s *Site) BusyFor(n int) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busyPolls = n
	return s
}

// Opened returns every address passed to Open, in order.
func (s *Site) Opened() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

// Renders returns every path written by Render, in order.
func (s *Site) Renders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.renders...)
}

// Filled returns every form passed to FillForm.
func (s *Site) Filled() []page.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]page.Form(nil), s.filled...)
}

// Submitted returns how many times a form was submitted.
func (s *Site) Submitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// Background returns the last color passed to SetBackground.
func (s *Site) Background() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// NewPage returns a tab on the site.
func (s *Site) NewPage() *Page {
	return &Page{site: s}
}

// Page is a fake tab. It implements page.Page.
type Page struct {
	site     *Site
	mu       sync.Mutex
	current  string
	busyLeft int
}

var _ page.Page = (*Page)(nil)

func (p *Page) Open(ctx context.Context, address string) error {
	s := p.site
	s.mu.Lock()
	s.opened = append(s.opened, address)
	hang, fail := s.hang[address], s.fail[address]
	_, known := s.pages[address]
	busy := s.busyPolls
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fail || !known {
		return eris.Errorf("pagetest: unable to load %s", address)
	}

	p.mu.Lock()
	p.current = address
	p.busyLeft = busy
	p.mu.Unlock()
	return nil
}

func (p *Page) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busyLeft > 0 {
		p.busyLeft--
		return true
	}
	return false
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr := p.URL()
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	html, ok := p.site.pages[addr]
	if !ok {
		return "", eris.New("pagetest: no document loaded")
	}
	return html, nil
}

func (p *Page) FillForm(ctx context.Context, form page.Form) error {
	if err := p.findForm(ctx, form); err != nil {
		return err
	}
	p.site.mu.Lock()
	p.site.filled = append(p.site.filled, form)
	p.site.mu.Unlock()
	return nil
}

func (p *Page) SubmitForm(ctx context.Context, form page.Form) error {
	if err := p.findForm(ctx, form); err != nil {
		return err
	}
	p.site.mu.Lock()
	p.site.submitted++
	next, busy := p.site.afterSubmit, p.site.busyPolls
	p.site.mu.Unlock()

	if next != "" {
		p.mu.Lock()
		p.current = next
		p.busyLeft = busy
		p.mu.Unlock()
	}
	return nil
}

func (p *Page) SetBackground(ctx context.Context, color string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.site.mu.Lock()
	p.site.background = color
	p.site.mu.Unlock()
	return nil
}

func (p *Page) Render(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := p.URL()
	p.site.mu.Lock()
	failing := p.site.failRender[addr]
	p.site.mu.Unlock()
	if failing {
		return eris.Errorf("pagetest: render of %s failed", addr)
	}

	if err := os.WriteFile(path, pngStub, 0o644); err != nil {
		return err
	}
	p.site.mu.Lock()
	p.site.renders = append(p.site.renders, path)
	p.site.mu.Unlock()
	return nil
}

func (p *Page) findForm(ctx context.Context, form page.Form) error {
	html, err := p.HTML(ctx)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}
	found := false
	doc.Find(form.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.EqualFold(s.AttrOr("method", ""), "post") {
			found = true
			return false
		}
		return true
	})
	if !found {
		return page.ErrFormNotFound
	}
	return nil
}
