package crawl

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"shotcrawl/internal/extractor"
	"shotcrawl/internal/model"
)

// Capture loads address, waits for it to settle, writes its screenshot and
// returns the links found on it.
//
// Load failures, navigation timeouts and capture errors are returned only
// when FailOnTimeout is set. Otherwise they are logged and the page counts
// as having no links. Cancellation of ctx is always returned.
func (r *Run) Capture(ctx context.Context, address string) ([]string, error) {
	links, err := r.capture(ctx, address)
	if err == nil {
		return links, nil
	}
	if ctx.Err() != nil || r.opts.FailOnTimeout {
		return nil, err
	}
	r.logger.Warn("skipping page", zap.String("address", address), zap.Error(err))
	return nil, nil
}

func (r *Run) capture(ctx context.Context, address string) ([]string, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "crawl: rate limit")
		}
	}

	if err := r.open(ctx, address); err != nil {
		return nil, err
	}

	timer := time.NewTimer(r.opts.SettleDelay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	}

	auth := r.Context()
	path := filepath.Join(r.opts.OutputDir, r.titles.Unique(auth, address)+".png")

	links, err := r.render(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, model.NewError(model.KindCapture, address, err)
	}

	r.record(Capture{Auth: auth, Address: address, Path: path, Links: len(links)})
	r.logger.Info("captured page",
		zap.String("context", auth.String()),
		zap.String("address", address),
		zap.String("file", path),
		zap.Int("links", len(links)),
	)
	return links, nil
}

func (r *Run) open(ctx context.Context, address string) error {
	loadCtx, cancel := context.WithTimeout(ctx, r.opts.NavigationTimeout)
	defer cancel()

	err := r.page.Open(loadCtx, address)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
		return model.NewError(model.KindNavigationTimeout, address, nil)
	}
	return model.NewError(model.KindLoadFailure, address, err)
}

func (r *Run) render(ctx context.Context, path string) ([]string, error) {
	if err := r.page.SetBackground(ctx, r.opts.Background); err != nil {
		return nil, err
	}
	if err := r.page.Render(ctx, path); err != nil {
		return nil, err
	}

	html, err := r.page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	ext, err := extractor.New(html, r.page.URL())
	if err != nil {
		return nil, eris.Wrap(err, "crawl: parse document")
	}
	return ext.Links(), nil
}
