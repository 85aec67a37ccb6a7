package tts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// pipelineBuildTimeout bounds a single pipeline construction.
const pipelineBuildTimeout = 2 * time.Minute

// PipelineCache memoizes one Pipeline per language code for the lifetime of
// the process. Concurrent misses for the same code share a single
// construction.
type PipelineCache struct {
	backend Backend

	mu        sync.RWMutex
	pipelines map[LangCode]Pipeline
	group     singleflight.Group
}

// NewPipelineCache creates an empty cache over backend.
func NewPipelineCache(backend Backend) *PipelineCache {
	return &PipelineCache{
		backend:   backend,
		pipelines: make(map[LangCode]Pipeline),
	}
}

// Get returns the pipeline for code, constructing it on first use.
// Failed constructions are not cached.
func (c *PipelineCache) Get(ctx context.Context, code LangCode) (Pipeline, error) {
	c.mu.RLock()
	p, ok := c.pipelines[code]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	// The build outlives any single caller: it runs detached from ctx, bounded
	// by pipelineBuildTimeout, and each caller stops waiting when its own ctx
	// is done.
	ch := c.group.DoChan(string(code), func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pipelineBuildTimeout)
		defer cancel()

		c.mu.RLock()
		p, ok := c.pipelines[code]
		c.mu.RUnlock()
		if ok {
			return p, nil
		}

		slog.Info("initializing new pipeline", "backend", c.backend.Name(), "lang_code", code)
		p, err := c.backend.NewPipeline(buildCtx, code)
		if err != nil {
			return nil, fmt.Errorf("creating pipeline for %q: %w", code, err)
		}

		c.mu.Lock()
		c.pipelines[code] = p
		c.mu.Unlock()
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for pipeline %q: %w", code, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Pipeline), nil
	}
}

// Len reports the number of cached pipelines.
func (c *PipelineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pipelines)
}

// Prewarm builds the pipelines for the given codes concurrently and returns
// the first construction error.
func (c *PipelineCache) Prewarm(ctx context.Context, codes []LangCode) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, code := range codes {
		g.Go(func() error {
			_, err := c.Get(ctx, code)
			return err
		})
	}
	return g.Wait()
}
