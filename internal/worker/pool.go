// Package worker parallelizes independent tile renders. Renders of
// independent (view_x, view_y, zoom) requests against the same immutable
// FogMap may proceed in parallel since shader.Render neither mutates the
// map nor shares output buffers across calls; this pool is the concrete
// exploitation of that guarantee: a channel-fed, fixed-worker-count pool
// rendering fogmap viewport tiles.
package worker

import (
	"context"
	"sync"
	"time"
)

// Renderer renders one viewport tile. A typical implementation wraps
// shader.Render plus a PNG encoder, or a server.Handler's internal render
// path.
type Renderer interface {
	RenderTile(ctx context.Context, job Job) ([]byte, error)
}

// RendererFunc adapts a plain function to the Renderer interface.
type RendererFunc func(ctx context.Context, job Job) ([]byte, error)

// RenderTile implements Renderer.
func (f RendererFunc) RenderTile(ctx context.Context, job Job) ([]byte, error) {
	return f(ctx, job)
}

// Job identifies one viewport tile to render.
type Job struct {
	ViewX, ViewY int64
	Zoom         int
}

// Result is the outcome of rendering one Job.
type Result struct {
	Job     Job
	Data    []byte
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each job completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Renderer   Renderer
	OnProgress ProgressFunc
}

// Pool renders many viewport tiles concurrently against one FogMap. Since
// renders only read the map, no locking is required between workers --
// only the caller-supplied Renderer's own synchronization, if any,
// applies.
type Pool struct {
	workers    int
	renderer   Renderer
	onProgress ProgressFunc
}

// New creates a worker pool. Workers <= 0 is treated as 1.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		renderer:   cfg.Renderer,
		onProgress: cfg.OnProgress,
	}
}

// Run renders every job, blocking until all complete or ctx is cancelled.
// Results are not guaranteed to be in job order.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	if len(jobs) == 0 {
		return nil
	}

	jobCh := make(chan Job, len(jobs))
	resultCh := make(chan Result, len(jobs))

	var (
		completed int
		failed    int
		mu        sync.Mutex
	)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, jobCh, resultCh)
		}()
	}

	go func() {
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				close(jobCh)
				return
			}
		}
		close(jobCh)
	}()

	results := make([]Result, 0, len(jobs))
	done := make(chan struct{})

	go func() {
		for result := range resultCh {
			results = append(results, result)

			mu.Lock()
			completed++
			if result.Err != nil {
				failed++
			}
			c, f := completed, failed
			mu.Unlock()

			if p.onProgress != nil {
				p.onProgress(c, len(jobs), f)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

func (p *Pool) worker(ctx context.Context, jobs <-chan Job, results chan<- Result) {
	for job := range jobs {
		select {
		case <-ctx.Done():
			results <- Result{Job: job, Err: ctx.Err()}
			continue
		default:
		}

		start := time.Now()
		data, err := p.renderer.RenderTile(ctx, job)
		results <- Result{Job: job, Data: data, Err: err, Elapsed: time.Since(start)}
	}
}
