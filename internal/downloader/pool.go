package downloader

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"albumgrab/pkg/logger"
	"albumgrab/pkg/retry"
)

// Task is one image download. Index is the image's position in the album
// sequence, assigned at submission time; it alone determines the destination
// filename, so completion order never affects naming.
type Task struct {
	URL     string
	Index   int
	Dir     string
	Referer string
}

// Result is the outcome of one task. Err is nil on success and carries the
// final attempt's failure otherwise.
type Result struct {
	Task     Task
	Err      error
	Attempts int
	Duration time.Duration
}

// Failed reports whether the task ultimately failed
func (r Result) Failed() bool {
	return r.Err != nil
}

// ImageFetcher streams an image body from a URL
type ImageFetcher interface {
	Stream(ctx context.Context, url, referer string) (io.ReadCloser, error)
}

// ImageStore persists image bodies under index-derived names
type ImageStore interface {
	HasImage(dir string, index int, url string) bool
	SaveImage(dir string, index int, url string, r io.Reader) error
}

// Options configures a download pool
type Options struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
	Overwrite  bool
	// Sleep overrides the inter-attempt delay function, for tests
	Sleep retry.SleepFunc
}

// Pool manages concurrent image download workers. Results are delivered in
// completion order; no task error ever propagates past the result value.
type Pool struct {
	opts    Options
	jobs    chan Task
	results chan Result
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	fetcher ImageFetcher
	store   ImageStore
	logger  logger.Logger
}

// NewPool creates a download pool
func NewPool(ctx context.Context, opts Options, fetcher ImageFetcher, store ImageStore, log logger.Logger) *Pool {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	poolCtx, cancel := context.WithCancel(ctx)

	return &Pool{
		opts:    opts,
		jobs:    make(chan Task, opts.Workers*2),
		results: make(chan Result, opts.Workers),
		ctx:     poolCtx,
		cancel:  cancel,
		fetcher: fetcher,
		store:   store,
		logger:  log,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.logger.DebugWithFields("starting download pool", map[string]interface{}{
		"workers": p.opts.Workers,
		"retries": p.opts.Retries,
	})

	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit adds a task to the queue
func (p *Pool) Submit(task Task) error {
	select {
	case p.jobs <- task:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("download pool is shutting down")
	}
}

// Results returns the channel delivering results in completion order
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Stop closes the queue, waits for in-flight tasks and closes the result
// channel
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
	p.cancel()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.jobs {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		result := p.process(task, id)

		select {
		case p.results <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

// process downloads one image with bounded retry
func (p *Pool) process(task Task, workerID int) Result {
	start := time.Now()
	result := Result{Task: task}

	if !p.opts.Overwrite && p.store.HasImage(task.Dir, task.Index, task.URL) {
		p.logger.DebugWithFields("image already downloaded", map[string]interface{}{
			"worker_id": workerID,
			"index":     task.Index,
			"url":       task.URL,
		})
		result.Duration = time.Since(start)
		return result
	}

	attempts := 0
	err := retry.Do(p.ctx, func() error {
		attempts++
		return p.downloadOnce(task)
	}, &retry.Config{
		MaxAttempts: p.opts.Retries,
		Backoff:     &retry.ConstantBackoff{Delay: p.opts.RetryDelay},
		RetryIf:     retry.DefaultRetryIf,
		Sleep:       p.opts.Sleep,
		Logger:      p.logger.WithField("url", task.URL),
	})

	result.Err = err
	result.Attempts = attempts
	result.Duration = time.Since(start)

	if err != nil {
		p.logger.ErrorWithFields("download failed", map[string]interface{}{
			"worker_id": workerID,
			"index":     task.Index,
			"url":       task.URL,
			"attempts":  attempts,
			"error":     err.Error(),
		})
	} else {
		p.logger.DebugWithFields("download completed", map[string]interface{}{
			"worker_id": workerID,
			"index":     task.Index,
			"url":       task.URL,
			"duration":  result.Duration,
		})
	}

	return result
}

// downloadOnce performs a single fetch-and-store attempt. Both the response
// stream and the destination file are released on every exit path; a partial
// file from a failed attempt never survives under the final name.
func (p *Pool) downloadOnce(task Task) error {
	body, err := p.fetcher.Stream(p.ctx, task.URL, task.Referer)
	if err != nil {
		return err
	}
	defer body.Close()

	return p.store.SaveImage(task.Dir, task.Index, task.URL, body)
}
