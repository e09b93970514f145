package ingest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the decode queue cannot take another job
	ErrQueueFull = errors.New("decode queue is full")
	// ErrPoolStopped is returned after Stop
	ErrPoolStopped = errors.New("decode pool is shutting down")
)

// DefaultFetchTimeout bounds the asset fetch of a single job
const DefaultFetchTimeout = 10 * time.Second

// DecodeJob is one icon fetch and decode. It lives from the moment the icon
// reference arrives until its result is applied or dropped.
type DecodeJob struct {
	Seq        uint64
	Generation uint64
	Ref        string
	ctx        context.Context
}

// DecodeResult is handed back to the owner of the weather snapshot
type DecodeResult struct {
	Seq        uint64
	Generation uint64
	Ref        string
	Image      image.Image
	Err        error
}

// WorkerPool runs icon fetch and decode off the render loop. Workers never
// touch shared state; every outcome is sent on Results.
type WorkerPool struct {
	workers  int
	jobQueue chan *DecodeJob
	results  chan DecodeResult
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	fetcher  AssetFetcher
	decode   Decoder
	timeout  time.Duration

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int, fetcher AssetFetcher, decode Decoder, timeout time.Duration, logger *zap.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if decode == nil {
		decode = DecodeImage
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan *DecodeJob, workers*2), // buffer for 2x workers
		results:  make(chan DecodeResult, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		fetcher:  fetcher,
		decode:   decode,
		timeout:  timeout,
	}
}

// Start launches all worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info("Starting icon decode pool",
		zap.Int("workers", wp.workers),
		zap.Int("queue_size", cap(wp.jobQueue)),
		zap.Duration("fetch_timeout", wp.timeout))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop gracefully shuts down the worker pool
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	wp.mu.Unlock()

	wp.logger.Info("Stopping icon decode pool")
	wp.cancel()
	wp.wg.Wait()
	wp.logger.Info("Icon decode pool stopped")
}

// Results delivers the outcome of every job that a worker picked up
func (wp *WorkerPool) Results() <-chan DecodeResult {
	return wp.results
}

// Submit queues a job without blocking. The context bounds the job's life:
// cancelling it aborts the fetch.
func (wp *WorkerPool) Submit(ctx context.Context, job DecodeJob) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	job.ctx = ctx
	select {
	case wp.jobQueue <- &job:
		return nil
	default:
		return ErrQueueFull
	}
}

// worker is the main loop for a single worker
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("Decode worker started", zap.Int("worker_id", id))

	for {
		select {
		case job := <-wp.jobQueue:
			result := wp.processJob(id, job)
			select {
			case wp.results <- result:
			case <-wp.ctx.Done():
				return
			}
		case <-wp.ctx.Done():
			wp.logger.Debug("Decode worker stopping (context cancelled)", zap.Int("worker_id", id))
			return
		}
	}
}

// processJob fetches and decodes a single icon
func (wp *WorkerPool) processJob(workerID int, job *DecodeJob) DecodeResult {
	wp.logger.Debug("Worker processing icon job",
		zap.Int("worker_id", workerID),
		zap.Uint64("seq", job.Seq),
		zap.String("ref", job.Ref))

	result := DecodeResult{Seq: job.Seq, Generation: job.Generation, Ref: job.Ref}
	result.Image, result.Err = wp.fetchAndDecode(job)

	if result.Err != nil {
		wp.logger.Debug("Worker completed icon job with error",
			zap.Int("worker_id", workerID),
			zap.Uint64("seq", job.Seq),
			zap.Error(result.Err))
	} else {
		wp.logger.Debug("Worker completed icon job successfully",
			zap.Int("worker_id", workerID),
			zap.Uint64("seq", job.Seq))
	}
	return result
}

func (wp *WorkerPool) fetchAndDecode(job *DecodeJob) (image.Image, error) {
	if job.Ref == "" {
		return nil, fmt.Errorf("empty asset reference: %w", ErrAssetNotFound)
	}

	parent := job.ctx
	if parent == nil {
		parent = wp.ctx
	}
	// superseded or abandoned while queued
	if err := parent.Err(); err != nil {
		return nil, fmt.Errorf("skipped asset %s: %w", job.Ref, err)
	}
	ctx, cancel := context.WithTimeout(parent, wp.timeout)
	defer cancel()
	stop := context.AfterFunc(wp.ctx, cancel)
	defer stop()

	data, err := wp.fetcher.Fetch(ctx, job.Ref)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch asset %s: %w", job.Ref, err)
	}
	img, err := wp.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode asset %s: %w", job.Ref, err)
	}
	return img, nil
}
