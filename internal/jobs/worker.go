package jobs

import (
	"context"
	"time"

	"github.com/cloo-solutions/recall/internal/logger"
)

// JobProcessor defines the interface for processing jobs
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker runs a processor on a fixed interval until stopped.
type Worker struct {
	processor    JobProcessor
	pollInterval time.Duration
	log          *logger.Logger
	stopChan     chan struct{}
	doneChan     chan struct{}
}

func NewWorker(processor JobProcessor, pollInterval time.Duration, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.Nop()
	}
	return &Worker{
		processor:    processor,
		pollInterval: pollInterval,
		log:          log,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start begins the worker's polling loop
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	w.log.Info("worker started", "interval", w.pollInterval.String())

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopped", "reason", "context cancelled")
			return
		case <-w.stopChan:
			w.log.Info("worker stopped", "reason", "stop signal")
			return
		case <-ticker.C:
			if err := w.processor.ProcessJobs(ctx); err != nil {
				w.log.Warn("job run finished with errors", "error", err)
			}
		}
	}
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
	w.log.Info("worker shutdown complete")
}
