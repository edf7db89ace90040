package dap

import (
	"context"
	"runtime"
	"sync"

	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/go-delve/sbdap/pkg/logflags"
	"github.com/google/go-dap"
	"golang.org/x/sync/semaphore"
)

// completion carries the outcome of work done off the dispatcher back to
// it. finish runs on the dispatcher and builds the response.
type completion struct {
	seq    int
	result interface{}
	err    error
	finish func(result interface{}, err error) (dap.Message, error)
}

// executor runs blocking work, typically expression evaluation, on a
// bounded number of goroutines.
type executor struct {
	sem         *semaphore.Weighted
	completions chan<- completion
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
	log         logflags.Logger
}

func newExecutor(completions chan<- completion) *executor {
	return &executor{
		sem:         semaphore.NewWeighted(int64(runtime.NumCPU())),
		completions: completions,
		done:        make(chan struct{}),
		log:         logflags.EvalLogger(),
	}
}

// submit runs work on its own goroutine once a worker slot is free. The
// executor owns tok and releases it when the task ends. A task whose
// token is cancelled before it starts never runs; the result of a task
// cancelled while running is dropped. Deadline expiry is not a
// cancellation: the task reports its timeout error.
func (e *executor) submit(seq int, tok *cancel.Token, work func(tok *cancel.Token) (interface{}, error), finish func(interface{}, error) (dap.Message, error)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer tok.Release()

		ctx, stop := tok.Context(context.Background())
		defer stop()
		if err := e.sem.Acquire(ctx, 1); err != nil {
			if tok.Expired() {
				e.post(completion{seq: seq, err: errEvaluationTimeout(), finish: finish})
			} else {
				e.log.Debugf("request %d cancelled while queued", seq)
			}
			return
		}
		defer e.sem.Release(1)

		if tok.IsCancelled() && !tok.Expired() {
			e.log.Debugf("request %d cancelled before starting", seq)
			return
		}
		result, err := work(tok)
		if tok.IsCancelled() && !tok.Expired() {
			e.log.Debugf("request %d cancelled, dropping its result", seq)
			return
		}
		e.post(completion{seq: seq, result: result, err: err, finish: finish})
	}()
}

func (e *executor) post(c completion) {
	select {
	case e.completions <- c:
	case <-e.done:
	}
}

// stop abandons undelivered completions and waits for running tasks.
func (e *executor) stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()
}
