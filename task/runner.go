package task

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/swiss-ai-center/text2audio/bridge"
	"github.com/swiss-ai-center/text2audio/storage"
)

// Processor runs one inference exchange. *bridge.Bridge implements it.
type Processor interface {
	Process(ctx context.Context, jsonDescription, inputText []byte) (*bridge.AudioResult, error)
}

// Notifier reports terminal task states back to the engine that submitted
// the task. *engine.Client implements it.
type Notifier interface {
	UpdateTask(ctx context.Context, baseURL string, t Task) error
}

// Runner executes tasks on a fixed pool of workers. One worker handles one
// task at a time, so a slow upstream model never stalls the HTTP surface,
// only its own queue slot.
type Runner struct {
	processor Processor
	store     *Store
	artifacts storage.Storage
	notifier  Notifier

	queue   chan string
	workers int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
}

func NewRunner(processor Processor, store *Store, artifacts storage.Storage, notifier Notifier, workers, queueSize int) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		processor: processor,
		store:     store,
		artifacts: artifacts,
		notifier:  notifier,
		queue:     make(chan string, queueSize),
		workers:   workers,
	}
}

// Start launches the worker pool. Cancelling ctx aborts in-flight upstream
// calls; Stop drains what is already queued.
func (r *Runner) Start(ctx context.Context) {
	r.ctx = ctx
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	log.Debugf("runner started with %d worker(s)", r.workers)
}

// Stop prevents new submissions and waits for the workers to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	r.wg.Wait()
	log.Debugf("runner stopped")
}

// Submit records the task and queues it for execution.
func (r *Runner) Submit(t *Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("runner is stopped")
	}
	r.store.Put(t)
	select {
	case r.queue <- t.ID:
		return nil
	default:
		r.store.Delete(t.ID)
		return fmt.Errorf("task queue is full")
	}
}

func (r *Runner) worker(n int) {
	defer r.wg.Done()
	log.Debugf("worker %d started", n)
	for id := range r.queue {
		r.runTask(r.ctx, id)
	}
	log.Debugf("worker %d stopped", n)
}

func (r *Runner) runTask(ctx context.Context, id string) {
	t, ok := r.store.Get(id)
	if !ok {
		log.Errorf("task %s not found", id)
		return
	}
	r.store.SetRunning(id)
	log.Infof("task %s started", id)

	resultKey, err := r.process(ctx, t)
	if err != nil {
		log.Errorf("task %s failed: %v", id, err)
		r.store.SetFailed(id, err.Error())
	} else {
		r.store.SetFinished(id, resultKey)
		log.Infof("task %s finished, result stored as %s", id, resultKey)
	}

	if t.CallbackURL == "" || r.notifier == nil {
		return
	}
	updated, ok := r.store.Get(id)
	if !ok {
		return
	}
	// one attempt only; redelivery is the engine's business
	if err := r.notifier.UpdateTask(ctx, t.CallbackURL, updated); err != nil {
		log.Warnf("error updating task %s at %s: %v", id, t.CallbackURL, err)
	}
}

// process loads the input parts, runs the bridge and stores the Ogg
// artifact, returning its storage key.
func (r *Runner) process(ctx context.Context, t Task) (string, error) {
	jsonDescription, err := r.artifacts.Get(t.DescriptorKey)
	if err != nil {
		return "", fmt.Errorf("error loading json_description: %v", err)
	}
	inputText, err := r.artifacts.Get(t.InputTextKey)
	if err != nil {
		return "", fmt.Errorf("error loading input_text: %v", err)
	}

	res, err := r.processor.Process(ctx, jsonDescription, inputText)
	if err != nil {
		return "", err
	}

	key := t.ID + "/result.ogg"
	if err := r.artifacts.Put(key, res.Data); err != nil {
		return "", fmt.Errorf("error storing result: %v", err)
	}
	return key, nil
}
