package systems

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/reverie/engine/containers"
	"github.com/spaghettifunk/reverie/engine/core"
)

// JobTask describes a unit of work run by one of the job system workers.
type JobTask struct {
	// Name is used in logs only.
	Name string
	// OnStart runs on a worker goroutine. Required.
	OnStart func(ctx context.Context) error
	// OnComplete is invoked when OnStart returned nil. Optional.
	OnComplete func()
	// OnFailure is invoked with the error returned by OnStart. Optional.
	OnFailure func(err error)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// guards closed and sends on jobQueue
	mu     sync.RWMutex
	closed bool

	// jobs that did not fit jobQueue, fed to it by a single spill goroutine
	overflowMu sync.Mutex
	overflow   *containers.RingQueue[JobTask]
	spilling   bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(ctx context.Context, numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	jq := make(chan JobTask, channelSize)
	jctx, cancel := context.WithCancel(ctx)
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   jq,
		ctx:        jctx,
		cancel:     cancel,
		overflow:   containers.NewGrowableRingQueue[JobTask](max(channelSize, 1)),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.run(job)
			}
		}()
	}
}

func (js *JobSystem) run(job JobTask) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job %q panicked: %v", job.Name, r)
			}
		}()
		return job.OnStart(js.ctx)
	}()
	if err != nil {
		core.LogError("job %q failed: %s", job.Name, err.Error())
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run, with a cancelled context.
 */
func (js *JobSystem) Shutdown() error {
	js.cancel()
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()
	js.wg.Wait()
	return nil
}

// AddWorkNonBlocking queues the job and returns immediately. Jobs that do not
// fit the queue wait in an overflow queue, in order, and are handed to the
// workers by one spill goroutine, so a burst never blocks the caller nor
// starts a goroutine per job.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}

	js.overflowMu.Lock()
	defer js.overflowMu.Unlock()
	if !js.spilling {
		select {
		case js.jobQueue <- jt:
			return nil
		default:
		}
	}
	_ = js.overflow.Enqueue(jt)
	if !js.spilling {
		js.spilling = true
		js.wg.Add(1)
		go js.spill()
	}
	return nil
}

// Overflowing reports how many jobs wait for a free slot in the queue.
func (js *JobSystem) Overflowing() int {
	js.overflowMu.Lock()
	defer js.overflowMu.Unlock()
	return js.overflow.Len()
}

func (js *JobSystem) spill() {
	defer js.wg.Done()
	for {
		js.overflowMu.Lock()
		jt, err := js.overflow.Dequeue()
		if err != nil {
			js.spilling = false
			js.overflowMu.Unlock()
			return
		}
		js.overflowMu.Unlock()

		if !js.send(jt) {
			// shut down while waiting for a slot, run with the cancelled context
			js.run(jt)
		}
	}
}

// send blocks until jt is queued or the job system is cancelled, so that
// Shutdown is never held up by a full queue.
func (js *JobSystem) send(jt JobTask) bool {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return false
	}
	select {
	case js.jobQueue <- jt:
		return true
	case <-js.ctx.Done():
		return false
	}
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}

// Dispatch runs fn on a worker. Once Dispatch returned nil, fn is called
// exactly once, with a cancelled context if the system shuts down first.
func (js *JobSystem) Dispatch(name string, fn func(ctx context.Context) error) error {
	return js.AddWorkNonBlocking(JobTask{
		Name:    name,
		OnStart: fn,
	})
}
