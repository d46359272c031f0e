package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

type WorkerPool struct {
	taskQueue   chan Task
	taskTimeout time.Duration
	wg          sync.WaitGroup
	mutex       sync.RWMutex
	isClosing   atomic.Bool // thread-safe value
	dropped     atomic.Int64
}

func NewWorkerPool(size int, taskTimeout time.Duration) *WorkerPool {
	wp := &WorkerPool{
		taskQueue:   make(chan Task, 1000), // Buffer for 1000 pending tasks
		taskTimeout: taskTimeout,
	}

	// Start the workers
	for range size {
		wp.wg.Add(1) // add to WaitGroup
		go wp.startWorker()
	}

	return wp
}

func (wp *WorkerPool) startWorker() {
	defer wp.wg.Done() // signal when worker finished
	for task := range wp.taskQueue {
		wp.run(task)
	}
}

func (wp *WorkerPool) run(task Task) {
	ctx := context.Background()
	if 0 < wp.taskTimeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.taskTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[worker]task panic: %v", r)
		}
	}()
	if err := task(ctx); err != nil { // run task
		glog.Warningf("[worker]task failed: %v", err)
	}
}

// Submit queues t without blocking. It reports false when the task was dropped.
func (wp *WorkerPool) Submit(t Task) bool {
	wp.mutex.RLock()
	defer wp.mutex.RUnlock()

	if wp.isClosing.Load() {
		glog.Warningf("[worker]task submitted during shutdown, dropping.")
		wp.dropped.Add(1)
		return false
	}
	select {
	case wp.taskQueue <- t: // send task to worker pool
		return true
	default:
		glog.Warningf("[worker]task queue full, dropping task!")
		wp.dropped.Add(1)
		return false
	}
}

func (wp *WorkerPool) Dropped() int64 {
	return wp.dropped.Load()
}

// Shutdown closes the queue and waits for workers to finish
func (wp *WorkerPool) Shutdown() {
	wp.mutex.Lock()
	if wp.isClosing.Swap(true) {
		wp.mutex.Unlock()
		return
	}
	close(wp.taskQueue) // Stop accepting new tasks
	wp.mutex.Unlock()

	wp.wg.Wait() // Wait for all active workers to finish tasks
}
