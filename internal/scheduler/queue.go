package scheduler

import (
	"fmt"
	"log"
	"sync"
)

// taskQueue is a bounded-concurrency FIFO work queue. Tasks begin execution
// in submission order as slots free; a slot is released when its task
// returns or panics, so one bad task never starves the queue.
type taskQueue struct {
	name        string
	concurrency int

	mu      sync.Mutex
	waiting []func()
	active  int
	closed  bool
	wg      sync.WaitGroup
}

func newTaskQueue(name string, concurrency int) *taskQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &taskQueue{name: name, concurrency: concurrency}
}

// Submit enqueues a task. Non-blocking: the task starts immediately if a
// concurrency slot is free, otherwise it waits in FIFO order.
func (q *taskQueue) Submit(task func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue %s is shut down", q.name)
	}

	q.waiting = append(q.waiting, task)
	q.wg.Add(1)
	q.dispatchLocked()
	return nil
}

// dispatchLocked starts waiting tasks while slots are free. Callers hold q.mu.
func (q *taskQueue) dispatchLocked() {
	for q.active < q.concurrency && len(q.waiting) > 0 {
		task := q.waiting[0]
		q.waiting = q.waiting[1:]
		q.active++
		go q.run(task)
	}
}

func (q *taskQueue) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [QUEUE:%s] Task panicked: %v", q.name, r)
		}
		q.mu.Lock()
		q.active--
		q.dispatchLocked()
		q.mu.Unlock()
		q.wg.Done()
	}()

	task()
}

// Size returns the number of queued-but-not-started tasks
func (q *taskQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Pending returns the number of in-flight tasks
func (q *taskQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Close stops accepting new submissions. In-flight and waiting tasks drain.
func (q *taskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Wait blocks until every accepted task has finished
func (q *taskQueue) Wait() {
	q.wg.Wait()
}
