// Package queue runs background work off the interactive handlers.
// A single worker drains tasks in order, so all orders of one menu are
// processed sequentially; tasks for different menus carry no ordering
// guarantee relative to each other. Execution is best-effort: a failing
// task is logged and dropped, never retried.
package queue

import (
	"sync"

	"github.com/noralunch/nora/pkg/logger"
)

// Task is a named unit of background work
type Task struct {
	Name string
	Run  func() error
}

// Queue is an in-process asynchronous task queue
type Queue struct {
	tasks  chan Task
	stop   chan struct{}
	wg     sync.WaitGroup
	logger *logger.Logger
}

// New creates a new queue with the given buffer size
func New(buffer int) *Queue {
	return &Queue{
		tasks:  make(chan Task, buffer),
		stop:   make(chan struct{}),
		logger: logger.New("queue"),
	}
}

// Start launches the worker
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Stop stops the worker after the task in flight finishes
func (q *Queue) Stop() {
	close(q.stop)
	q.wg.Wait()
}

// Enqueue schedules a task. Blocks when the buffer is full. Tasks
// enqueued after Stop are dropped, never buffered.
func (q *Queue) Enqueue(name string, fn func() error) {
	select {
	case <-q.stop:
		q.logger.Warn("Queue stopped, dropping task %s", name)
		return
	default:
	}

	select {
	case q.tasks <- Task{Name: name, Run: fn}:
	case <-q.stop:
		q.logger.Warn("Queue stopped, dropping task %s", name)
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case task := <-q.tasks:
			q.execute(task)
		case <-q.stop:
			return
		}
	}
}

func (q *Queue) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Task %s panicked: %v", task.Name, r)
		}
	}()

	if err := task.Run(); err != nil {
		q.logger.Error("Task %s failed: %v", task.Name, err)
	}
}

// Drain processes every queued task synchronously on the caller's
// goroutine. Used by tests to make background work deterministic.
func (q *Queue) Drain() {
	for {
		select {
		case task := <-q.tasks:
			q.execute(task)
		default:
			return
		}
	}
}
