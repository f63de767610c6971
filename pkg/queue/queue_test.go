package queue

import (
	"testing"

	"github.com/pkg/errors"
)

func TestDrainRunsTasksInOrder(t *testing.T) {
	q := New(8)

	var ran []string
	q.Enqueue("first", func() error { ran = append(ran, "first"); return nil })
	q.Enqueue("second", func() error { ran = append(ran, "second"); return nil })
	q.Drain()

	if len(ran) != 2 || ran[0] != "first" || ran[1] != "second" {
		t.Errorf("tasks ran as %v, want [first second]", ran)
	}
}

func TestFailingTaskDoesNotStopTheWorker(t *testing.T) {
	q := New(8)

	var ran bool
	q.Enqueue("boom", func() error { return errors.New("boom") })
	q.Enqueue("panic", func() error { panic("boom") })
	q.Enqueue("after", func() error { ran = true; return nil })
	q.Drain()

	if !ran {
		t.Error("a failing task must not stop later tasks")
	}
}

func TestStopDropsNewTasks(t *testing.T) {
	q := New(1)
	q.Start()
	q.Stop()

	// must not block, and must not buffer the task either
	var ran bool
	q.Enqueue("late", func() error { ran = true; return nil })
	q.Drain()
	if ran {
		t.Error("a task enqueued after Stop must be dropped")
	}
}
