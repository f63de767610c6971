package scheduler

import (
	"time"

	"github.com/noralunch/nora/pkg/config"
	"github.com/noralunch/nora/pkg/logger"
	"github.com/noralunch/nora/pkg/queue"
)

// Dispatcher is the batch job the scheduler triggers
type Dispatcher interface {
	SendTodaysReminders() error
}

// Service triggers the daily reminder dispatch
type Service struct {
	dispatcher Dispatcher
	queue      *queue.Queue
	logger     *logger.Logger
	notifyHour int
	now        func() time.Time
	stopChan   chan struct{}
}

// New creates a new scheduler service
func New(dispatcher Dispatcher, q *queue.Queue, notifyHour int, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		dispatcher: dispatcher,
		queue:      q,
		logger:     logger.New("scheduler"),
		notifyHour: notifyHour,
		now:        now,
		stopChan:   make(chan struct{}),
	}
}

// Start starts the scheduler. With the immediate-notify sentinel
// configured there is nothing to schedule: dispatch happens at menu
// creation instead.
func (s *Service) Start() {
	if s.notifyHour == config.NotifyImmediately {
		s.logger.Info("Immediate notify mode, daily scheduler disabled")
		return
	}
	s.logger.Info("Starting reminder scheduler for hour %d", s.notifyHour)
	go s.run()
}

// Stop stops the scheduler
func (s *Service) Stop() {
	s.logger.Info("Stopping reminder scheduler")
	close(s.stopChan)
}

// run checks once a minute whether the notify hour has arrived and
// enqueues the dispatch for today's menus. Dispatch only touches
// unsent orders, so firing more than once within the window is
// harmless.
func (s *Service) run() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := s.now()
			if now.Hour() == s.notifyHour && now.Minute() < 5 {
				s.logger.Info("Notify hour reached, dispatching today's reminders")
				s.queue.Enqueue("daily-dispatch", s.dispatcher.SendTodaysReminders)
			}
		case <-s.stopChan:
			return
		}
	}
}
