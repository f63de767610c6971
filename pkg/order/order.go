// Package order implements the employee-facing order mutations and the
// read side: per-date listings and the pending/active/ready projection.
package order

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/noralunch/nora/pkg/cutoff"
	"github.com/noralunch/nora/pkg/logger"
	"github.com/noralunch/nora/pkg/models"
	"github.com/noralunch/nora/pkg/queue"
	"github.com/noralunch/nora/pkg/storage"
)

var (
	// ErrExpired means the cutoff has passed or the order was fulfilled
	ErrExpired = errors.New("order can no longer be changed")
	// ErrNoSelection means an order can't be completed without a selection
	ErrNoSelection = errors.New("you can't complete an order with no selection")
	// ErrAlreadyFulfilled means the order was completed before
	ErrAlreadyFulfilled = errors.New("you can't unfinalize an order")
)

// Notifier updates the outbound message after a mutation
type Notifier interface {
	UpdateOrderMessage(orderID string) error
}

// Service provides order mutation and query functionality
type Service struct {
	store      *storage.Store
	notifier   Notifier
	queue      *queue.Queue
	logger     *logger.Logger
	cutoffHour int
	now        func() time.Time
}

// New creates a new order service
func New(store *storage.Store, notifier Notifier, q *queue.Queue, cutoffHour int, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      store,
		notifier:   notifier,
		queue:      q,
		logger:     logger.New("order"),
		cutoffHour: cutoffHour,
		now:        now,
	}
}

// Get returns an order by id
func (s *Service) Get(id string) (*models.Order, error) {
	var o models.Order
	if err := s.store.Get(models.OrderKey(id), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// SubmitSelection records the employee's choice and notes, then
// schedules an update of the outbound message. Fails with ErrExpired
// once the cutoff for the order's date has passed or the order was
// fulfilled; nothing is mutated then.
func (s *Service) SubmitSelection(id, selected, notes string) (*models.Order, error) {
	o, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if cutoff.Expired(o.Date, s.cutoffHour, s.now(), o.Fulfilled) {
		return nil, ErrExpired
	}

	o.Selected = selected
	o.Notes = notes
	if err := s.save(o); err != nil {
		return nil, err
	}
	s.logger.Info("Order %s: %s selected %q", o.ID, o.EmployeeID, selected)

	s.scheduleMessageUpdate(o.ID)
	return o, nil
}

// Complete marks an order fulfilled. Fails with ErrNoSelection when
// nothing was selected and with ErrAlreadyFulfilled on a double
// complete; fulfilled is set exactly once.
func (s *Service) Complete(id string) (*models.Order, error) {
	o, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	if o.Selected == "" {
		return nil, ErrNoSelection
	}
	if o.Fulfilled != nil {
		return nil, ErrAlreadyFulfilled
	}

	now := s.now()
	o.Fulfilled = &now
	if err := s.save(o); err != nil {
		return nil, err
	}
	s.logger.Info("Order %s fulfilled", o.ID)

	s.scheduleMessageUpdate(o.ID)
	return o, nil
}

// ForEmployee returns the employee's order for the given date, sent or
// not. Used by the chat handlers to resolve a reply to an order.
func (s *Service) ForEmployee(employeeID string, date time.Time) (*models.Order, error) {
	orders, err := s.all()
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if o.EmployeeID == employeeID && cutoff.SameDay(o.Date, date) {
			return o, nil
		}
	}
	return nil, errors.Wrapf(storage.ErrNotFound, "no order for employee %s on %s", employeeID, date.Format("2006-01-02"))
}

// ListForDate returns all sent orders for a date, ordered by creation.
// Draft orders never show up here.
func (s *Service) ListForDate(date time.Time) ([]*models.Order, error) {
	return s.filter(func(o *models.Order) bool {
		return o.IsSent() && cutoff.SameDay(o.Date, date)
	})
}

// CountPending returns the number of sent orders without a selection
// for a date.
func (s *Service) CountPending(date time.Time) (int, error) {
	orders, err := s.filter(func(o *models.Order) bool {
		return o.IsPending() && cutoff.SameDay(o.Date, date)
	})
	if err != nil {
		return 0, err
	}
	return len(orders), nil
}

// ListActive returns the sent, selected, unfulfilled orders for a date
func (s *Service) ListActive(date time.Time) ([]*models.Order, error) {
	return s.filter(func(o *models.Order) bool {
		return o.IsActive() && cutoff.SameDay(o.Date, date)
	})
}

// ListReady returns the fulfilled orders for a date
func (s *Service) ListReady(date time.Time) ([]*models.Order, error) {
	return s.filter(func(o *models.Order) bool {
		return o.IsReady() && cutoff.SameDay(o.Date, date)
	})
}

// SentDates returns the distinct days that have sent orders, plus
// today, sorted ascending. Feeds the date picker.
func (s *Service) SentDates(now time.Time) ([]time.Time, error) {
	orders, err := s.all()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]time.Time)
	add := func(t time.Time) {
		day := t.Format("2006-01-02")
		if _, ok := seen[day]; !ok {
			seen[day] = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		}
	}

	for _, o := range orders {
		if o.IsSent() {
			add(o.Date)
		}
	}
	add(now)

	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// save persists the order, resyncing its date from the menu when the
// weak reference still resolves and bumping the modified timestamp.
func (s *Service) save(o *models.Order) error {
	if o.MenuID != "" {
		var m models.Menu
		if err := s.store.Get(models.MenuKey(o.MenuID), &m); err == nil {
			o.Date = m.Date
		}
	}
	o.Modified = s.now()
	return errors.Wrap(s.store.Set(models.OrderKey(o.ID), o), "failed to store order")
}

func (s *Service) scheduleMessageUpdate(orderID string) {
	s.queue.Enqueue("update-message "+orderID, func() error {
		return s.notifier.UpdateOrderMessage(orderID)
	})
}

func (s *Service) all() ([]*models.Order, error) {
	keys, err := s.store.List(models.OrderPrefix)
	if err != nil {
		return nil, err
	}

	orders := make([]*models.Order, 0, len(keys))
	for _, key := range keys {
		var o models.Order
		if err := s.store.Get(key, &o); err != nil {
			s.logger.Error("Failed to get order %s: %v", key, err)
			continue
		}
		orders = append(orders, &o)
	}

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].Date.Equal(orders[j].Date) {
			return orders[i].Date.Before(orders[j].Date)
		}
		return orders[i].Created.Before(orders[j].Created)
	})
	return orders, nil
}

func (s *Service) filter(keep func(*models.Order) bool) ([]*models.Order, error) {
	orders, err := s.all()
	if err != nil {
		return nil, err
	}

	filtered := orders[:0:0]
	for _, o := range orders {
		if keep(o) {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}
