// Package reminder reconciles stored orders with the messaging
// platform: the initial batch dispatch, in-place updates after
// mutations, and the change/teardown notifications. Everything here is
// best-effort: one recipient failing never aborts the batch.
package reminder

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/noralunch/nora/pkg/cutoff"
	"github.com/noralunch/nora/pkg/logger"
	"github.com/noralunch/nora/pkg/models"
	"github.com/noralunch/nora/pkg/storage"
)

// Gateway is the messaging platform contract the dispatcher calls into
type Gateway interface {
	// Send delivers or, when existingHandle is set, updates a direct
	// message. Returns the channel and message handles to store.
	Send(recipient, text, existingHandle string) (channel, handle string, err error)
	// Delete removes a previously sent message
	Delete(channel, handle string) bool
	// SendScheduledReminder is the fire-and-forget alternative send
	// path; no handle is returned so the message can't be updated.
	SendScheduledReminder(userID, text string) bool
}

// Renderer produces the outbound texts
type Renderer interface {
	Reminder(order *models.Order, options []string, today time.Time) string
	MenuChanged(choiceRemoved bool) string
	MenuDeleted() string
}

// Dispatcher runs the reminder workflows
type Dispatcher struct {
	store        *storage.Store
	gateway      Gateway
	renderer     Renderer
	logger       *logger.Logger
	useReminders bool
	now          func() time.Time
}

// New creates a new dispatcher. With useReminders set, dispatch uses
// the scheduled-reminder path instead of direct messages; those can
// never be updated later.
func New(store *storage.Store, gateway Gateway, renderer Renderer, useReminders bool, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		store:        store,
		gateway:      gateway,
		renderer:     renderer,
		logger:       logger.New("reminder"),
		useReminders: useReminders,
		now:          now,
	}
}

// SendReminders dispatches the unsent orders of one menu
func (d *Dispatcher) SendReminders(menuID string) error {
	m, err := d.menu(menuID)
	if err != nil {
		return errors.Wrap(err, "send reminders")
	}
	d.sendForMenu(m)
	return nil
}

// SendTodaysReminders dispatches the unsent orders of every menu dated
// today. Run by the periodic scheduler at the notify hour; re-running
// is harmless since only unsent orders are touched.
func (d *Dispatcher) SendTodaysReminders() error {
	keys, err := d.store.List(models.MenuPrefix)
	if err != nil {
		return errors.Wrap(err, "send today's reminders")
	}

	now := d.now()
	for _, key := range keys {
		var m models.Menu
		if err := d.store.Get(key, &m); err != nil {
			d.logger.Error("Failed to get menu %s: %v", key, err)
			continue
		}
		if m.ToBeDeleted || !cutoff.SameDay(m.Date, now) {
			continue
		}
		d.sendForMenu(&m)
	}
	return nil
}

// sendForMenu sends the reminder for every unsent order of the menu.
// Sent is set on every attempted order whatever the delivery outcome;
// a failed send leaves the handle fields empty. Afterwards the menu
// itself is marked sent.
func (d *Dispatcher) sendForMenu(m *models.Menu) {
	orders := d.ordersOf(m.ID, func(o *models.Order) bool { return o.Sent == nil })
	d.logger.Info("Sending %d reminders for menu %s...", len(orders), m.ID)

	today := d.now()
	for _, o := range orders {
		text := d.renderer.Reminder(o, m.Options, today)
		if d.useReminders {
			d.gateway.SendScheduledReminder(o.EmployeeID, text)
		} else {
			channel, handle, err := d.gateway.Send(d.recipient(o), text, "")
			if err != nil {
				d.logger.Error("Reminder for order %s failed: %v", o.ID, err)
			} else {
				o.EmployeeChannel = channel
				o.MessageHandle = handle
			}
		}
		now := d.now()
		o.Sent = &now
		o.Modified = now
		if err := d.store.Set(models.OrderKey(o.ID), o); err != nil {
			d.logger.Error("Failed to store order %s: %v", o.ID, err)
		}
	}

	now := d.now()
	m.Sent = &now
	if err := d.store.Set(models.MenuKey(m.ID), m); err != nil {
		d.logger.Error("Failed to store menu %s: %v", m.ID, err)
	}
}

// UpdateOrderMessage re-renders one order's reminder and sends it,
// updating the existing message in place when a handle is stored. The
// returned handles are persisted; on failure they stay unchanged so a
// later update can try again.
func (d *Dispatcher) UpdateOrderMessage(orderID string) error {
	var o models.Order
	if err := d.store.Get(models.OrderKey(orderID), &o); err != nil {
		return errors.Wrap(err, "update order message")
	}

	var options []string
	if o.MenuID != "" {
		if m, err := d.menu(o.MenuID); err == nil {
			options = m.Options
		}
	}

	text := d.renderer.Reminder(&o, options, d.now())
	channel, handle, err := d.gateway.Send(d.recipient(&o), text, o.MessageHandle)
	if err != nil {
		return errors.Wrapf(err, "failed to update message for order %s", orderID)
	}

	o.EmployeeChannel = channel
	o.MessageHandle = handle
	o.Modified = d.now()
	return errors.Wrap(d.store.Set(models.OrderKey(o.ID), &o), "failed to store order")
}

// NotifyMenuChanged refreshes the message of every sent, unfulfilled
// order of the menu. Employees with a selection get a supplementary
// alert; when their choice disappeared from the options the alert says
// so explicitly.
func (d *Dispatcher) NotifyMenuChanged(menuID string) error {
	m, err := d.menu(menuID)
	if err != nil {
		return errors.Wrap(err, "notify menu changed")
	}

	orders := d.ordersOf(menuID, func(o *models.Order) bool {
		return o.Sent != nil && o.Fulfilled == nil
	})
	for _, o := range orders {
		if err := d.UpdateOrderMessage(o.ID); err != nil {
			d.logger.Error("NotifyMenuChanged: %v", err)
		}
		if o.Selected == "" {
			continue
		}
		text := d.renderer.MenuChanged(!m.HasOption(o.Selected))
		if _, _, err := d.gateway.Send(d.recipient(o), text, ""); err != nil {
			d.logger.Error("Change alert for order %s failed: %v", o.ID, err)
		}
	}
	return nil
}

// NotifyMenuDeleted is the teardown workflow: delete the outbound
// message of every sent, unfulfilled order, tell employees with a
// selection that a replacement is coming, delete those orders, clear
// the menu reference on whatever orders survive, and finally
// hard-delete the menu itself.
func (d *Dispatcher) NotifyMenuDeleted(menuID string) error {
	orders := d.ordersOf(menuID, func(o *models.Order) bool {
		return o.Sent != nil && o.Fulfilled == nil
	})
	for _, o := range orders {
		if o.MessageHandle != "" {
			d.gateway.Delete(o.EmployeeChannel, o.MessageHandle)
		}
		if o.Selected != "" {
			if _, _, err := d.gateway.Send(d.recipient(o), d.renderer.MenuDeleted(), ""); err != nil {
				d.logger.Error("Teardown alert for order %s failed: %v", o.ID, err)
			}
		}
		if err := d.store.Delete(models.OrderKey(o.ID)); err != nil {
			d.logger.Error("Failed to delete order %s: %v", o.ID, err)
		}
	}

	// Surviving orders keep their date snapshot but lose the reference
	survivors := d.ordersOf(menuID, func(o *models.Order) bool { return true })
	for _, o := range survivors {
		o.MenuID = ""
		o.Modified = d.now()
		if err := d.store.Set(models.OrderKey(o.ID), o); err != nil {
			d.logger.Error("Failed to detach order %s: %v", o.ID, err)
		}
	}

	if err := d.store.Delete(models.MenuKey(menuID)); err != nil {
		return errors.Wrap(err, "failed to delete menu")
	}
	d.logger.Info("Menu %s torn down (%d orders removed, %d detached)", menuID, len(orders), len(survivors))
	return nil
}

// recipient picks the address for a send: the known channel once a
// message was delivered, the employee id before that.
func (d *Dispatcher) recipient(o *models.Order) string {
	if o.EmployeeChannel != "" {
		return o.EmployeeChannel
	}
	return o.EmployeeID
}

func (d *Dispatcher) menu(id string) (*models.Menu, error) {
	var m models.Menu
	if err := d.store.Get(models.MenuKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ordersOf returns the menu's orders matching keep, in creation order
func (d *Dispatcher) ordersOf(menuID string, keep func(*models.Order) bool) []*models.Order {
	keys, err := d.store.List(models.OrderPrefix)
	if err != nil {
		d.logger.Error("Failed to list orders: %v", err)
		return nil
	}

	var orders []*models.Order
	for _, key := range keys {
		var o models.Order
		if err := d.store.Get(key, &o); err != nil {
			d.logger.Error("Failed to get order %s: %v", key, err)
			continue
		}
		if o.MenuID == menuID && keep(&o) {
			orders = append(orders, &o)
		}
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].Created.Before(orders[j].Created) })
	return orders
}
