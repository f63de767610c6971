package order

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/noralunch/nora/pkg/models"
	"github.com/noralunch/nora/pkg/queue"
	"github.com/noralunch/nora/pkg/storage"
)

type fakeNotifier struct {
	updated []string
}

func (n *fakeNotifier) UpdateOrderMessage(orderID string) error {
	n.updated = append(n.updated, orderID)
	return nil
}

var (
	testNow = time.Date(2026, time.August, 28, 9, 0, 0, 0, time.UTC)
	today   = time.Date(2026, time.August, 28, 0, 0, 0, 0, time.UTC)
)

func newTestService(t *testing.T) (*Service, *fakeNotifier, *queue.Queue, *storage.Store) {
	t.Helper()
	store, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	notifier := &fakeNotifier{}
	q := queue.New(16)
	svc := New(store, notifier, q, 11, func() time.Time { return testNow })
	return svc, notifier, q, store
}

func putOrder(t *testing.T, store *storage.Store, o *models.Order) {
	t.Helper()
	if o.Created.IsZero() {
		o.Created = testNow
	}
	if err := store.Set(models.OrderKey(o.ID), o); err != nil {
		t.Fatalf("failed to store order: %v", err)
	}
}

func TestSubmitSelection(t *testing.T) {
	svc, notifier, q, store := newTestService(t)
	putOrder(t, store, &models.Order{ID: "o1", EmployeeID: "u1", Date: today, Sent: &testNow})

	o, err := svc.SubmitSelection("o1", "ramen", "no onions")
	if err != nil {
		t.Fatalf("SubmitSelection failed: %v", err)
	}
	if o.Selected != "ramen" || o.Notes != "no onions" {
		t.Errorf("order = %+v", o)
	}

	q.Drain()
	if len(notifier.updated) != 1 || notifier.updated[0] != "o1" {
		t.Errorf("message update not scheduled, got %v", notifier.updated)
	}
}

func TestSubmitSelectionExpired(t *testing.T) {
	svc, _, _, store := newTestService(t)

	yesterday := today.AddDate(0, 0, -1)
	putOrder(t, store, &models.Order{ID: "past", EmployeeID: "u1", Date: yesterday, Sent: &testNow})
	if _, err := svc.SubmitSelection("past", "a", ""); !errors.Is(err, ErrExpired) {
		t.Errorf("past order: err = %v, want ErrExpired", err)
	}

	putOrder(t, store, &models.Order{ID: "done", EmployeeID: "u1", Date: today, Sent: &testNow, Selected: "a", Fulfilled: &testNow})
	if _, err := svc.SubmitSelection("done", "b", ""); !errors.Is(err, ErrExpired) {
		t.Errorf("fulfilled order: err = %v, want ErrExpired", err)
	}

	// the failed attempts must not have mutated anything
	o, err := svc.Get("done")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if o.Selected != "a" {
		t.Errorf("selection mutated on expired order: %q", o.Selected)
	}
}

func TestComplete(t *testing.T) {
	svc, notifier, q, store := newTestService(t)
	putOrder(t, store, &models.Order{ID: "o1", EmployeeID: "u1", Date: today, Sent: &testNow, Selected: "a"})

	o, err := svc.Complete("o1")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if o.Fulfilled == nil || !o.IsReady() {
		t.Errorf("order not ready after complete: %+v", o)
	}

	q.Drain()
	if len(notifier.updated) != 1 {
		t.Errorf("message update not scheduled")
	}
}

func TestCompleteConflicts(t *testing.T) {
	svc, _, _, store := newTestService(t)

	putOrder(t, store, &models.Order{ID: "empty", EmployeeID: "u1", Date: today, Sent: &testNow})
	if _, err := svc.Complete("empty"); !errors.Is(err, ErrNoSelection) {
		t.Errorf("no selection: err = %v, want ErrNoSelection", err)
	}
	o, _ := svc.Get("empty")
	if o.Fulfilled != nil {
		t.Error("conflicting complete must not mutate the order")
	}

	putOrder(t, store, &models.Order{ID: "done", EmployeeID: "u1", Date: today, Sent: &testNow, Selected: "a", Fulfilled: &testNow})
	if _, err := svc.Complete("done"); !errors.Is(err, ErrAlreadyFulfilled) {
		t.Errorf("double complete: err = %v, want ErrAlreadyFulfilled", err)
	}
}

func TestSaveResyncsDateFromMenu(t *testing.T) {
	svc, _, _, store := newTestService(t)

	menuDate := today.AddDate(0, 0, 1)
	if err := store.Set(models.MenuKey("m1"), &models.Menu{ID: "m1", Date: menuDate, Options: []string{"a"}}); err != nil {
		t.Fatalf("failed to store menu: %v", err)
	}
	// the order's snapshot is stale on purpose
	putOrder(t, store, &models.Order{ID: "o1", EmployeeID: "u1", MenuID: "m1", Date: today.AddDate(0, 0, 2), Sent: &testNow})

	o, err := svc.SubmitSelection("o1", "a", "")
	if err != nil {
		t.Fatalf("SubmitSelection failed: %v", err)
	}
	if !o.Date.Equal(menuDate) {
		t.Errorf("date not resynced from menu: %v, want %v", o.Date, menuDate)
	}
}

func TestProjections(t *testing.T) {
	svc, _, _, store := newTestService(t)

	putOrder(t, store, &models.Order{ID: "draft", EmployeeID: "u0", Date: today})
	putOrder(t, store, &models.Order{ID: "pending", EmployeeID: "u1", Date: today, Sent: &testNow})
	putOrder(t, store, &models.Order{ID: "active", EmployeeID: "u2", Date: today, Sent: &testNow, Selected: "a"})
	putOrder(t, store, &models.Order{ID: "ready", EmployeeID: "u3", Date: today, Sent: &testNow, Selected: "b", Fulfilled: &testNow})
	putOrder(t, store, &models.Order{ID: "other-day", EmployeeID: "u4", Date: today.AddDate(0, 0, 1), Sent: &testNow})

	sent, err := svc.ListForDate(today)
	if err != nil {
		t.Fatalf("ListForDate failed: %v", err)
	}
	if len(sent) != 3 {
		t.Errorf("ListForDate = %d orders, want 3 (drafts and other days excluded)", len(sent))
	}

	pending, err := svc.CountPending(today)
	if err != nil {
		t.Fatalf("CountPending failed: %v", err)
	}
	if pending != 1 {
		t.Errorf("CountPending = %d, want 1", pending)
	}

	active, err := svc.ListActive(today)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "active" {
		t.Errorf("ListActive = %v", active)
	}

	ready, err := svc.ListReady(today)
	if err != nil {
		t.Fatalf("ListReady failed: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != "ready" {
		t.Errorf("ListReady = %v", ready)
	}
}

func TestSentDatesAlwaysIncludesToday(t *testing.T) {
	svc, _, _, store := newTestService(t)

	dates, err := svc.SentDates(testNow)
	if err != nil {
		t.Fatalf("SentDates failed: %v", err)
	}
	if len(dates) != 1 || dates[0].Format("2006-01-02") != "2026-08-28" {
		t.Errorf("empty store must still yield today, got %v", dates)
	}

	putOrder(t, store, &models.Order{ID: "o1", EmployeeID: "u1", Date: today.AddDate(0, 0, -3), Sent: &testNow})
	putOrder(t, store, &models.Order{ID: "o2", EmployeeID: "u2", Date: today.AddDate(0, 0, -3), Sent: &testNow})
	putOrder(t, store, &models.Order{ID: "o3", EmployeeID: "u3", Date: today.AddDate(0, 0, 1), Sent: &testNow})
	putOrder(t, store, &models.Order{ID: "unsent", EmployeeID: "u4", Date: today.AddDate(0, 0, 2)})

	dates, err = svc.SentDates(testNow)
	if err != nil {
		t.Fatalf("SentDates failed: %v", err)
	}
	got := make([]string, len(dates))
	for i, d := range dates {
		got[i] = d.Format("2006-01-02")
	}
	want := []string{"2026-08-25", "2026-08-28", "2026-08-29"}
	if len(got) != len(want) {
		t.Fatalf("SentDates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SentDates[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestForEmployee(t *testing.T) {
	svc, _, _, store := newTestService(t)
	putOrder(t, store, &models.Order{ID: "o1", EmployeeID: "u1", Date: today})

	o, err := svc.ForEmployee("u1", testNow)
	if err != nil {
		t.Fatalf("ForEmployee failed: %v", err)
	}
	if o.ID != "o1" {
		t.Errorf("ForEmployee = %s, want o1", o.ID)
	}

	if _, err := svc.ForEmployee("u2", testNow); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing order: err = %v, want ErrNotFound", err)
	}
}
