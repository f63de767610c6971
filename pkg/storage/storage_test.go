package storage

import (
	"testing"

	"github.com/pkg/errors"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewInMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newStore(t)

	in := record{Name: "soup", Count: 3}
	if err := s.Set("menu:1", in); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var out record
	if err := s.Get("menu:1", &out); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out != in {
		t.Errorf("round trip: got %+v, want %+v", out, in)
	}
}

func TestGetMissingKey(t *testing.T) {
	s := newStore(t)

	var out record
	err := s.Get("menu:nope", &out)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)

	if err := s.Set("order:1", record{}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Delete("order:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var out record
	if err := s.Get("order:1", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted key: err = %v, want ErrNotFound", err)
	}
}

func TestListByPrefix(t *testing.T) {
	s := newStore(t)

	for _, key := range []string{"order:1", "order:2", "menu:1"} {
		if err := s.Set(key, record{}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	keys, err := s.List("order:")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("List(order:) = %v, want 2 keys", keys)
	}
}
