package session

import (
	"testing"
	"time"

	"github.com/JonMunkholm/excelsql/internal/workflow"
)

func newTestStore(size int, ttl time.Duration) (*Store, *int) {
	created := 0
	s := NewStore(size, ttl, func(string) *workflow.Workflow {
		created++
		return workflow.New(workflow.Options{})
	})
	return s, &created
}

func TestStore_GetOrCreate(t *testing.T) {
	s, created := newTestStore(4, time.Hour)
	id := NewID()

	w1, isNew := s.GetOrCreate(id)
	if !isNew || w1 == nil {
		t.Fatalf("first GetOrCreate() = %v, %v", w1, isNew)
	}
	w2, isNew := s.GetOrCreate(id)
	if isNew || w2 != w1 {
		t.Error("second GetOrCreate() returned a different workflow")
	}
	if *created != 1 {
		t.Errorf("factory calls = %d, want 1", *created)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d", s.Len())
	}

	if _, ok := s.Get(NewID()); ok {
		t.Error("Get() found an unknown session")
	}
}

func TestStore_EvictsLeastRecentlyUsed(t *testing.T) {
	s, _ := newTestStore(2, time.Hour)
	a, b, c := NewID(), NewID(), NewID()

	wa, _ := s.GetOrCreate(a)
	ch, _ := wa.Subscribe()
	<-ch

	s.GetOrCreate(b)
	s.GetOrCreate(c)

	if _, ok := s.Get(a); ok {
		t.Error("oldest session not evicted")
	}
	if _, ok := <-ch; ok {
		t.Error("evicted workflow not closed")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStore_Expires(t *testing.T) {
	s, created := newTestStore(4, 50*time.Millisecond)
	id := NewID()

	s.GetOrCreate(id)
	time.Sleep(120 * time.Millisecond)

	if _, isNew := s.GetOrCreate(id); !isNew {
		t.Error("expired session was reused")
	}
	if *created != 2 {
		t.Errorf("factory calls = %d, want 2", *created)
	}
}

func TestStore_RemoveAndClose(t *testing.T) {
	s, _ := newTestStore(4, time.Hour)
	a, b := NewID(), NewID()
	s.GetOrCreate(a)
	s.GetOrCreate(b)

	s.Remove(a)
	if _, ok := s.Get(a); ok {
		t.Error("removed session still present")
	}
	s.Close()
	if s.Len() != 0 {
		t.Errorf("Len() after Close = %d", s.Len())
	}
}

func TestValid(t *testing.T) {
	if !Valid(NewID()) {
		t.Error("NewID() not valid")
	}
	for _, id := range []string{"", "abc", "../../etc"} {
		if Valid(id) {
			t.Errorf("Valid(%q) = true", id)
		}
	}
}
