package pairing

import "testing"

func TestStore_ClaimOnePerChat(t *testing.T) {
	s := NewStore()
	dir := t.TempDir()

	first := newSession("telegram:1", "", MethodQR, dir)
	if _, ok := s.Claim(first); !ok {
		t.Fatal("first claim rejected")
	}

	second := newSession("telegram:1", "", MethodQR, dir)
	existing, ok := s.Claim(second)
	if ok {
		t.Fatal("second claim for same chat accepted")
	}
	if existing != first {
		t.Error("claim did not return the live session")
	}

	other := newSession("discord:2", "", MethodQR, dir)
	if _, ok := s.Claim(other); !ok {
		t.Error("claim for a different chat rejected")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStore_ClaimDisplacesCancelling(t *testing.T) {
	s := NewStore()
	dir := t.TempDir()

	old := newSession("telegram:1", "", MethodQR, dir)
	if _, ok := s.Claim(old); !ok {
		t.Fatal("initial claim rejected")
	}
	old.markCancelling()

	fresh := newSession("telegram:1", "", MethodQR, dir)
	if _, ok := s.Claim(fresh); !ok {
		t.Fatal("claim did not displace a cancelling session")
	}
	got, ok := s.Get("telegram:1")
	if !ok || got != fresh {
		t.Fatal("store does not map the chat to the new session")
	}

	// The displaced session's cleanup must not evict its successor.
	s.Remove(old)
	if got, ok := s.Get("telegram:1"); !ok || got != fresh {
		t.Fatal("removing the displaced session evicted the new one")
	}

	s.Remove(fresh)
	if _, ok := s.Get("telegram:1"); ok {
		t.Error("entry survived its own removal")
	}
}

func TestStore_RangeStopsEarly(t *testing.T) {
	s := NewStore()
	dir := t.TempDir()
	s.Claim(newSession("telegram:1", "", MethodQR, dir))
	s.Claim(newSession("discord:2", "", MethodQR, dir))

	visited := 0
	s.Range(func(*Session) bool {
		visited++
		return false
	})
	if visited != 1 {
		t.Errorf("visited = %d, want 1", visited)
	}
}
