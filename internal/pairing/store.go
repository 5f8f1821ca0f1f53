package pairing

import "sync"

// Store tracks at most one active session per chat.
//
// Backed by sync.Map so lookups for different chats never contend; claim and
// removal are per-key atomic, which is all the serialization the orchestrator
// needs beyond its per-session event loop.
type Store struct {
	sessions sync.Map // chat -> *Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the session for a chat.
func (s *Store) Get(chat string) (*Session, bool) {
	v, ok := s.sessions.Load(chat)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Claim installs sess unless the chat already holds a live session, in which
// case that session is returned with ok=false. A session that is cancelling
// no longer blocks a new claim: it is displaced, and its cleanup later
// removes only itself (see Remove).
func (s *Store) Claim(sess *Session) (*Session, bool) {
	for {
		actual, loaded := s.sessions.LoadOrStore(sess.Chat, sess)
		if !loaded {
			return sess, true
		}
		existing := actual.(*Session)
		if !existing.Cancelling() {
			return existing, false
		}
		if s.sessions.CompareAndSwap(sess.Chat, actual, any(sess)) {
			return sess, true
		}
	}
}

// Remove deletes the chat's entry only if it still maps to sess, so a
// displaced session's cleanup cannot evict its successor.
func (s *Store) Remove(sess *Session) {
	s.sessions.CompareAndDelete(sess.Chat, sess)
}

// Range calls f for each active session until f returns false.
func (s *Store) Range(f func(*Session) bool) {
	s.sessions.Range(func(_, v any) bool {
		return f(v.(*Session))
	})
}

// Len counts active sessions.
func (s *Store) Len() int {
	n := 0
	s.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
