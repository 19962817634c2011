package supervisor

import (
	"sync"

	"github.com/omakh-hive/queen/internal/lifecycle"
)

// maxConversationTurns bounds the in-memory history kept per session,
// per spec.md §4.10 ("bounded conversation history, most recent ~10
// turns").
const maxConversationTurns = 10

// sessionStore holds every active conversation in memory, each capped
// to its last maxConversationTurns turns. Persistence across restarts
// is delegated to lifecycle.Manager's SessionSource callback, which
// reads a snapshot of this store at shutdown.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*lifecycle.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*lifecycle.Session)}
}

// Append records a turn for sessionID's conversation, creating the
// session if it does not yet exist, and trims to the last
// maxConversationTurns entries.
func (s *sessionStore) Append(sessionID, userID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &lifecycle.Session{ID: sessionID, UserID: userID}
		s.sessions[sessionID] = sess
	}
	sess.Turns = append(sess.Turns, lifecycle.ConvTurn{Role: role, Content: content})
	if len(sess.Turns) > maxConversationTurns {
		sess.Turns = sess.Turns[len(sess.Turns)-maxConversationTurns:]
	}
}

// Turns returns a copy of sessionID's current turn history.
func (s *sessionStore) Turns(sessionID string) []lifecycle.ConvTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]lifecycle.ConvTurn, len(sess.Turns))
	copy(out, sess.Turns)
	return out
}

// Snapshot returns every active session, for use as a
// lifecycle.SessionSource at shutdown.
func (s *sessionStore) Snapshot() []lifecycle.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lifecycle.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	return out
}

// Restore seeds the store from sessions recovered by lifecycle.Manager's
// boot recovery scan.
func (s *sessionStore) Restore(sessions []lifecycle.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range sessions {
		sess := sessions[i]
		s.sessions[sess.ID] = &sess
	}
}
