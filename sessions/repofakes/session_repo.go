package repofakes

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/pkg/errors"
)

var _ sessions.Repo = (*SessionRepo)(nil)

// SessionRepo is an in-memory sessions.Repo keyed by token.
type SessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]sessions.Session
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{
		sessions: make(map[string]sessions.Session),
	}
}

func (r *SessionRepo) Create(session *sessions.Session) error {
	if session.Token == "" {
		return errors.New("token is required")
	}
	if session.UserID == "" {
		return errors.New("userID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if _, exists := r.sessions[session.Token]; exists {
		return errors.New("session token already exists")
	}
	r.sessions[session.Token] = *session
	return nil
}

func (r *SessionRepo) GetByToken(token string) (*sessions.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[token]
	if !ok {
		return nil, errors.Wrap(apperrors.ErrNotFound, "session")
	}
	return &session, nil
}

func (r *SessionRepo) Delete(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, token)
	return nil
}

func (r *SessionRepo) ListByUser(userID string) ([]*sessions.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*sessions.Session, 0)
	for _, s := range r.sessions {
		if s.UserID == userID {
			session := s
			list = append(list, &session)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

func (r *SessionRepo) DeleteExpired(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, s := range r.sessions {
		if s.Expired(now) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed, nil
}

// Count is the number of stored sessions.
func (r *SessionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
