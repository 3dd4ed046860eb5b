package sessions

import "time"

type Repo interface {
	Create(session *Session) error
	GetByToken(token string) (*Session, error)
	Delete(token string) error
	ListByUser(userID string) ([]*Session, error)
	DeleteExpired(now time.Time) (int, error)
}
