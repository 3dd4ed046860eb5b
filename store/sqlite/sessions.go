package sqlite

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/sessions"
	"github.com/pkg/errors"
)

var _ sessions.Repo = (*SessionRepo)(nil)

// SessionRepo is the SQLite sessions.Repo.
type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `id, token, user_id, user_agent, ip_address, created_at, updated_at, expires_at`

func (r *SessionRepo) Create(session *sessions.Session) error {
	if session.Token == "" {
		return errors.New("[SessionRepo Create] token is required")
	}
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	_, err := r.db.Exec(`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Token, session.UserID, session.UserAgent, session.IPAddress,
		toMillis(session.CreatedAt), toMillis(session.UpdatedAt), toMillis(session.ExpiresAt))
	if err != nil {
		return errors.Wrap(err, "[SessionRepo Create]")
	}
	return nil
}

func (r *SessionRepo) GetByToken(token string) (*sessions.Session, error) {
	row := r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(apperrors.ErrNotFound, "session")
	}
	return s, err
}

func (r *SessionRepo) Delete(token string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return errors.Wrap(err, "[SessionRepo Delete]")
	}
	return nil
}

func (r *SessionRepo) ListByUser(userID string) ([]*sessions.Session, error) {
	rows, err := r.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[SessionRepo ListByUser]")
	}
	defer rows.Close()

	var out []*sessions.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "[SessionRepo ListByUser]")
}

func (r *SessionRepo) DeleteExpired(now time.Time) (int, error) {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "[SessionRepo DeleteExpired]")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "[SessionRepo DeleteExpired]")
}

func scanSession(row scanner) (*sessions.Session, error) {
	var (
		s                               sessions.Session
		createdAt, updatedAt, expiresAt int64
	)
	err := row.Scan(&s.ID, &s.Token, &s.UserID, &s.UserAgent, &s.IPAddress, &createdAt, &updatedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "[SessionRepo scan]")
	}
	s.CreatedAt, s.UpdatedAt, s.ExpiresAt = fromMillis(createdAt), fromMillis(updatedAt), fromMillis(expiresAt)
	return &s, nil
}
