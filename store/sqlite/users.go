package sqlite

import (
	"database/sql"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/users"
	"github.com/pkg/errors"
)

var _ users.UserRepo = (*UserRepo)(nil)

// UserRepo is the SQLite users.UserRepo.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, email, name, image, email_verified, created_at, updated_at, last_login`

func (r *UserRepo) Upsert(user *users.User) error {
	if user == nil || user.ID == "" {
		return errors.New("[UserRepo Upsert] user id is required")
	}
	_, err := r.db.Exec(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			image = excluded.image,
			email_verified = excluded.email_verified,
			updated_at = excluded.updated_at,
			last_login = excluded.last_login`,
		user.ID, users.NormaliseEmail(user.Email), user.Name, user.Image, user.EmailVerified,
		toMillis(user.CreatedAt), toMillis(user.UpdatedAt), toMillis(user.LastLogin))
	if err != nil {
		return errors.Wrap(err, "[UserRepo Upsert]")
	}
	return nil
}

func (r *UserRepo) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "[UserRepo Delete]")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(apperrors.ErrNotFound, "user %s", id)
	}
	return nil
}

func (r *UserRepo) GetByEmail(email string) (*users.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, users.NormaliseEmail(email))
	return scanUser(row, email)
}

func (r *UserRepo) GetByID(id string) (*users.User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row, id)
}

func (r *UserRepo) List(offset, limit int) ([]*users.User, error) {
	rows, err := r.db.Query(`SELECT `+userColumns+` FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo List]")
	}
	defer rows.Close()

	var out []*users.User
	for rows.Next() {
		u, err := scanUser(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, errors.Wrap(rows.Err(), "[UserRepo List]")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, key string) (*users.User, error) {
	var (
		u                               users.User
		createdAt, updatedAt, lastLogin int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Image, &u.EmailVerified, &createdAt, &updatedAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(apperrors.ErrNotFound, "user %s", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[UserRepo scan]")
	}
	u.CreatedAt, u.UpdatedAt, u.LastLogin = fromMillis(createdAt), fromMillis(updatedAt), fromMillis(lastLogin)
	return &u, nil
}
