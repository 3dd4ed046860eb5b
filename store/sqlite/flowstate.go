package sqlite

import (
	"database/sql"
	"time"

	apperrors "github.com/jrsteele09/go-desktop-handoff/internal/errors"
	"github.com/jrsteele09/go-desktop-handoff/server/authflowrepo"
	"github.com/pkg/errors"
)

var _ authflowrepo.Repo = (*FlowStateRepo)(nil)

// FlowStateRepo is the SQLite authflowrepo.Repo.
type FlowStateRepo struct {
	db *DB
}

func NewFlowStateRepo(db *DB) *FlowStateRepo {
	return &FlowStateRepo{db: db}
}

func (r *FlowStateRepo) Upsert(state string, flow *authflowrepo.FlowState) error {
	if state == "" || flow == nil {
		return errors.New("[FlowStateRepo Upsert] state and flow are required")
	}
	_, err := r.db.Exec(`
		INSERT INTO auth_flow_state (state, provider, code_verifier, callback_url, new_user_callback_url, error_callback_url, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(state) DO UPDATE SET
			provider = excluded.provider,
			code_verifier = excluded.code_verifier,
			callback_url = excluded.callback_url,
			new_user_callback_url = excluded.new_user_callback_url,
			error_callback_url = excluded.error_callback_url,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		state, flow.Provider, flow.CodeVerifier, flow.CallbackURL, flow.NewUserCallbackURL, flow.ErrorCallbackURL,
		toMillis(flow.CreatedAt), toMillis(flow.ExpiresAt))
	if err != nil {
		return errors.Wrap(err, "[FlowStateRepo Upsert]")
	}
	return nil
}

func (r *FlowStateRepo) Get(state string) (*authflowrepo.FlowState, error) {
	var (
		flow                 authflowrepo.FlowState
		createdAt, expiresAt int64
	)
	err := r.db.QueryRow(`
		SELECT provider, code_verifier, callback_url, new_user_callback_url, error_callback_url, created_at, expires_at
		FROM auth_flow_state WHERE state = ?`, state).
		Scan(&flow.Provider, &flow.CodeVerifier, &flow.CallbackURL, &flow.NewUserCallbackURL, &flow.ErrorCallbackURL, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(apperrors.ErrNotFound, "state not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[FlowStateRepo Get]")
	}
	flow.CreatedAt, flow.ExpiresAt = fromMillis(createdAt), fromMillis(expiresAt)
	return &flow, nil
}

func (r *FlowStateRepo) Delete(state string) error {
	if _, err := r.db.Exec(`DELETE FROM auth_flow_state WHERE state = ?`, state); err != nil {
		return errors.Wrap(err, "[FlowStateRepo Delete]")
	}
	return nil
}

func (r *FlowStateRepo) DeleteExpired(now time.Time) (int, error) {
	res, err := r.db.Exec(`DELETE FROM auth_flow_state WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "[FlowStateRepo DeleteExpired]")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "[FlowStateRepo DeleteExpired]")
}
