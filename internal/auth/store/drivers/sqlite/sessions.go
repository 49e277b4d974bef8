package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

type sessionsRepo struct {
	db *sql.DB
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	return withTx(ctx, r.db, func(q dbtx) error {
		_, err := q.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, username, expire_at, created_at) VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.UserID, s.Username, toMillis(s.ExpireAt), toMillis(s.CreatedAt))
		if err != nil {
			return mapConstraint(err)
		}

		for _, jti := range s.DenyList {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO session_deny_list (session_id, jti, created_at) VALUES (?, ?, ?)`,
				s.ID, jti, toMillis(s.CreatedAt)); err != nil {
				return mapConstraint(err)
			}
		}
		return nil
	})
}

func (r *sessionsRepo) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var s domain.Session

	err := withTx(ctx, r.db, func(q dbtx) error {
		var expireAt, createdAt int64
		err := q.QueryRowContext(ctx,
			`SELECT id, user_id, username, expire_at, created_at FROM sessions WHERE id = ? AND expire_at > ?`,
			id, toMillis(time.Now()),
		).Scan(&s.ID, &s.UserID, &s.Username, &expireAt, &createdAt)
		if err != nil {
			return mapNotFound(err)
		}
		s.ExpireAt = fromMillis(expireAt)
		s.CreatedAt = fromMillis(createdAt)

		rows, err := q.QueryContext(ctx,
			`SELECT jti FROM session_deny_list WHERE session_id = ? ORDER BY rowid`, id)
		if err != nil {
			return err
		}
		defer rows.Close()

		s.DenyList = []string{}
		for rows.Next() {
			var jti string
			if err := rows.Scan(&jti); err != nil {
				return err
			}
			s.DenyList = append(s.DenyList, jti)
		}
		return rows.Err()
	})
	if err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// AppendDenyListEntryIfAbsent relies on the (session_id, jti) primary key:
// the conditional insert either adds the row or does nothing, and SQLite
// guarantees only one writer can add it. The follow-up lookup only decides
// which kind of "nothing" happened and runs in the same transaction.
func (r *sessionsRepo) AppendDenyListEntryIfAbsent(ctx context.Context, sessionID, jti string) (store.AppendResult, error) {
	var result store.AppendResult

	err := withTx(ctx, r.db, func(q dbtx) error {
		now := toMillis(time.Now())

		res, err := q.ExecContext(ctx,
			`INSERT INTO session_deny_list (session_id, jti, created_at)
			 SELECT id, ?, ? FROM sessions WHERE id = ? AND expire_at > ?
			 ON CONFLICT (session_id, jti) DO NOTHING`,
			jti, now, sessionID, now)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			result = store.Appended
			return nil
		}

		var live bool
		if err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = ? AND expire_at > ?)`,
			sessionID, now,
		).Scan(&live); err != nil {
			return err
		}

		if live {
			result = store.AlreadyPresent
		} else {
			result = store.SessionMissing
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	return withTx(ctx, r.db, func(q dbtx) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM session_deny_list WHERE session_id = ?`, id); err != nil {
			return err
		}

		res, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}

func (r *sessionsRepo) DeleteSessionsByUser(ctx context.Context, userID string) (int64, error) {
	return r.deleteWhere(ctx, `user_id = ?`, userID)
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return r.deleteWhere(ctx, `expire_at <= ?`, toMillis(time.Now()))
}

// deleteWhere removes matching sessions together with their deny lists
// without relying on foreign-key cascades, which are per-connection in
// SQLite.
func (r *sessionsRepo) deleteWhere(ctx context.Context, cond string, arg any) (int64, error) {
	var count int64

	err := withTx(ctx, r.db, func(q dbtx) error {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM session_deny_list WHERE session_id IN (SELECT id FROM sessions WHERE `+cond+`)`,
			arg); err != nil {
			return err
		}

		res, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE `+cond, arg)
		if err != nil {
			return err
		}
		count, err = res.RowsAffected()
		return err
	})
	return count, err
}
