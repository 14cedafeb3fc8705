package repo

import (
	"context"
	"database/sql"
	"errors"

	"skillroutine/internal/domain"
)

const friendColumns = `id,from_user_id,to_user_id,status,created_at,updated_at`

func scanFriendRequest(row interface{ Scan(...any) error }) (domain.FriendRequest, error) {
	var fr domain.FriendRequest
	err := row.Scan(&fr.ID, &fr.FromUserID, &fr.ToUserID, &fr.Status, &fr.CreatedAt, &fr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fr, ErrNotFound
	}
	return fr, err
}

func (r Repo) GetFriendRequest(ctx context.Context, tx *sql.Tx, id string) (domain.FriendRequest, error) {
	return scanFriendRequest(r.on(tx).QueryRowContext(ctx, `SELECT `+friendColumns+` FROM friend_requests WHERE id=?`, id))
}

// FriendRequestFrom returns the request sent from one user to another, if any.
func (r Repo) FriendRequestFrom(ctx context.Context, tx *sql.Tx, fromID, toID string) (domain.FriendRequest, error) {
	return scanFriendRequest(r.on(tx).QueryRowContext(ctx, `SELECT `+friendColumns+` FROM friend_requests WHERE from_user_id=? AND to_user_id=?`, fromID, toID))
}

// AreFriends reports an accepted request in either direction.
func (r Repo) AreFriends(ctx context.Context, tx *sql.Tx, a, b string) (bool, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `
SELECT 1 FROM friend_requests
WHERE status='accepted' AND ((from_user_id=? AND to_user_id=?) OR (from_user_id=? AND to_user_id=?)) LIMIT 1`,
		a, b, b, a).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertFriendRequest(ctx context.Context, tx *sql.Tx, fr domain.FriendRequest) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO friend_requests(`+friendColumns+`) VALUES (?,?,?,?,?,?)`,
		fr.ID, fr.FromUserID, fr.ToUserID, fr.Status, fr.CreatedAt, fr.UpdatedAt)
	if isUniqueViolation(err, "friend_requests") {
		return ErrConflict
	}
	return err
}

func (r Repo) SetFriendRequestStatus(ctx context.Context, tx *sql.Tx, id, status, ts string) error {
	res, err := r.on(tx).ExecContext(ctx, `UPDATE friend_requests SET status=?, updated_at=? WHERE id=?`, status, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingRequestsFor lists requests waiting on the user, newest first.
func (r Repo) PendingRequestsFor(ctx context.Context, userID string) ([]domain.FriendRequest, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT fr.id,fr.from_user_id,fr.to_user_id,fr.status,fr.created_at,fr.updated_at,u.username
FROM friend_requests fr
JOIN users u ON u.id=fr.from_user_id
WHERE fr.to_user_id=? AND fr.status='pending'
ORDER BY fr.created_at DESC, fr.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FriendRequest
	for rows.Next() {
		var fr domain.FriendRequest
		if err := rows.Scan(&fr.ID, &fr.FromUserID, &fr.ToUserID, &fr.Status, &fr.CreatedAt, &fr.UpdatedAt, &fr.FromUsername); err != nil {
			return nil, err
		}
		res = append(res, fr)
	}
	return res, rows.Err()
}

// ListFriends returns the users with an accepted request to or from userID.
func (r Repo) ListFriends(ctx context.Context, userID string) ([]domain.User, error) {
	return r.queryUsers(ctx, `
SELECT u.id,u.email,u.username,u.password_hash,u.created_at,u.updated_at
FROM friend_requests fr
JOIN users u ON u.id = CASE WHEN fr.from_user_id=? THEN fr.to_user_id ELSE fr.from_user_id END
WHERE fr.status='accepted' AND (fr.from_user_id=? OR fr.to_user_id=?)
ORDER BY u.username COLLATE NOCASE`, userID, userID, userID)
}
