package pg

import (
	"context"
	"database/sql"
	"errors"

	"stackpad.org/internal/auth"
)

const userColumns = `id, email, full_name, hashed_password, is_active, is_superuser, is_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.HashedPassword,
		&u.Active, &u.Superuser, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, full_name, hashed_password, is_active, is_superuser, is_verified, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Email, u.FullName, u.HashedPassword, u.Active, u.Superuser, u.Verified, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*auth.User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+` from users
		order by created_at, id
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u *auth.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set email=$2, full_name=$3, hashed_password=$4, is_active=$5, is_superuser=$6, is_verified=$7, updated_at=$8
		where id=$1
	`, u.ID, u.Email, u.FullName, u.HashedPassword, u.Active, u.Superuser, u.Verified, u.UpdatedAt)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set hashed_password=$2, updated_at=now() where id=$1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteUser removes the user; owned items and files go with it via
// the schema's on delete cascade.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
