package pg

import (
	"context"
	"database/sql"
	"errors"

	"stackpad.org/internal/file"
)

const fileColumns = `id, owner_id, filename, storage_key, content_type, size, sha256, created_at, updated_at`

func scanFile(row interface{ Scan(...any) error }) (*file.File, error) {
	var f file.File
	err := row.Scan(&f.ID, &f.OwnerID, &f.Filename, &f.StorageKey,
		&f.ContentType, &f.Size, &f.SHA256, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *Store) CreateFile(ctx context.Context, f *file.File) error {
	_, err := s.db.ExecContext(ctx, `
		insert into files(id, owner_id, filename, storage_key, content_type, size, sha256, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, f.ID, f.OwnerID, f.Filename, f.StorageKey, f.ContentType, f.Size, f.SHA256, f.CreatedAt, f.UpdatedAt)
	return err
}

func (s *Store) FindFile(ctx context.Context, id string) (*file.File, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx,
		`select `+fileColumns+` from files where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, file.ErrNotFound
	}
	return f, err
}

func (s *Store) ListFiles(ctx context.Context, ownerID string, limit, offset int) ([]*file.File, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from files where owner_id = coalesce(nullif($1,''), owner_id)
	`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+fileColumns+` from files
		where owner_id = coalesce(nullif($1,''), owner_id)
		order by created_at, id
		limit $2 offset $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var files []*file.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		files = append(files, f)
	}
	return files, total, rows.Err()
}

func (s *Store) DeleteFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from files where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return file.ErrNotFound
	}
	return nil
}
