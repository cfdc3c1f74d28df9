package pg

import (
	"context"
	"database/sql"
	"errors"

	"stackpad.org/internal/item"
)

const itemColumns = `id, owner_id, title, description, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*item.Item, error) {
	var it item.Item
	err := row.Scan(&it.ID, &it.OwnerID, &it.Title, &it.Description, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) CreateItem(ctx context.Context, it *item.Item) error {
	_, err := s.db.ExecContext(ctx, `
		insert into items(id, owner_id, title, description, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6)
	`, it.ID, it.OwnerID, it.Title, it.Description, it.CreatedAt, it.UpdatedAt)
	return err
}

func (s *Store) FindItem(ctx context.Context, id string) (*item.Item, error) {
	it, err := scanItem(s.db.QueryRowContext(ctx,
		`select `+itemColumns+` from items where id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, item.ErrNotFound
	}
	return it, err
}

func (s *Store) ListItems(ctx context.Context, ownerID string, limit, offset int) ([]*item.Item, int, error) {
	// nullif turns the empty owner filter off inside one statement.
	var total int
	if err := s.db.QueryRowContext(ctx, `
		select count(*) from items where owner_id = coalesce(nullif($1,''), owner_id)
	`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+itemColumns+` from items
		where owner_id = coalesce(nullif($1,''), owner_id)
		order by created_at, id
		limit $2 offset $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (s *Store) UpdateItem(ctx context.Context, it *item.Item) error {
	res, err := s.db.ExecContext(ctx, `
		update items set title=$2, description=$3, updated_at=$4 where id=$1
	`, it.ID, it.Title, it.Description, it.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return item.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from items where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return item.ErrNotFound
	}
	return nil
}
