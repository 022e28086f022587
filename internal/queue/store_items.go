package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ListItems returns the items of a job in submission order.
func (s *Store) ListItems(ctx context.Context, jobID string) ([]*Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+itemColumns+" FROM items WHERE job_id = ? ORDER BY position", jobID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetItem returns one item, or nil when it does not exist.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

// UpdateItem persists the mutable item fields.
func (s *Store) UpdateItem(ctx context.Context, item *Item) error {
	item.UpdatedAt = s.now()
	_, err := s.execWithRetry(ctx,
		`UPDATE items SET status = ?, current_stage = ?, duration = ?, error_kind = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`,
		item.Status,
		nullableString(item.CurrentStage),
		item.Duration,
		nullableString(item.ErrorKind),
		nullableString(item.ErrorMessage),
		formatTime(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item %s: %w", item.ID, err)
	}
	return nil
}
