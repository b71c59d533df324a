package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested root document does not exist.
var ErrNotFound = errors.New("store: not found")

// PostgresStore is the remote document store: one root row per hotel plus a
// flat set of shard rows, one per top-level child.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// SaveTree writes the root manifest and every shard, then deletes shards whose
// id is no longer listed in the manifest's child order. The whole batch runs
// in one transaction: a save is all-or-nothing for the rows it touches, but
// the read-before-delete step means concurrent savers race last-write-wins.
func (s *PostgresStore) SaveTree(ctx context.Context, root RootDocument, shards []ShardDocument) error {
	childOrder, err := json.Marshal(nonNilOrder(root.ChildOrder))
	if err != nil {
		return fmt.Errorf("marshal child order: %w", err)
	}
	scalars := root.Scalars
	if len(scalars) == 0 {
		scalars = json.RawMessage(`{}`)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO hotels (id, name, scalars, child_order, updated_at)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name=EXCLUDED.name, scalars=EXCLUDED.scalars, child_order=EXCLUDED.child_order, updated_at=NOW()
	`, root.ID, root.Name, string(scalars), string(childOrder)); err != nil {
		return fmt.Errorf("upsert root document: %w", err)
	}

	for _, shard := range shards {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shards (hotel_id, id, body, updated_at)
			VALUES ($1, $2, $3::jsonb, NOW())
			ON CONFLICT (hotel_id, id) DO UPDATE
			SET body=EXCLUDED.body, updated_at=NOW()
		`, root.ID, shard.ID, string(shard.Body)); err != nil {
			return fmt.Errorf("upsert shard %s: %w", shard.ID, err)
		}
	}

	// Orphan cleanup: anything present remotely but absent from the current
	// child order was deleted from the tree; a plain upsert pass would leave
	// it behind forever.
	existing, err := shardIDs(ctx, tx, root.ID)
	if err != nil {
		return err
	}
	keep := make(map[string]struct{}, len(root.ChildOrder))
	for _, id := range root.ChildOrder {
		keep[id] = struct{}{}
	}
	for _, id := range existing {
		if _, ok := keep[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM shards WHERE hotel_id=$1 AND id=$2`, root.ID, id); err != nil {
			return fmt.Errorf("delete orphan shard %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoot(ctx context.Context, hotelID string) (RootDocument, error) {
	var root RootDocument
	var scalars, childOrder []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, scalars, child_order, updated_at
		FROM hotels
		WHERE id=$1
	`, hotelID).Scan(&root.ID, &root.Name, &scalars, &childOrder, &root.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return RootDocument{}, ErrNotFound
	}
	if err != nil {
		return RootDocument{}, fmt.Errorf("get root document: %w", err)
	}
	root.Scalars = scalars
	if err := json.Unmarshal(childOrder, &root.ChildOrder); err != nil {
		return RootDocument{}, fmt.Errorf("decode child order: %w", err)
	}
	return root, nil
}

// ListShards returns every shard under the hotel, including any straggler not
// named by the manifest (a crashed save can leave one behind; load reconciles
// rather than drops it).
func (s *PostgresStore) ListShards(ctx context.Context, hotelID string) ([]ShardDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hotel_id, id, body
		FROM shards
		WHERE hotel_id=$1
		ORDER BY id ASC
	`, hotelID)
	if err != nil {
		return nil, fmt.Errorf("list shards: %w", err)
	}
	defer rows.Close()

	items := make([]ShardDocument, 0)
	for rows.Next() {
		var item ShardDocument
		var body []byte
		if err := rows.Scan(&item.HotelID, &item.ID, &body); err != nil {
			return nil, fmt.Errorf("scan shard: %w", err)
		}
		item.Body = body
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shards: %w", err)
	}
	return items, nil
}

// ListHotels enumerates root documents only; bodies are never touched.
func (s *PostgresStore) ListHotels(ctx context.Context) ([]HotelSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, updated_at
		FROM hotels
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list hotels: %w", err)
	}
	defer rows.Close()

	items := make([]HotelSummary, 0)
	for rows.Next() {
		var item HotelSummary
		if err := rows.Scan(&item.ID, &item.Name, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan hotel summary: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hotels: %w", err)
	}
	return items, nil
}

// DeleteTree removes the root document; shards follow via ON DELETE CASCADE.
func (s *PostgresStore) DeleteTree(ctx context.Context, hotelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM hotels WHERE id=$1`, hotelID); err != nil {
		return fmt.Errorf("delete hotel: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM search_nodes WHERE hotel_id=$1`, hotelID); err != nil {
		return fmt.Errorf("delete search rows: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func shardIDs(ctx context.Context, tx *sql.Tx, hotelID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM shards WHERE hotel_id=$1`, hotelID)
	if err != nil {
		return nil, fmt.Errorf("read shard ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan shard id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shard ids: %w", err)
	}
	return ids, nil
}

func nonNilOrder(order []string) []string {
	if order == nil {
		return []string{}
	}
	return order
}
