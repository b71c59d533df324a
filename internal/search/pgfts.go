package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// search_nodes table as a fallback. It is also the authoritative index:
// every save replaces the hotel's rows transactionally, so it never serves
// stale nodes the way a best-effort external index can.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries search_nodes with plainto_tsquery, ranked by ts_rank and
// snippeted with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.FilterHotelID != "" {
		where += " AND hotel_id = $2"
		args = append(args, q.FilterHotelID)
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM search_nodes WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT node_id, hotel_id, name, path,
			ts_headline('english', coalesce(nullif(value, ''), description), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM search_nodes
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var snippet sql.NullString
		if err := rows.Scan(&r.NodeID, &r.HotelID, &r.Name, &r.Path, &snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Snippet = snippet.String
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// ReplaceHotelNodes swaps a hotel's indexed rows for the given record set in
// one transaction. Runs inside the same save path as the document write.
func (p *PgFTS) ReplaceHotelNodes(ctx context.Context, hotelID string, records []NodeRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace nodes: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM search_nodes WHERE hotel_id = $1`, hotelID); err != nil {
		return fmt.Errorf("clear hotel nodes: %w", err)
	}
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO search_nodes (hotel_id, node_id, name, value, description, path)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			hotelID, rec.NodeID, rec.Name, rec.Value, rec.Description, rec.Path,
		); err != nil {
			return fmt.Errorf("insert node %s: %w", rec.NodeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace nodes: %w", err)
	}
	return nil
}

// DeleteHotelNodes drops all of a hotel's rows, used when the hotel itself is
// deleted.
func (p *PgFTS) DeleteHotelNodes(ctx context.Context, hotelID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM search_nodes WHERE hotel_id = $1`, hotelID); err != nil {
		return fmt.Errorf("delete hotel nodes: %w", err)
	}
	return nil
}

// LoadAllRecords returns every indexed row for full reindexing into
// Meilisearch after it recovers.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NodeRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT hotel_id, node_id, name, value, description, path
		FROM search_nodes
	`)
	if err != nil {
		return nil, fmt.Errorf("load search nodes: %w", err)
	}
	defer rows.Close()

	records := make([]NodeRecord, 0)
	for rows.Next() {
		var r NodeRecord
		if err := rows.Scan(&r.HotelID, &r.NodeID, &r.Name, &r.Value, &r.Description, &r.Path); err != nil {
			return nil, fmt.Errorf("scan search node: %w", err)
		}
		r.ID = r.HotelID + "-" + r.NodeID
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search nodes: %w", err)
	}
	return records, nil
}
