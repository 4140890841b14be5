package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"collabboard/internal/board"
)

const schema = `
CREATE TABLE IF NOT EXISTS boards (
	room_id TEXT PRIMARY KEY,
	owner   TEXT NOT NULL,
	data    JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS boards_owner_updated ON boards (owner, updated DESC);
`

// Postgres stores boards in the boards table.
type Postgres struct {
	pool *pgxpool.Pool
	now  Clock
}

// OpenPostgres connects to url and makes sure the schema exists.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	p := &Postgres{pool: pool, now: time.Now}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate boards: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, roomID string) (board.Snapshot, bool, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM boards WHERE room_id = $1`, roomID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return board.Snapshot{}, false, nil
	}
	if err != nil {
		return board.Snapshot{}, false, fmt.Errorf("load board %s: %w", roomID, err)
	}
	var snap board.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return board.Snapshot{}, false, fmt.Errorf("decode board %s: %w", roomID, err)
	}
	return snap, true, nil
}

func (p *Postgres) Save(ctx context.Context, roomID, owner string, snap board.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode board %s: %w", roomID, err)
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO boards (room_id, owner, data, updated)
VALUES ($1, $2, $3, $4)
ON CONFLICT (room_id) DO UPDATE SET data = EXCLUDED.data, updated = EXCLUDED.updated`,
		roomID, owner, raw, p.now().UTC())
	if err != nil {
		return fmt.Errorf("save board %s: %w", roomID, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, owner string) ([]Summary, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT room_id, updated FROM boards WHERE owner = $1 ORDER BY updated DESC, room_id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var s Summary
		err := row.Scan(&s.RoomID, &s.Updated)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
