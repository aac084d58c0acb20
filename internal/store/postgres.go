package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"stt-relay-service/internal/models"
)

// Postgres implements Store on a pgx connection pool. The table is keyed by
// (call_id, event_timestamp) with a secondary index on result_id; upserts keep
// the last write for a key.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgres connects a pool and ensures the transcript schema exists.
func NewPostgres(ctx context.Context, databaseURL, table string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting pool: %v", ErrPersistence, err)
	}

	p := &Postgres{pool: pool, table: table}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	table := pgx.Identifier{p.table}.Sanitize()
	index := pgx.Identifier{p.table + "_result_id_idx"}.Sanitize()

	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		call_id         text NOT NULL,
		event_timestamp timestamptz NOT NULL,
		caller_id       text NOT NULL DEFAULT '',
		result_id       text NOT NULL,
		speaker_name    text NOT NULL DEFAULT '',
		start_time      double precision NOT NULL DEFAULT 0,
		end_time        double precision NOT NULL DEFAULT 0,
		transcript      text NOT NULL DEFAULT '',
		items           jsonb,
		PRIMARY KEY (call_id, event_timestamp)
	)`, table))
	if err != nil {
		return fmt.Errorf("%w: creating table: %v", ErrPersistence, err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (result_id)`, index, table))
	if err != nil {
		return fmt.Errorf("%w: creating result index: %v", ErrPersistence, err)
	}
	return nil
}

// Persist upserts one segment; the last write for a key wins.
func (p *Postgres) Persist(ctx context.Context, seg models.Segment) error {
	items, err := json.Marshal(seg.Items)
	if err != nil {
		return fmt.Errorf("%w: encoding items: %v", ErrPersistence, err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`INSERT INTO %s
		(call_id, event_timestamp, caller_id, result_id, speaker_name, start_time, end_time, transcript, items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (call_id, event_timestamp) DO UPDATE SET
			caller_id = EXCLUDED.caller_id,
			result_id = EXCLUDED.result_id,
			speaker_name = EXCLUDED.speaker_name,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			transcript = EXCLUDED.transcript,
			items = EXCLUDED.items`, pgx.Identifier{p.table}.Sanitize()),
		seg.CallId, seg.EventTimestamp, seg.CallerId, seg.ResultId, seg.SpeakerName,
		seg.StartTime, seg.EndTime, seg.Transcript, items)
	if err != nil {
		return fmt.Errorf("%w: writing segment callId=%s resultId=%s: %v", ErrPersistence, seg.CallId, seg.ResultId, err)
	}
	return nil
}

// Query returns segments for a call newer than since, in timestamp order.
func (p *Postgres) Query(ctx context.Context, callId string, since time.Time) ([]models.Segment, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT
		call_id, event_timestamp, caller_id, result_id, speaker_name, start_time, end_time, transcript, items
		FROM %s WHERE call_id = $1 AND event_timestamp > $2
		ORDER BY event_timestamp`, pgx.Identifier{p.table}.Sanitize()),
		callId, since)
	if err != nil {
		return nil, fmt.Errorf("%w: querying callId=%s: %v", ErrPersistence, callId, err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

// QueryByResultId returns all stored revisions of a result identifier.
func (p *Postgres) QueryByResultId(ctx context.Context, resultId string) ([]models.Segment, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT
		call_id, event_timestamp, caller_id, result_id, speaker_name, start_time, end_time, transcript, items
		FROM %s WHERE result_id = $1
		ORDER BY event_timestamp`, pgx.Identifier{p.table}.Sanitize()),
		resultId)
	if err != nil {
		return nil, fmt.Errorf("%w: querying resultId=%s: %v", ErrPersistence, resultId, err)
	}
	defer rows.Close()
	return scanSegments(rows)
}

func scanSegments(rows pgx.Rows) ([]models.Segment, error) {
	var out []models.Segment
	for rows.Next() {
		var seg models.Segment
		var items []byte
		if err := rows.Scan(&seg.CallId, &seg.EventTimestamp, &seg.CallerId, &seg.ResultId,
			&seg.SpeakerName, &seg.StartTime, &seg.EndTime, &seg.Transcript, &items); err != nil {
			return nil, fmt.Errorf("%w: scanning segment: %v", ErrPersistence, err)
		}
		if len(items) > 0 {
			if err := json.Unmarshal(items, &seg.Items); err != nil {
				log.Warn().Err(err).Str("callId", seg.CallId).Msg("Dropping undecodable items column")
			}
		}
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating segments: %v", ErrPersistence, err)
	}
	return out, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
