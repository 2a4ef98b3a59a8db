package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chess-arena/internal/room"

	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS arena_games (
    game_id       TEXT PRIMARY KEY,
    white_id      TEXT NOT NULL,
    white_name    TEXT NOT NULL,
    white_rating  INTEGER NOT NULL,
    black_id      TEXT NOT NULL,
    black_name    TEXT NOT NULL,
    black_rating  INTEGER NOT NULL,
    white_delta   INTEGER NOT NULL DEFAULT 0,
    black_delta   INTEGER NOT NULL DEFAULT 0,
    time_category TEXT NOT NULL,
    base_ms       BIGINT NOT NULL,
    increment_ms  BIGINT NOT NULL,
    result        TEXT NOT NULL,
    cause         TEXT NOT NULL,
    moves_uci     JSONB NOT NULL,
    moves_san     JSONB NOT NULL,
    final_fen     TEXT NOT NULL,
    pgn           TEXT NOT NULL,
    started_at    TIMESTAMPTZ,
    ended_at      TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL
)`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("archive uri is required for postgres")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create arena_games: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveGame(ctx context.Context, sum room.Summary) error {
	if s == nil || s.db == nil {
		return nil
	}
	rec := NewRecord(sum)
	movesUCIRaw, _ := json.Marshal(rec.MovesUCI)
	movesSANRaw, _ := json.Marshal(rec.MovesSAN)

	q := `INSERT INTO arena_games (
        game_id, white_id, white_name, white_rating, black_id, black_name, black_rating,
        white_delta, black_delta, time_category, base_ms, increment_ms, result, cause,
        moves_uci, moves_san, final_fen, pgn, started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
      ) ON CONFLICT (game_id) DO UPDATE SET
        result=EXCLUDED.result,
        cause=EXCLUDED.cause,
        white_delta=EXCLUDED.white_delta,
        black_delta=EXCLUDED.black_delta,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        final_fen=EXCLUDED.final_fen,
        pgn=EXCLUDED.pgn,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := s.db.ExecContext(ctx, q,
		rec.GameID,
		rec.WhiteID, rec.WhiteName, rec.WhiteRating,
		rec.BlackID, rec.BlackName, rec.BlackRating,
		rec.WhiteDelta, rec.BlackDelta,
		string(rec.TimeControl.Category), rec.TimeControl.BaseTimeMs, rec.TimeControl.IncrementMs,
		rec.Result, rec.Cause,
		string(movesUCIRaw), string(movesSANRaw), rec.FinalFEN, rec.PGN,
		rec.StartedAt, rec.EndedAt, rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", rec.GameID, err)
	}
	return nil
}

// DeleteAll empties the archive table
func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM arena_games`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
