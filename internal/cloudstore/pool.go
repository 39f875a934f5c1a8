// Package cloudstore talks to the managed Postgres/pgvector store that
// is the system of record for messages and facts. It exposes durable
// writes plus keyword, semantic and single-round-trip hybrid search.
package cloudstore

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB creates a database/sql connection to Postgres using the pgx
// driver.
func OpenDB(dsn string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info().Msg("cloud store connected")
	return db, nil
}
