package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// schema mirrors the original MySQL tables (paziente, dottore,
// prenotazione, login), extended with the doctor availability columns the
// client model always had.
const schema = `
CREATE TABLE IF NOT EXISTS paziente (
	id        SERIAL PRIMARY KEY,
	nome      TEXT NOT NULL,
	cognome   TEXT NOT NULL,
	email     TEXT NOT NULL UNIQUE,
	telefono  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dottore (
	id                  SERIAL PRIMARY KEY,
	nome                TEXT NOT NULL,
	cognome             TEXT NOT NULL,
	specializzazione    TEXT NOT NULL DEFAULT 'Generico',
	email               TEXT NOT NULL UNIQUE,
	telefono            TEXT NOT NULL DEFAULT '',
	citta               TEXT NOT NULL DEFAULT '',
	durata_appuntamento INT  NOT NULL DEFAULT 20,
	giorni_disponibili  TEXT NOT NULL DEFAULT '',
	inizio_orario       INT  NOT NULL DEFAULT 0,
	fine_orario         INT  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS prenotazione (
	id          SERIAL PRIMARY KEY,
	id_paziente INT NOT NULL REFERENCES paziente(id) ON DELETE CASCADE,
	id_dottore  INT NOT NULL REFERENCES dottore(id) ON DELETE CASCADE,
	inizio      TIMESTAMPTZ NOT NULL,
	fine        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prenotazione_dottore  ON prenotazione (id_dottore, inizio);
CREATE INDEX IF NOT EXISTS idx_prenotazione_paziente ON prenotazione (id_paziente, inizio);

CREATE TABLE IF NOT EXISTS login (
	username    TEXT PRIMARY KEY,
	password    TEXT NOT NULL,
	ruolo       CHAR(1) NOT NULL,
	id_paziente INT REFERENCES paziente(id) ON DELETE CASCADE,
	id_dottore  INT REFERENCES dottore(id) ON DELETE CASCADE
);
`

// Migrate applies the schema. Idempotent, called at server startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
