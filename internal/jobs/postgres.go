package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLookup reads postings from the shared database.
type PostgresLookup struct {
	pool *pgxpool.Pool
}

func NewPostgresLookup(ctx context.Context, pool *pgxpool.Pool) (*PostgresLookup, error) {
	if _, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS job_postings (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			company TEXT NOT NULL,
			required_skills TEXT[] NOT NULL DEFAULT '{}'
		);`); err != nil {
		return nil, fmt.Errorf("init job postings schema: %w", err)
	}
	return &PostgresLookup{pool: pool}, nil
}

func (l *PostgresLookup) GetPosting(ctx context.Context, id string) (*Posting, error) {
	var p Posting
	err := l.pool.QueryRow(ctx,
		`SELECT id, title, company, required_skills FROM job_postings WHERE id=$1`,
		id).Scan(&p.ID, &p.Title, &p.Company, &p.RequiredSkills)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job posting: %w", err)
	}
	return &p, nil
}
