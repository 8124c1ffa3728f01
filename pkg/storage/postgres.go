package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the schema used by the Postgres-backed stores.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS links (
			short_code TEXT PRIMARY KEY,
			long_url TEXT NOT NULL,
			owner_id TEXT NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL,
			visit_count INT NOT NULL DEFAULT 0,
			unique_visitor_count INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS link_visits (
			id BIGSERIAL PRIMARY KEY,
			short_code TEXT NOT NULL REFERENCES links(short_code) ON DELETE CASCADE,
			visitor_id TEXT NOT NULL,
			visited_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

type PostgresUserStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresUserStorage(pool *pgxpool.Pool) *PostgresUserStorage {
	return &PostgresUserStorage{pool: pool}
}

func (s *PostgresUserStorage) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`
	_, err := s.pool.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	return err
}

func (s *PostgresUserStorage) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`
	return scanUser(s.pool.QueryRow(ctx, query, id))
}

func (s *PostgresUserStorage) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`
	return scanUser(s.pool.QueryRow(ctx, query, email))
}

func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

type PostgresLinkStorage struct {
	pool *pgxpool.Pool
}

func NewPostgresLinkStorage(pool *pgxpool.Pool) *PostgresLinkStorage {
	return &PostgresLinkStorage{pool: pool}
}

func (s *PostgresLinkStorage) Create(ctx context.Context, link *LinkRecord) error {
	query := `INSERT INTO links (short_code, long_url, owner_id, created_at, visit_count, unique_visitor_count)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		link.ShortCode, link.LongURL, link.OwnerID, link.CreatedAt, link.VisitCount, link.UniqueVisitorCount)
	return err
}

func (s *PostgresLinkStorage) GetByCode(ctx context.Context, code string) (*LinkRecord, error) {
	query := `SELECT short_code, long_url, owner_id, created_at, visit_count, unique_visitor_count
		FROM links WHERE short_code = $1`
	row := s.pool.QueryRow(ctx, query, code)
	var link LinkRecord
	err := row.Scan(&link.ShortCode, &link.LongURL, &link.OwnerID, &link.CreatedAt,
		&link.VisitCount, &link.UniqueVisitorCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.loadVisits(ctx, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (s *PostgresLinkStorage) loadVisits(ctx context.Context, link *LinkRecord) error {
	query := `SELECT visitor_id, visited_at FROM link_visits WHERE short_code = $1 ORDER BY id`
	rows, err := s.pool.Query(ctx, query, link.ShortCode)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var visit Visit
		if err := rows.Scan(&visit.VisitorID, &visit.Timestamp); err != nil {
			return err
		}
		link.Visits = append(link.Visits, visit)
	}
	return rows.Err()
}

func (s *PostgresLinkStorage) Update(ctx context.Context, link *LinkRecord) error {
	query := `UPDATE links SET long_url = $2 WHERE short_code = $1`
	_, err := s.pool.Exec(ctx, query, link.ShortCode, link.LongURL)
	return err
}

func (s *PostgresLinkStorage) Delete(ctx context.Context, code string) error {
	query := `DELETE FROM links WHERE short_code = $1`
	_, err := s.pool.Exec(ctx, query, code)
	return err
}

func (s *PostgresLinkStorage) ListByOwner(ctx context.Context, ownerID string) ([]*LinkRecord, error) {
	query := `SELECT short_code, long_url, owner_id, created_at, visit_count, unique_visitor_count
		FROM links WHERE owner_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []*LinkRecord{}
	for rows.Next() {
		var link LinkRecord
		if err := rows.Scan(&link.ShortCode, &link.LongURL, &link.OwnerID, &link.CreatedAt,
			&link.VisitCount, &link.UniqueVisitorCount); err != nil {
			return nil, err
		}
		result = append(result, &link)
	}
	return result, rows.Err()
}

// AppendVisit runs the counter update and the visit insert in one
// transaction so the counters never drift from the log.
func (s *PostgresLinkStorage) AppendVisit(ctx context.Context, code string, visit Visit, unique bool) (*LinkRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	uniqueIncr := 0
	if unique {
		uniqueIncr = 1
	}
	query := `UPDATE links SET visit_count = visit_count + 1, unique_visitor_count = unique_visitor_count + $2
		WHERE short_code = $1`
	tag, err := tx.Exec(ctx, query, code, uniqueIncr)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}

	insert := `INSERT INTO link_visits (short_code, visitor_id, visited_at) VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, insert, code, visit.VisitorID, visit.Timestamp); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetByCode(ctx, code)
}
