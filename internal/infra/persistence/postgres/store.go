// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics while keeping a normalized relational copy of the state.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"entitygraph/internal/infra/persistence/memory"
	"entitygraph/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/entitygraph?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It applies the schema and hydrates the in-memory store from the relational tables.
func NewStore(dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := loadNormalizedSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	storeOpts := append(append([]memory.Option{}, opts...), memory.WithCommitHook(s.persist))
	s.Store = memory.NewStore(engine, storeOpts...)
	if err := s.ImportState(snapshot); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// persist runs as the memory store's commit hook. A failure aborts the commit.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	return persistNormalized(ctx, s.db, snapshot)
}

// persistNormalized rewrites every table from the snapshot inside one database transaction.
func persistNormalized(ctx context.Context, db *sql.DB, snapshot memory.Snapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, table := range truncateOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for i, r := range snapshot.Roles {
		if _, err := tx.ExecContext(ctx, insertRole, r.ID, r.Name, string(r.Gender), i); err != nil {
			return fmt.Errorf("insert role %d: %w", r.ID, err)
		}
	}
	for i, is := range snapshot.Issues {
		if _, err := tx.ExecContext(ctx, insertIssue, is.ID, is.Name, i); err != nil {
			return fmt.Errorf("insert issue %d: %w", is.ID, err)
		}
	}
	for i, t := range snapshot.Tags {
		if _, err := tx.ExecContext(ctx, insertTag, t.ID, t.Name, i); err != nil {
			return fmt.Errorf("insert tag %d: %w", t.ID, err)
		}
	}
	for i, u := range snapshot.Users {
		if _, err := tx.ExecContext(ctx, insertUser, u.ID, u.Name, u.Age, u.Discount, u.RoleID, i); err != nil {
			return fmt.Errorf("insert user %d: %w", u.ID, err)
		}
	}
	for i, l := range snapshot.UserTags {
		if _, err := tx.ExecContext(ctx, insertUserTag, l.Left, l.Right, i); err != nil {
			return fmt.Errorf("insert user tag %d/%d: %w", l.Left, l.Right, err)
		}
	}
	for i, l := range snapshot.TagIssues {
		if _, err := tx.ExecContext(ctx, insertTagIssue, l.Left, l.Right, i); err != nil {
			return fmt.Errorf("insert tag issue %d/%d: %w", l.Left, l.Right, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func loadNormalizedSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	var snapshot memory.Snapshot
	err := queryEach(ctx, db, selectRoles, func(rows *sql.Rows) error {
		var r domain.Role
		var gender string
		if err := rows.Scan(&r.ID, &r.Name, &gender); err != nil {
			return err
		}
		r.Gender = domain.Gender(gender)
		snapshot.Roles = append(snapshot.Roles, r)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load roles: %w", err)
	}
	err = queryEach(ctx, db, selectIssues, func(rows *sql.Rows) error {
		var is domain.Issue
		if err := rows.Scan(&is.ID, &is.Name); err != nil {
			return err
		}
		snapshot.Issues = append(snapshot.Issues, is)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load issues: %w", err)
	}
	err = queryEach(ctx, db, selectTags, func(rows *sql.Rows) error {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return err
		}
		snapshot.Tags = append(snapshot.Tags, t)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load tags: %w", err)
	}
	err = queryEach(ctx, db, selectUsers, func(rows *sql.Rows) error {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Age, &u.Discount, &u.RoleID); err != nil {
			return err
		}
		snapshot.Users = append(snapshot.Users, u)
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("load users: %w", err)
	}
	if snapshot.UserTags, err = loadLinks(ctx, db, selectUserTags); err != nil {
		return memory.Snapshot{}, fmt.Errorf("load user tags: %w", err)
	}
	if snapshot.TagIssues, err = loadLinks(ctx, db, selectTagIssues); err != nil {
		return memory.Snapshot{}, fmt.Errorf("load tag issues: %w", err)
	}
	return snapshot, nil
}

func loadLinks(ctx context.Context, db *sql.DB, query string) ([]domain.Link, error) {
	var links []domain.Link
	err := queryEach(ctx, db, query, func(rows *sql.Rows) error {
		var l domain.Link
		if err := rows.Scan(&l.Left, &l.Right); err != nil {
			return err
		}
		links = append(links, l)
		return nil
	})
	return links, err
}

func queryEach(ctx context.Context, db *sql.DB, query string, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
