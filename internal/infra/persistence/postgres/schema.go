package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements creates the relational layout. Every row carries a position
// column so that reloading reproduces insertion and link order.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		gender TEXT NOT NULL CHECK (gender IN ('Male', 'Female')),
		position BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		position BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		position BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER NOT NULL,
		discount DOUBLE PRECISION NOT NULL,
		role_id BIGINT NOT NULL REFERENCES roles(id),
		position BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tags (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		position BIGINT NOT NULL,
		PRIMARY KEY (user_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tag_issues (
		tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		issue_id BIGINT NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
		position BIGINT NOT NULL,
		PRIMARY KEY (tag_id, issue_id)
	)`,
}

const (
	selectRoles     = `SELECT id, name, gender FROM roles ORDER BY position`
	selectIssues    = `SELECT id, name FROM issues ORDER BY position`
	selectTags      = `SELECT id, name FROM tags ORDER BY position`
	selectUsers     = `SELECT id, name, age, discount, role_id FROM users ORDER BY position`
	selectUserTags  = `SELECT user_id, tag_id FROM user_tags ORDER BY position`
	selectTagIssues = `SELECT tag_id, issue_id FROM tag_issues ORDER BY position`

	insertRole     = `INSERT INTO roles (id, name, gender, position) VALUES ($1, $2, $3, $4)`
	insertIssue    = `INSERT INTO issues (id, name, position) VALUES ($1, $2, $3)`
	insertTag      = `INSERT INTO tags (id, name, position) VALUES ($1, $2, $3)`
	insertUser     = `INSERT INTO users (id, name, age, discount, role_id, position) VALUES ($1, $2, $3, $4, $5, $6)`
	insertUserTag  = `INSERT INTO user_tags (user_id, tag_id, position) VALUES ($1, $2, $3)`
	insertTagIssue = `INSERT INTO tag_issues (tag_id, issue_id, position) VALUES ($1, $2, $3)`
)

// truncateOrder clears dependents before the tables they reference.
var truncateOrder = []string{"user_tags", "tag_issues", "users", "tags", "issues", "roles"}

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// applySchema executes each DDL statement in order.
func applySchema(ctx context.Context, db sqlExecer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}
