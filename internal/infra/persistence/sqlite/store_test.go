package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"entitygraph/pkg/domain"
)

func seed(t *testing.T, store *Store) {
	t.Helper()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateRole(domain.Role{ID: 1, Name: "admin", Gender: domain.GenderFemale}); err != nil {
			return err
		}
		if _, err := tx.CreateTag(domain.Tag{ID: 2, Name: "billing"}); err != nil {
			return err
		}
		if _, err := tx.CreateIssue(domain.Issue{ID: 3, Name: "refund"}); err != nil {
			return err
		}
		if _, err := tx.CreateUser(domain.User{ID: 4, Name: "ann", Age: 30, Discount: 0.1, RoleID: 1}); err != nil {
			return err
		}
		if err := tx.LinkUserTag(4, 2); err != nil {
			return err
		}
		return tx.LinkTagIssue(2, 3)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	seed(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	err = reloaded.View(context.Background(), func(v domain.TransactionView) error {
		if got := len(v.ListUsers()); got != 1 {
			t.Fatalf("expected 1 user, got %d", got)
		}
		if ids := v.UserTagIDs(4); len(ids) != 1 || ids[0] != 2 {
			t.Fatalf("expected user tag link to survive reload, got %v", ids)
		}
		if ids := v.TagIssueIDs(2); len(ids) != 1 || ids[0] != 3 {
			t.Fatalf("expected tag issue link to survive reload, got %v", ids)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	seed(t, store)
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteRole(1)
	})
	if !errors.Is(err, domain.ErrReferentialIntegrity) {
		t.Fatalf("expected referential integrity error, got %v", err)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	snapshot := reloaded.ExportState()
	if len(snapshot.Roles) != 1 || snapshot.Roles[0].ID != 1 {
		t.Fatalf("expected role 1 to remain persisted, got %+v", snapshot.Roles)
	}
}

func TestSQLiteStoreWriteFailureLeavesGraphUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	seed(t, store)
	before := store.ExportState()
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateRole(domain.Role{ID: 7, Name: "ops", Gender: domain.GenderMale})
		return err
	})
	if err == nil {
		t.Fatalf("expected write failure on closed database")
	}
	err = store.View(context.Background(), func(v domain.TransactionView) error {
		if _, ok := v.FindRole(7); ok {
			t.Fatalf("role 7 visible after failed write")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if after := store.ExportState(); len(after.Roles) != len(before.Roles) {
		t.Fatalf("expected %d roles, got %+v", len(before.Roles), after.Roles)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if roles := reloaded.ExportState().Roles; len(roles) != 1 || roles[0].ID != 1 {
		t.Fatalf("database and memory diverged, reloaded roles %+v", roles)
	}
}

func TestSQLiteStoreStateTableHasAllBuckets(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	seed(t, store)
	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM state").Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != len(sqliteBuckets) {
		t.Fatalf("expected %d buckets, got %d", len(sqliteBuckets), count)
	}
}

func TestSQLiteStoreRejectsCorruptBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('users', ?)`, []byte(`[{"id":1,"name":"bob","age":20,"role_id":9}]`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, domain.NewRulesEngine()); !errors.Is(err, domain.ErrDanglingReference) {
		t.Fatalf("expected dangling reference on load, got %v", err)
	}
}

func TestSQLiteStoreDefaultPath(t *testing.T) {
	t.Chdir(t.TempDir())
	store, err := NewStore("", nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.Path() != defaultPath {
		t.Fatalf("expected default path, got %s", store.Path())
	}
}
