package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"entitygraph/internal/blob"
	"entitygraph/internal/infra/persistence/memory"
	"entitygraph/pkg/domain"
)

const (
	// BackupPrefix is the key prefix generated backups are written under.
	BackupPrefix        = "backups/"
	backupFormatVersion = 1
	backupContentType   = "application/json"
)

// ErrBackupUnsupported is returned when the store cannot export its state.
var ErrBackupUnsupported = errors.New("store does not support snapshot export")

// BackupDocument is the JSON document written to the blob store.
type BackupDocument struct {
	Version   int             `json:"version"`
	CreatedAt string          `json:"created_at"`
	Snapshot  memory.Snapshot `json:"snapshot"`
}

type snapshotExporter interface {
	ExportState() memory.Snapshot
}

// Backup writes the committed graph to blobs. An empty key derives one from
// the service clock under BackupPrefix.
func (s *Service) Backup(ctx context.Context, blobs blob.Store, key string) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "backup_snapshot", func(ctx context.Context) (int64, error) {
		exporter, ok := s.store.(snapshotExporter)
		if !ok {
			return 0, ErrBackupUnsupported
		}
		now := s.clock.Now().UTC()
		if key == "" {
			key = BackupPrefix + "entitygraph-" + now.Format("20060102T150405.000000000Z") + ".json"
		}
		snapshot := exporter.ExportState()
		doc := BackupDocument{Version: backupFormatVersion, CreatedAt: now.Format("2006-01-02T15:04:05.999999999Z07:00"), Snapshot: snapshot}
		data, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("encode backup: %w", err)
		}
		info, err = blobs.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
			ContentType: backupContentType,
			Metadata: map[string]string{
				"roles":  strconv.Itoa(len(snapshot.Roles)),
				"issues": strconv.Itoa(len(snapshot.Issues)),
				"tags":   strconv.Itoa(len(snapshot.Tags)),
				"users":  strconv.Itoa(len(snapshot.Users)),
			},
		})
		if err != nil {
			return 0, fmt.Errorf("store backup %s: %w", key, err)
		}
		return 0, nil
	})
	return info, err
}

// ListBackups returns the stored backups ordered by key, oldest first for
// generated keys.
func (s *Service) ListBackups(ctx context.Context, blobs blob.Store) ([]blob.Info, error) {
	var out []blob.Info
	err := s.run(ctx, "list_backups", func(ctx context.Context) (int64, error) {
		var err error
		out, err = blobs.List(ctx, BackupPrefix)
		return 0, err
	})
	return out, err
}

// Restore replaces the whole graph with the backup stored at key. The
// replacement runs as one transaction, so a snapshot with invalid records,
// duplicate ids or dangling references leaves the current graph untouched.
func (s *Service) Restore(ctx context.Context, blobs blob.Store, key string) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, "restore_snapshot", func(ctx context.Context) (int64, error) {
		doc, err := readBackup(ctx, blobs, key)
		if err != nil {
			return 0, err
		}
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return replaceGraph(tx, doc.Snapshot)
		})
		return 0, err
	})
	return res, err
}

func readBackup(ctx context.Context, blobs blob.Store, key string) (BackupDocument, error) {
	_, rc, err := blobs.Get(ctx, key)
	if err != nil {
		return BackupDocument{}, fmt.Errorf("open backup %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	var doc BackupDocument
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return BackupDocument{}, fmt.Errorf("decode backup %s: %w", key, err)
	}
	if doc.Version != backupFormatVersion {
		return BackupDocument{}, fmt.Errorf("backup %s: unsupported version %d", key, doc.Version)
	}
	return doc, nil
}

// replaceGraph clears the transactional state and rebuilds it from snapshot.
// Users go first so no role is referenced when roles are deleted.
func replaceGraph(tx domain.Transaction, snapshot memory.Snapshot) error {
	view := tx.Snapshot()
	for _, u := range view.ListUsers() {
		if err := tx.DeleteUser(u.ID); err != nil {
			return err
		}
	}
	for _, t := range view.ListTags() {
		if err := tx.DeleteTag(t.ID); err != nil {
			return err
		}
	}
	for _, i := range view.ListIssues() {
		if err := tx.DeleteIssue(i.ID); err != nil {
			return err
		}
	}
	for _, r := range view.ListRoles() {
		if err := tx.DeleteRole(r.ID); err != nil {
			return err
		}
	}
	for _, r := range snapshot.Roles {
		if err := requireSnapshotID(domain.EntityRole, r.ID); err != nil {
			return err
		}
		if _, err := tx.CreateRole(r); err != nil {
			return err
		}
	}
	for _, i := range snapshot.Issues {
		if err := requireSnapshotID(domain.EntityIssue, i.ID); err != nil {
			return err
		}
		if _, err := tx.CreateIssue(i); err != nil {
			return err
		}
	}
	for _, t := range snapshot.Tags {
		if err := requireSnapshotID(domain.EntityTag, t.ID); err != nil {
			return err
		}
		if _, err := tx.CreateTag(t); err != nil {
			return err
		}
	}
	for _, u := range snapshot.Users {
		if err := requireSnapshotID(domain.EntityUser, u.ID); err != nil {
			return err
		}
		if _, err := tx.CreateUser(u); err != nil {
			return err
		}
	}
	for _, l := range snapshot.UserTags {
		if err := tx.LinkUserTag(l.Left, l.Right); err != nil {
			return err
		}
	}
	for _, l := range snapshot.TagIssues {
		if err := tx.LinkTagIssue(l.Left, l.Right); err != nil {
			return err
		}
	}
	return nil
}

// requireSnapshotID rejects zero ids, which Create would otherwise auto-assign
// and so break the snapshot's links.
func requireSnapshotID(entity domain.EntityType, id int64) error {
	if id == 0 {
		return domain.ValidationError{Entity: entity, Field: "id", Reason: "must be positive"}
	}
	return nil
}
