package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/sentryai/internal/models"
)

var (
	analysesBucket   = []byte("analyses")
	activeBucket     = []byte("active")
	workspacesBucket = []byte("workspaces")
)

// BoltStore implements Store on a single bbolt file. bbolt serializes write
// transactions, so the active check and the insert happen under one lock.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the bbolt file at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{analysesBucket, activeBucket, workspacesBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func activeKey(workspaceID, issueID string) []byte {
	return []byte(workspaceID + "\x00" + issueID)
}

func getRecord(b *bolt.Bucket, id string) (*models.AnalysisRecord, error) {
	v := b.Get([]byte(id))
	if v == nil {
		return nil, ErrNotFound
	}
	var rec models.AnalysisRecord
	if err := json.Unmarshal(v, &rec); err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", id, err)
	}
	return &rec, nil
}

func putRecord(b *bolt.Bucket, rec *models.AnalysisRecord) error {
	v, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode analysis %s: %w", rec.ID, err)
	}
	return b.Put([]byte(rec.ID), v)
}

// CreateAnalysis stores a new record and, when active, claims the issue slot
func (s *BoltStore) CreateAnalysis(_ context.Context, rec *models.AnalysisRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(analysesBucket)
		active := tx.Bucket(activeBucket)

		if records.Get([]byte(rec.ID)) != nil {
			return ErrConflict
		}
		if rec.Status.Active() {
			key := activeKey(rec.WorkspaceID, rec.IssueID)
			if active.Get(key) != nil {
				return ErrConflict
			}
			if err := active.Put(key, []byte(rec.ID)); err != nil {
				return err
			}
		}
		return putRecord(records, rec)
	})
}

// FindActive looks the issue up in the active index
func (s *BoltStore) FindActive(_ context.Context, workspaceID, issueID string) (*models.AnalysisRecord, error) {
	var rec *models.AnalysisRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(activeBucket).Get(activeKey(workspaceID, issueID))
		if id == nil {
			return ErrNotFound
		}
		var err error
		rec, err = getRecord(tx.Bucket(analysesBucket), string(id))
		return err
	})
	return rec, err
}

// UpdateAnalysis rewrites a non-terminal record and releases the issue slot
// once the record leaves the active states
func (s *BoltStore) UpdateAnalysis(_ context.Context, rec *models.AnalysisRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(analysesBucket)
		current, err := getRecord(records, rec.ID)
		if err != nil {
			return err
		}
		if current.Status.Terminal() {
			return ErrTerminal
		}

		next := rec.Clone()
		next.WorkspaceID = current.WorkspaceID
		next.IssueID = current.IssueID
		next.CreatedAt = current.CreatedAt
		if current.Issue != nil {
			next.Issue = current.Issue
		}

		if !next.Status.Active() {
			if err := tx.Bucket(activeBucket).Delete(activeKey(next.WorkspaceID, next.IssueID)); err != nil {
				return err
			}
		}
		return putRecord(records, next)
	})
}

// GetAnalysis fetches a record by id
func (s *BoltStore) GetAnalysis(_ context.Context, id string) (*models.AnalysisRecord, error) {
	var rec *models.AnalysisRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx.Bucket(analysesBucket), id)
		return err
	})
	return rec, err
}

// ListAnalyses scans every record; bolt has no secondary indexes and the
// record count per install is small
func (s *BoltStore) ListAnalyses(_ context.Context, workspaceID string, opts ListOptions) ([]*models.AnalysisRecord, error) {
	opts = opts.Normalize()

	var matched []*models.AnalysisRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(analysesBucket).ForEach(func(k, v []byte) error {
			var rec models.AnalysisRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode analysis %s: %w", k, err)
			}
			if rec.WorkspaceID != workspaceID {
				return nil
			}
			if opts.Status != "" && rec.Status != opts.Status {
				return nil
			}
			matched = append(matched, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if opts.Offset >= len(matched) {
		return []*models.AnalysisRecord{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[opts.Offset:end], nil
}

// SaveWorkspace inserts or replaces a workspace, keeping its original created_at
func (s *BoltStore) SaveWorkspace(_ context.Context, ws *models.Workspace) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(workspacesBucket)
		next := *ws
		if v := b.Get([]byte(ws.ID)); v != nil {
			var existing models.Workspace
			if err := json.Unmarshal(v, &existing); err == nil && !existing.CreatedAt.IsZero() {
				next.CreatedAt = existing.CreatedAt
			}
		}
		v, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode workspace %s: %w", ws.ID, err)
		}
		return b.Put([]byte(ws.ID), v)
	})
}

// GetWorkspace fetches a workspace by id
func (s *BoltStore) GetWorkspace(_ context.Context, id string) (*models.Workspace, error) {
	var ws models.Workspace
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(workspacesBucket).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &ws)
	})
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// Ping reports whether the file is still open
func (s *BoltStore) Ping(_ context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(analysesBucket) == nil {
			return bolt.ErrBucketNotFound
		}
		return nil
	})
}

// Close closes the bolt file
func (s *BoltStore) Close() error {
	return s.db.Close()
}
