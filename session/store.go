package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

// Status is the lifecycle state of a clip session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusPartial   Status = "partial" // some parts published, some failed
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Session is one clip session row, keyed by the initiating tab.
type Session struct {
	Tab          string   `json:"tab"`
	ID           string   `json:"id"`
	Status       Status   `json:"status"`
	Title        string   `json:"title,omitempty"`
	PartsTotal   int      `json:"parts_total"`
	PartsDone    int      `json:"parts_done"`
	PartsFailed  int      `json:"parts_failed"`
	ImagesTotal  int      `json:"images_total"`
	ImagesFailed int      `json:"images_failed"`
	NoteIDs      []string `json:"note_ids"`
	Error        string   `json:"error,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// Store wraps the SQLite database holding session progress.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and runs the schema.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// Begin records a fresh running session for tab, replacing any earlier
// session for the same tab.
func (s *Store) Begin(tab, id, title string) error {
	ts := now()
	_, err := s.db.Exec(`
INSERT INTO clip_sessions (tab, id, status, title, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(tab) DO UPDATE SET
    id = excluded.id, status = excluded.status, title = excluded.title,
    parts_total = 0, parts_done = 0, parts_failed = 0,
    images_total = 0, images_failed = 0,
    note_ids = '[]', error = '', created_at = excluded.created_at,
    updated_at = excluded.updated_at`,
		tab, id, StatusRunning, title, ts, ts)
	if err != nil {
		return fmt.Errorf("session: begin %s: %w", tab, err)
	}
	return nil
}

// SetCounts records the planned part count and image totals once they
// are known.
func (s *Store) SetCounts(tab string, partsTotal, imagesTotal, imagesFailed int) error {
	_, err := s.db.Exec(`
UPDATE clip_sessions SET parts_total = ?, images_total = ?, images_failed = ?, updated_at = ?
WHERE tab = ?`,
		partsTotal, imagesTotal, imagesFailed, now(), tab)
	if err != nil {
		return fmt.Errorf("session: set counts %s: %w", tab, err)
	}
	return nil
}

// RecordPart records the outcome of one published part. noteID is empty
// when the part failed.
func (s *Store) RecordPart(tab, noteID string, failed bool) error {
	sess, err := s.Get(tab)
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session: record part: no session for tab %s", tab)
	}
	if failed {
		sess.PartsFailed++
	} else {
		sess.PartsDone++
		if noteID != "" {
			sess.NoteIDs = append(sess.NoteIDs, noteID)
		}
	}
	ids, err := json.Marshal(sess.NoteIDs)
	if err != nil {
		return fmt.Errorf("session: marshal note ids: %w", err)
	}
	_, err = s.db.Exec(`
UPDATE clip_sessions SET parts_done = ?, parts_failed = ?, note_ids = ?, updated_at = ?
WHERE tab = ?`,
		sess.PartsDone, sess.PartsFailed, string(ids), now(), tab)
	if err != nil {
		return fmt.Errorf("session: record part %s: %w", tab, err)
	}
	return nil
}

// Finish closes a session with its final status. errMsg may be empty.
func (s *Store) Finish(tab string, status Status, errMsg string) error {
	_, err := s.db.Exec(`
UPDATE clip_sessions SET status = ?, error = ?, updated_at = ? WHERE tab = ?`,
		status, errMsg, now(), tab)
	if err != nil {
		return fmt.Errorf("session: finish %s: %w", tab, err)
	}
	return nil
}

// Get returns the session for tab. Returns nil, nil if not found.
func (s *Store) Get(tab string) (*Session, error) {
	sess := &Session{}
	var ids string
	err := s.db.QueryRow(`
SELECT tab, id, status, title, parts_total, parts_done, parts_failed,
       images_total, images_failed, note_ids, error, created_at, updated_at
FROM clip_sessions WHERE tab = ?`, tab).Scan(
		&sess.Tab, &sess.ID, &sess.Status, &sess.Title,
		&sess.PartsTotal, &sess.PartsDone, &sess.PartsFailed,
		&sess.ImagesTotal, &sess.ImagesFailed,
		&ids, &sess.Error, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", tab, err)
	}
	if err := json.Unmarshal([]byte(ids), &sess.NoteIDs); err != nil {
		sess.NoteIDs = nil
	}
	return sess, nil
}

// CacheNote stores the full document tree last published to a note, so
// a later highlight append can rebuild the note without refetching.
func (s *Store) CacheNote(noteID string, doc *notedoc.Node) error {
	tree, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("session: marshal note tree: %w", err)
	}
	_, err = s.db.Exec(`
INSERT INTO note_cache (note_id, tree, updated_at) VALUES (?, ?, ?)
ON CONFLICT(note_id) DO UPDATE SET tree = excluded.tree, updated_at = excluded.updated_at`,
		noteID, string(tree), now())
	if err != nil {
		return fmt.Errorf("session: cache note %s: %w", noteID, err)
	}
	return nil
}

// CachedNote returns the cached tree for a note. Returns nil, nil if
// the note was never cached.
func (s *Store) CachedNote(noteID string) (*notedoc.Node, error) {
	var tree string
	err := s.db.QueryRow(`SELECT tree FROM note_cache WHERE note_id = ?`, noteID).Scan(&tree)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: cached note %s: %w", noteID, err)
	}
	doc := &notedoc.Node{}
	if err := json.Unmarshal([]byte(tree), doc); err != nil {
		return nil, fmt.Errorf("session: decode cached note %s: %w", noteID, err)
	}
	return doc, nil
}
