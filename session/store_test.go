package session

import (
	"testing"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

func TestSessionLifecycle(t *testing.T) {
	// WHAT: Begin, progress updates and Finish round-trip through the
	// store with note IDs preserved in order.
	s := OpenMemory(t)

	if err := s.Begin("tab-1", "sess-a", "Article"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.SetCounts("tab-1", 2, 5, 1); err != nil {
		t.Fatalf("set counts: %v", err)
	}
	if err := s.RecordPart("tab-1", "n-1", false); err != nil {
		t.Fatalf("record part: %v", err)
	}
	if err := s.RecordPart("tab-1", "", true); err != nil {
		t.Fatalf("record failed part: %v", err)
	}
	if err := s.Finish("tab-1", StatusPartial, "1 part failed"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	sess, err := s.Get("tab-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess == nil {
		t.Fatal("session not found")
	}
	if sess.Status != StatusPartial || sess.PartsDone != 1 || sess.PartsFailed != 1 {
		t.Errorf("session: %+v", sess)
	}
	if len(sess.NoteIDs) != 1 || sess.NoteIDs[0] != "n-1" {
		t.Errorf("note ids: %v", sess.NoteIDs)
	}
	if sess.ImagesTotal != 5 || sess.ImagesFailed != 1 {
		t.Errorf("image counts: %+v", sess)
	}
}

func TestBeginReplacesPreviousSession(t *testing.T) {
	// WHAT: A new clip on the same tab resets the row instead of
	// accumulating onto the old session.
	s := OpenMemory(t)

	if err := s.Begin("tab-1", "sess-a", "First"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.RecordPart("tab-1", "n-old", false); err != nil {
		t.Fatalf("record part: %v", err)
	}
	if err := s.Begin("tab-1", "sess-b", "Second"); err != nil {
		t.Fatalf("second begin: %v", err)
	}

	sess, err := s.Get("tab-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.ID != "sess-b" || sess.Title != "Second" {
		t.Errorf("session: %+v", sess)
	}
	if sess.PartsDone != 0 || len(sess.NoteIDs) != 0 {
		t.Errorf("stale progress survived: %+v", sess)
	}
}

func TestGetUnknownTab(t *testing.T) {
	s := OpenMemory(t)
	sess, err := s.Get("nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess != nil {
		t.Errorf("got %+v", sess)
	}
}

func TestNoteCacheRoundTrip(t *testing.T) {
	// WHAT: The cached tree comes back structurally identical, marks and
	// all, so a highlight append can extend it.
	s := OpenMemory(t)

	doc := notedoc.NewDoc(
		notedoc.NewParagraph(notedoc.NewText("bold part", notedoc.BoldMark())),
		notedoc.NewQuote(notedoc.NewText("quoted")),
	)
	if err := s.CacheNote("n-1", doc); err != nil {
		t.Fatalf("cache: %v", err)
	}

	got, err := s.CachedNote("n-1")
	if err != nil {
		t.Fatalf("cached note: %v", err)
	}
	if got == nil {
		t.Fatal("cache miss")
	}
	if len(got.Content) != 2 || got.Content[1].Type != notedoc.TypeQuote {
		t.Errorf("tree: %+v", got)
	}
	if !got.Content[0].Content[0].HasMark(notedoc.MarkBold) {
		t.Error("bold mark lost")
	}

	// Overwrite replaces the tree.
	if err := s.CacheNote("n-1", notedoc.NewDoc(notedoc.NewParagraph())); err != nil {
		t.Fatalf("recache: %v", err)
	}
	got, err = s.CachedNote("n-1")
	if err != nil || len(got.Content) != 1 {
		t.Errorf("recache result: %+v (%v)", got, err)
	}

	if miss, err := s.CachedNote("absent"); err != nil || miss != nil {
		t.Errorf("miss: %+v (%v)", miss, err)
	}
}
