package imagepipe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu       sync.Mutex
	inflight int
	maxSeen  int
	stored   []string
	failURL  bool
}

func (s *fakeStore) StoreBytes(_ context.Context, filename string, _ []byte, _ string) (*StoredAsset, error) {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.maxSeen {
		s.maxSeen = s.inflight
	}
	s.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	s.inflight--
	s.stored = append(s.stored, filename)
	s.mu.Unlock()
	return &StoredAsset{ID: "asset-" + filename, URL: "https://cdn/" + filename}, nil
}

func (s *fakeStore) StoreByURL(_ context.Context, rawURL string) (*StoredAsset, error) {
	if s.failURL {
		return nil, failf(FailureUnknown, "url upload refused")
	}
	return &StoredAsset{ID: "byurl", URL: rawURL}, nil
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpegdata"))
	}))
}

func TestProcessOrderAndSerialUploads(t *testing.T) {
	// WHAT: Prefetch may overlap but uploads never do, and results come
	// back in candidate order.
	// WHY: The store stage must stay strictly serial behind the pacer.
	srv := imageServer(t)
	defer srv.Close()

	store := &fakeStore{}
	p := &Processor{
		Acquirer: &Acquirer{Direct: NewFetcher(FetchConfig{})},
		Store:    store,
		Workers:  3,
	}
	cands := make([]Candidate, 6)
	for i := range cands {
		cands[i] = Candidate{
			ID:        string(rune('a' + i)),
			SourceURL: srv.URL + "/img-" + string(rune('a'+i)) + ".jpg",
		}
	}
	results := p.Process(context.Background(), cands)
	if len(results) != len(cands) {
		t.Fatalf("results: got %d", len(results))
	}
	for i, r := range results {
		if !r.Success {
			t.Errorf("result %d failed: %+v", i, r)
		}
		if r.ID != cands[i].ID {
			t.Errorf("result %d out of order: %s", i, r.ID)
		}
	}
	if store.maxSeen > 1 {
		t.Errorf("uploads overlapped: %d in flight", store.maxSeen)
	}
}

func TestProcessDegradesFailedImage(t *testing.T) {
	// WHAT: A candidate whose acquisition and all fetch strategies fail
	// yields success=false with a classified reason; other candidates
	// still succeed.
	good := imageServer(t)
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
	}))
	defer bad.Close()

	store := &fakeStore{failURL: true}
	p := &Processor{
		Acquirer: &Acquirer{
			Direct: NewFetcher(FetchConfig{}),
			Delegate: DelegateFunc(func(context.Context, string) (*Fetched, error) {
				return nil, failf(FailureCORSOrBlocked, "blocked in page too")
			}),
		},
		Store: store,
	}
	results := p.Process(context.Background(), []Candidate{
		{ID: "ok", SourceURL: good.URL + "/fine.jpg"},
		{ID: "broken", SourceURL: bad.URL + "/nope.jpg"},
	})
	if !results[0].Success {
		t.Errorf("good image failed: %+v", results[0])
	}
	if results[1].Success {
		t.Fatalf("bad image succeeded: %+v", results[1])
	}
	switch results[1].FailureReason {
	case FailureCORSOrBlocked, FailureTimeoutOrNet, FailureAuthOrHotlink:
	default:
		t.Errorf("reason: %s", results[1].FailureReason)
	}
}

func TestProcessCancellation(t *testing.T) {
	// WHAT: Cancelling mid-batch marks the remaining candidates failed
	// without scheduling further work.
	srv := imageServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &Processor{
		Acquirer: &Acquirer{Direct: NewFetcher(FetchConfig{})},
		Store:    &fakeStore{},
	}
	results := p.Process(ctx, []Candidate{
		{ID: "1", SourceURL: srv.URL}, {ID: "2", SourceURL: srv.URL},
	})
	for _, r := range results {
		if r.Success {
			t.Errorf("cancelled run produced success: %+v", r)
		}
	}
}

func TestMatcherPrecedence(t *testing.T) {
	// WHAT: Sources resolve by decreasing specificity, exact first.
	cands := []Candidate{
		{ID: "one", SourceURL: "https://cdn.example.com/a1b2c3d4e5f60718/photo.jpg?x=1"},
		{ID: "two", SourceURL: "https://img.example.com/other/photo2.png"},
	}
	m := NewMatcher(cands)

	if id, ok := m.Resolve("https://cdn.example.com/a1b2c3d4e5f60718/photo.jpg?x=1"); !ok || id != "one" {
		t.Errorf("exact: %s %v", id, ok)
	}
	if id, ok := m.Resolve("https://cdn.example.com/a1b2c3d4e5f60718/photo.jpg?other=2"); !ok || id != "one" {
		t.Errorf("no-query: %s %v", id, ok)
	}
	if id, ok := m.Resolve("https://mirror.example.net/x/a1b2c3d4e5f60718/p.jpg"); !ok || id != "one" {
		t.Errorf("tail identifier: %s %v", id, ok)
	}
	if id, ok := m.Resolve("https://elsewhere.com/z/photo2.png"); !ok || id != "two" {
		t.Errorf("filename: %s %v", id, ok)
	}
	if _, ok := m.Resolve("https://unrelated.com/nothing.gif"); ok {
		t.Error("unrelated source must not match")
	}
}
