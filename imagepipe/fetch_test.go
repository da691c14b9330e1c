package imagepipe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	// WHAT: A direct fetch returns bytes and the content type.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "" {
			t.Error("request must carry no referrer")
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes"))
	}))
	defer srv.Close()

	f := NewFetcher(FetchConfig{})
	img, err := f.Fetch(context.Background(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(img.Data) != "pngbytes" || img.MimeType != "image/png" {
		t.Errorf("got %q %q", img.Data, img.MimeType)
	}
}

func TestFetchClassification(t *testing.T) {
	// WHAT: HTTP failures map to the closed failure-reason set.
	// WHY: Callers branch on the reason when degrading to a link.
	cases := []struct {
		status int
		want   FailureReason
	}{
		{403, FailureAuthOrHotlink},
		{401, FailureAuthOrHotlink},
		{404, FailureNotFound},
		{410, FailureNotFound},
		{504, FailureTimeoutOrNet},
		{500, FailureUnknown},
	}
	for _, tc := range cases {
		status := tc.status
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		f := NewFetcher(FetchConfig{})
		_, err := f.Fetch(context.Background(), srv.URL)
		srv.Close()
		if err == nil {
			t.Fatalf("status %d: want error", status)
		}
		if got := Classify(err); got != tc.want {
			t.Errorf("status %d: got %s, want %s", status, got, tc.want)
		}
	}
}

func TestFetchInvalidURL(t *testing.T) {
	f := NewFetcher(FetchConfig{})
	_, err := f.Fetch(context.Background(), "ftp://nope/img")
	if Classify(err) != FailureInvalidURL {
		t.Errorf("got %v", err)
	}
}

func TestAcquireLadder(t *testing.T) {
	// WHAT: When the direct fetch fails, acquisition falls back to the
	// delegated page-context fetch, normalized URL before original.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
	}))
	defer srv.Close()

	var tried []string
	delegate := DelegateFunc(func(_ context.Context, url string) (*Fetched, error) {
		tried = append(tried, url)
		if len(tried) == 1 {
			return nil, failf(FailureCORSOrBlocked, "first attempt blocked")
		}
		return &Fetched{Data: []byte("ok"), MimeType: "image/jpeg"}, nil
	})

	a := &Acquirer{
		Direct:   NewFetcher(FetchConfig{}),
		Delegate: delegate,
		Timeout:  time.Second,
	}
	cand := Candidate{ID: "c1", SourceURL: srv.URL + "/orig.jpg", NormalizedURL: srv.URL + "/hq.jpg"}
	img, err := a.Acquire(context.Background(), cand)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if string(img.Data) != "ok" {
		t.Errorf("body: %q", img.Data)
	}
	if len(tried) != 2 || tried[0] != cand.NormalizedURL || tried[1] != cand.SourceURL {
		t.Errorf("delegate order: %v", tried)
	}
}

func TestAcquireAllStrategiesFail(t *testing.T) {
	// WHAT: Exhausting every strategy yields a classified error, never
	// a panic or an unclassified failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
	}))
	defer srv.Close()

	a := &Acquirer{
		Direct: NewFetcher(FetchConfig{}),
		Delegate: DelegateFunc(func(context.Context, string) (*Fetched, error) {
			return nil, failf(FailureCORSOrBlocked, "blocked")
		}),
	}
	_, err := a.Acquire(context.Background(), Candidate{ID: "c", SourceURL: srv.URL})
	if err == nil {
		t.Fatal("want error")
	}
	switch Classify(err) {
	case FailureCORSOrBlocked, FailureTimeoutOrNet, FailureAuthOrHotlink:
	default:
		t.Errorf("unexpected reason: %s (%v)", Classify(err), err)
	}
}
