package imagepipe

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"sync/atomic"
	"time"
)

// StoredAsset identifies an image persisted by the note service.
type StoredAsset struct {
	ID        string
	URL       string
	UploadUID string
}

// AssetStore persists acquired image bytes (or a remote URL the service
// fetches itself) as a stored asset. Implemented by the publish API
// client; every call is expected to be paced by the implementation.
type AssetStore interface {
	StoreBytes(ctx context.Context, filename string, data []byte, mimeType string) (*StoredAsset, error)
	StoreByURL(ctx context.Context, rawURL string) (*StoredAsset, error)
}

// Processor drives acquisition and storage for a batch of candidates.
// Acquisition is prefetched by a small worker pool; storage stays
// strictly serial so the pacer's spacing hides the fetch latency.
type Processor struct {
	Acquirer       *Acquirer
	Store          AssetStore
	MaxUploadBytes int64         // reject larger bodies without attempting upload. Default: 20MB.
	UploadTimeout  time.Duration // per stored asset. Default: 30s.
	Workers        int           // prefetch concurrency. Default: 3.
	Logger         *slog.Logger
}

func (p *Processor) defaults() {
	if p.MaxUploadBytes <= 0 {
		p.MaxUploadBytes = 20 * 1024 * 1024
	}
	if p.UploadTimeout <= 0 {
		p.UploadTimeout = 30 * time.Second
	}
	if p.Workers <= 0 {
		p.Workers = 3
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
}

type slot struct {
	img *Fetched
	err error
}

// Process resolves every candidate to a Result, in input order. It
// never fails as a whole: cancellation marks the remaining candidates
// as timed out and returns what it has.
func (p *Processor) Process(ctx context.Context, cands []Candidate) []Result {
	p.defaults()
	results := make([]Result, len(cands))
	if len(cands) == 0 {
		return results
	}

	slots := make([]slot, len(cands))
	done := make([]chan struct{}, len(cands))
	for i := range done {
		done[i] = make(chan struct{})
	}

	// Prefetch workers pull from one shared cursor.
	var cursor atomic.Int64
	for w := 0; w < p.Workers; w++ {
		go func() {
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(cands) {
					return
				}
				if ctx.Err() != nil {
					slots[i].err = ctx.Err()
				} else {
					slots[i].img, slots[i].err = p.Acquirer.Acquire(ctx, cands[i])
				}
				close(done[i])
			}
		}()
	}

	// Serial store stage, in candidate order. Cancellation between
	// uploads stops scheduling further work.
	for i, cand := range cands {
		select {
		case <-done[i]:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			for j := i; j < len(cands); j++ {
				results[j] = failedResult(cands[j], FailureTimeoutOrNet)
			}
			return results
		}
		results[i] = p.store(ctx, cand, slots[i])
		if ctx.Err() != nil {
			for j := i + 1; j < len(cands); j++ {
				results[j] = failedResult(cands[j], FailureTimeoutOrNet)
			}
			return results
		}
	}
	return results
}

func (p *Processor) store(ctx context.Context, cand Candidate, s slot) Result {
	log := p.Logger.With("image_id", cand.ID, "url", cand.BestURL())

	if s.err == nil && int64(len(s.img.Data)) > p.MaxUploadBytes {
		s.err = failf(FailureUnknown, "image %s: %d bytes over upload cap", cand.ID, len(s.img.Data))
		s.img = nil
	}

	if s.err == nil {
		uploadCtx, cancel := context.WithTimeout(ctx, p.UploadTimeout)
		asset, err := p.Store.StoreBytes(uploadCtx, filenameFor(cand, s.img.MimeType), s.img.Data, s.img.MimeType)
		cancel()
		if err == nil {
			return successResult(cand, asset)
		}
		s.err = err
		log.Warn("image upload failed, trying url path", "error", err)
	}

	// Acquisition (or byte upload) failed: let the service fetch the
	// URL itself before degrading to a link.
	uploadCtx, cancel := context.WithTimeout(ctx, p.UploadTimeout)
	asset, err := p.Store.StoreByURL(uploadCtx, cand.BestURL())
	cancel()
	if err == nil {
		return successResult(cand, asset)
	}

	reason := Classify(s.err)
	log.Warn("image degraded to link", "reason", reason, "error", s.err)
	return failedResult(cand, reason)
}

func successResult(cand Candidate, asset *StoredAsset) Result {
	return Result{
		ID:          cand.ID,
		OriginalURL: cand.SourceURL,
		Success:     true,
		AssetURL:    asset.URL,
		AssetID:     asset.ID,
		UploadUID:   asset.UploadUID,
	}
}

func failedResult(cand Candidate, reason FailureReason) Result {
	return Result{ID: cand.ID, OriginalURL: cand.SourceURL, FailureReason: reason}
}

// filenameFor derives an upload filename from the candidate URL, adding
// an extension from the mime type when the path has none.
func filenameFor(cand Candidate, mimeType string) string {
	name := ""
	if u, err := url.Parse(cand.BestURL()); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = fmt.Sprintf("image-%s", cand.ID)
	}
	if path.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			name += exts[0]
		} else {
			name += ".jpg"
		}
	}
	return name
}
