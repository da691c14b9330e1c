// Package imagepipe acquires and stores the images referenced by a
// clipped page.
//
// Acquisition tries a ladder of strategies (direct no-referrer fetch,
// then delegated fetches in the page's own execution context) and runs
// with bounded concurrency; storage is strictly serial behind the
// publish-API pacer. Every candidate always resolves to a Result —
// failures are classified, never fatal, so note creation can proceed
// with a failed image degraded to a plain link.
package imagepipe

import (
	"context"
	"errors"
	"fmt"
)

// Candidate is one image discovered by the upstream extraction step.
// Read-only input to this pipeline.
type Candidate struct {
	ID            string `json:"id"`
	SourceURL     string `json:"sourceUrl"`
	NormalizedURL string `json:"normalizedUrl"` // highest-quality variant
	Kind          string `json:"kind"`
	Order         int    `json:"order"`
	InMainContent bool   `json:"inMainContent"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	Caption       string `json:"caption,omitempty"`
}

// BestURL returns the preferred fetch target.
func (c Candidate) BestURL() string {
	if c.NormalizedURL != "" {
		return c.NormalizedURL
	}
	return c.SourceURL
}

// FailureReason is the closed classification of image failures.
type FailureReason string

const (
	FailureAuthOrHotlink FailureReason = "AUTH_OR_HOTLINK"
	FailureNotFound      FailureReason = "NOT_FOUND"
	FailureTimeoutOrNet  FailureReason = "TIMEOUT_OR_NET"
	FailureCORSOrBlocked FailureReason = "CORS_OR_BLOCKED"
	FailureInvalidURL    FailureReason = "INVALID_URL"
	FailureUnknown       FailureReason = "UNKNOWN"
)

// Result is the per-candidate outcome of acquisition plus storage.
type Result struct {
	ID            string        `json:"id"`
	OriginalURL   string        `json:"originalUrl"`
	Success       bool          `json:"success"`
	AssetURL      string        `json:"assetUrl,omitempty"`
	AssetID       string        `json:"assetId,omitempty"`
	UploadUID     string        `json:"uploadUid,omitempty"`
	FailureReason FailureReason `json:"failureReason,omitempty"`
}

// Fetched is an acquired image body.
type Fetched struct {
	Data     []byte
	MimeType string
}

// fetchError carries a classified reason through the strategy ladder.
type fetchError struct {
	reason FailureReason
	err    error
}

func (e *fetchError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.reason, e.err)
	}
	return string(e.reason)
}

func (e *fetchError) Unwrap() error { return e.err }

func failf(reason FailureReason, format string, args ...any) error {
	return &fetchError{reason: reason, err: fmt.Errorf(format, args...)}
}

// Classify maps any error from the pipeline to a failure reason.
func Classify(err error) FailureReason {
	var fe *fetchError
	if errors.As(err, &fe) {
		return fe.reason
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeoutOrNet
	}
	return FailureUnknown
}
