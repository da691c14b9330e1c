// Package publish drives note creation against the Mowen API: per-part
// retries, tighter re-splitting when the server still rejects a part as
// too long, the optional index note, and durable session progress.
//
// A part failing after its retry budget never aborts its siblings; the
// outcome reports partial success explicitly. Text is prioritized over
// everything else: whatever parts can be delivered, are.
package publish

import (
	"context"
	"log/slog"
	"time"

	"github.com/yult97/mowen-plugin-sub000/mowen"
	"github.com/yult97/mowen-plugin-sub000/notedoc"
	"github.com/yult97/mowen-plugin-sub000/session"
	"github.com/yult97/mowen-plugin-sub000/split"
)

// Client is the slice of the API client the orchestrator uses.
type Client interface {
	CreateNote(ctx context.Context, doc *notedoc.Node, opts mowen.CreateOptions) (string, error)
	EditNote(ctx context.Context, noteID string, doc *notedoc.Node) error
	SetVisibility(ctx context.Context, noteID string, public bool) error
}

// Config configures the orchestrator.
type Config struct {
	Client        Client
	Store         *session.Store // optional, nil disables progress persistence
	MaxRetries    int            // per part. Default: 3.
	RetryBackoff  time.Duration  // doubled each attempt. Default: 2s.
	ResplitRounds int            // tighter re-splits on content-too-long. Default: 2.
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.ResplitRounds <= 0 {
		c.ResplitRounds = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Orchestrator publishes converted documents as one or more notes.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{cfg: cfg}
}

// Request is one publish session.
type Request struct {
	Tab       string
	SessionID string
	Title     string
	Doc       *notedoc.Node
	Budget    int // visible-character budget, 0 uses split.DefaultBudget

	Public          bool
	AutoTag         bool
	Tags            []string
	CreateIndexNote bool

	// Image pipeline counters, recorded into the session row.
	ImagesTotal  int
	ImagesFailed int
}

// PartResult is the outcome of one part.
type PartResult struct {
	Index  int
	Title  string
	NoteID string
	Err    error
}

// Outcome is the partial-success-aware result of a publish session.
type Outcome struct {
	Parts       []PartResult
	IndexNoteID string
	IndexErr    error
}

// Succeeded counts parts that ended with a note ID.
func (o *Outcome) Succeeded() int {
	n := 0
	for _, p := range o.Parts {
		if p.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts parts that exhausted their retries.
func (o *Outcome) Failed() int { return len(o.Parts) - o.Succeeded() }

// Status maps the outcome onto a session status.
func (o *Outcome) Status() session.Status {
	switch {
	case o.Failed() == 0:
		return session.StatusDone
	case o.Succeeded() == 0:
		return session.StatusFailed
	default:
		return session.StatusPartial
	}
}

// Publish splits, publishes every part, and builds the index note when
// at least two parts succeeded and the request asks for one. The error
// return is reserved for cancellation; API failures live in the
// outcome.
func (o *Orchestrator) Publish(ctx context.Context, req Request) (*Outcome, error) {
	budget := req.Budget
	if budget <= 0 {
		budget = split.DefaultBudget
	}

	if o.cfg.Store != nil && req.Tab != "" {
		if err := o.cfg.Store.Begin(req.Tab, req.SessionID, req.Title); err != nil {
			o.cfg.Logger.Warn("session begin failed", "tab", req.Tab, "error", err)
		}
	}

	parts := split.Split(req.Title, req.Doc, budget)
	o.recordCounts(req, len(parts))

	out := &Outcome{}
	for _, part := range parts {
		if ctx.Err() != nil {
			o.finish(req, out, session.StatusCancelled, ctx.Err().Error())
			return out, ctx.Err()
		}
		results := o.publishDoc(ctx, req, part.Title, part.Content, budget, 0)
		for i := range results {
			results[i].Index = len(out.Parts) + 1
			out.Parts = append(out.Parts, results[i])
			o.recordPart(req, results[i])
		}
	}

	if req.CreateIndexNote && out.Succeeded() >= 2 {
		out.IndexNoteID, out.IndexErr = o.publishIndex(ctx, req, out)
		if out.IndexErr != nil {
			o.cfg.Logger.Warn("index note failed", "error", out.IndexErr)
		}
	}

	status := out.Status()
	errMsg := ""
	if status != session.StatusDone {
		errMsg = firstError(out)
	}
	o.finish(req, out, status, errMsg)
	return out, nil
}

// publishDoc publishes one document, re-splitting it tighter when the
// server rejects it as too long even after the client-side split.
func (o *Orchestrator) publishDoc(ctx context.Context, req Request, title string, doc *notedoc.Node, budget, round int) []PartResult {
	noteID, err := o.createWithRetry(ctx, req, doc)
	if err == nil {
		o.afterCreate(ctx, req, noteID, doc)
		return []PartResult{{Title: title, NoteID: noteID}}
	}

	if mowen.Kind(err) == mowen.ErrContentTooLong && round < o.cfg.ResplitRounds {
		tighter := budget * 8 / 10
		o.cfg.Logger.Info("server rejected length, re-splitting",
			"title", title, "budget", tighter, "round", round+1)
		var results []PartResult
		for _, sub := range split.Split(title, doc, tighter) {
			if ctx.Err() != nil {
				results = append(results, PartResult{Title: sub.Title, Err: ctx.Err()})
				continue
			}
			results = append(results, o.publishDoc(ctx, req, sub.Title, sub.Content, tighter, round+1)...)
		}
		return results
	}

	return []PartResult{{Title: title, Err: err}}
}

// createWithRetry attempts one note creation up to the retry ceiling,
// waiting an increasing delay between attempts. A note ID salvaged from
// an error payload counts as success.
func (o *Orchestrator) createWithRetry(ctx context.Context, req Request, doc *notedoc.Node) (string, error) {
	opts := mowen.CreateOptions{
		AutoPublish: true,
		AutoTag:     req.AutoTag,
		Tags:        req.Tags,
	}
	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return "", lastErr
			}
			return "", ctx.Err()
		}
		noteID, err := o.cfg.Client.CreateNote(ctx, doc, opts)
		if err == nil {
			return noteID, nil
		}
		if id := mowen.SalvagedNoteID(err); id != "" {
			o.cfg.Logger.Warn("create reported failure but note exists", "note_id", id, "error", err)
			return id, nil
		}
		lastErr = err
		if !retryable(mowen.Kind(err)) || attempt == o.cfg.MaxRetries {
			return "", lastErr
		}
		wait := o.cfg.RetryBackoff * (1 << uint(attempt))
		o.cfg.Logger.Warn("create failed, retrying",
			"attempt", attempt+1, "max_retries", o.cfg.MaxRetries,
			"backoff_ms", wait.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return "", lastErr
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

// afterCreate applies visibility and caches the published tree. Both
// are best-effort; the note already exists.
func (o *Orchestrator) afterCreate(ctx context.Context, req Request, noteID string, doc *notedoc.Node) {
	if req.Public {
		if err := o.cfg.Client.SetVisibility(ctx, noteID, true); err != nil {
			o.cfg.Logger.Warn("set visibility failed", "note_id", noteID, "error", err)
		}
	}
	if o.cfg.Store != nil {
		if err := o.cfg.Store.CacheNote(noteID, doc); err != nil {
			o.cfg.Logger.Warn("note cache write failed", "note_id", noteID, "error", err)
		}
	}
}

func retryable(kind mowen.ErrorKind) bool {
	switch kind {
	case mowen.ErrRateLimited, mowen.ErrServiceUnavailable, mowen.ErrTimeout, mowen.ErrUnknown:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) recordCounts(req Request, parts int) {
	if o.cfg.Store == nil || req.Tab == "" {
		return
	}
	if err := o.cfg.Store.SetCounts(req.Tab, parts, req.ImagesTotal, req.ImagesFailed); err != nil {
		o.cfg.Logger.Warn("session counts update failed", "tab", req.Tab, "error", err)
	}
}

func (o *Orchestrator) recordPart(req Request, res PartResult) {
	if o.cfg.Store == nil || req.Tab == "" {
		return
	}
	if err := o.cfg.Store.RecordPart(req.Tab, res.NoteID, res.Err != nil); err != nil {
		o.cfg.Logger.Warn("session part update failed", "tab", req.Tab, "error", err)
	}
}

func (o *Orchestrator) finish(req Request, out *Outcome, status session.Status, errMsg string) {
	if o.cfg.Store == nil || req.Tab == "" {
		return
	}
	if err := o.cfg.Store.Finish(req.Tab, status, errMsg); err != nil {
		o.cfg.Logger.Warn("session finish failed", "tab", req.Tab, "error", err)
	}
}

func firstError(out *Outcome) string {
	for _, p := range out.Parts {
		if p.Err != nil {
			return p.Err.Error()
		}
	}
	return ""
}
