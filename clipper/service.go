package clipper

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yult97/mowen-plugin-sub000/imagepipe"
	"github.com/yult97/mowen-plugin-sub000/markup"
	"github.com/yult97/mowen-plugin-sub000/mowen"
	"github.com/yult97/mowen-plugin-sub000/pacer"
	"github.com/yult97/mowen-plugin-sub000/publish"
	"github.com/yult97/mowen-plugin-sub000/session"
)

var (
	// ErrBusy means a clip is already running for the tab.
	ErrBusy = errors.New("clipper: clip already in flight for this tab")
	// ErrNoContent means the request carried nothing to convert.
	ErrNoContent = errors.New("clipper: empty clip content")
)

// Deps are the collaborators the service drives. Production wiring
// points everything at one API client; tests substitute fakes.
type Deps struct {
	Store     *session.Store
	Publisher publish.Client
	Assets    imagepipe.AssetStore
	Health    func(ctx context.Context) error
	Delegate  imagepipe.Delegate // optional page-context fetch
	Logger    *slog.Logger
}

// Service runs clip sessions.
type Service struct {
	cfg  Config
	deps Deps
	orch *publish.Orchestrator

	mu       sync.Mutex
	inflight map[string]context.CancelFunc // per-tab cancellation
}

// New creates a service from explicit dependencies.
func New(cfg Config, deps Deps) *Service {
	cfg.defaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		cfg:  cfg,
		deps: deps,
		orch: publish.New(publish.Config{
			Client: deps.Publisher,
			Store:  deps.Store,
			Logger: deps.Logger,
		}),
		inflight: make(map[string]context.CancelFunc),
	}
}

// NewWithAPI wires the production dependency set: one Mowen client
// behind one pacer serves publishing, uploads and the health check.
func NewWithAPI(cfg Config, store *session.Store, delegate imagepipe.Delegate, logger *slog.Logger) *Service {
	cfg.defaults()
	client := mowen.NewClient(mowen.Config{
		BaseURL: cfg.APIBaseURL,
		APIKey:  cfg.APIKey,
		Pacer:   pacer.New(cfg.MinInterval),
		Logger:  logger,
	})
	return New(cfg, Deps{
		Store:     store,
		Publisher: client,
		Assets:    &assetStore{client: client},
		Health:    client.TestConnection,
		Delegate:  delegate,
		Logger:    logger,
	})
}

// assetStore adapts the API client's upload protocol to the image
// pipeline's storage interface.
type assetStore struct {
	client *mowen.Client
}

func (s *assetStore) StoreBytes(ctx context.Context, filename string, data []byte, mimeType string) (*imagepipe.StoredAsset, error) {
	f, err := s.client.UploadBytes(ctx, filename, data, mimeType)
	if err != nil {
		return nil, err
	}
	return &imagepipe.StoredAsset{ID: f.FileID, URL: f.URL, UploadUID: f.UploadUID}, nil
}

func (s *assetStore) StoreByURL(ctx context.Context, rawURL string) (*imagepipe.StoredAsset, error) {
	f, err := s.client.UploadByURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return &imagepipe.StoredAsset{ID: f.FileID, URL: f.URL, UploadUID: f.UploadUID}, nil
}

// ClipRequest is the inbound clip payload.
type ClipRequest struct {
	Tab    string                `json:"tabId"`
	Title  string                `json:"title"`
	URL    string                `json:"url"`
	HTML   string                `json:"html"`
	Images []imagepipe.Candidate `json:"images"`

	// Per-request overrides of the configured defaults.
	IncludeImages *bool    `json:"includeImages,omitempty"`
	Public        *bool    `json:"public,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// Clip starts one clip session for a tab and returns its session ID.
// The session runs in the background; progress is polled through the
// session store. A second clip on the same tab while one is running is
// rejected.
func (s *Service) Clip(req ClipRequest) (string, error) {
	if req.Tab == "" || strings.TrimSpace(req.HTML) == "" {
		return "", ErrNoContent
	}

	s.mu.Lock()
	if _, busy := s.inflight[req.Tab]; busy {
		s.mu.Unlock()
		return "", ErrBusy
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.inflight[req.Tab] = cancel
	s.mu.Unlock()

	sessionID := uuid.NewString()
	if s.deps.Store != nil {
		if err := s.deps.Store.Begin(req.Tab, sessionID, clipTitle(req)); err != nil {
			s.release(req.Tab)
			return "", err
		}
	}

	go func() {
		defer s.release(req.Tab)
		s.run(ctx, sessionID, req)
	}()
	return sessionID, nil
}

// Cancel stops the in-flight clip for a tab, if any.
func (s *Service) Cancel(tab string) bool {
	s.mu.Lock()
	cancel, ok := s.inflight[tab]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Session returns the stored progress for a tab. nil when unknown.
func (s *Service) Session(tab string) (*session.Session, error) {
	if s.deps.Store == nil {
		return nil, nil
	}
	return s.deps.Store.Get(tab)
}

// Health checks connectivity to the publish API.
func (s *Service) Health(ctx context.Context) error {
	if s.deps.Health == nil {
		return nil
	}
	return s.deps.Health(ctx)
}

func (s *Service) release(tab string) {
	s.mu.Lock()
	if cancel, ok := s.inflight[tab]; ok {
		cancel()
		delete(s.inflight, tab)
	}
	s.mu.Unlock()
}

// run is the body of one clip session: images first, then conversion,
// then publish. It only ever reports through the session store.
func (s *Service) run(ctx context.Context, sessionID string, req ClipRequest) {
	log := s.deps.Logger.With("tab", req.Tab, "session", sessionID)

	cands := s.selectCandidates(req)
	var results []imagepipe.Result
	if len(cands) > 0 {
		proc := &imagepipe.Processor{
			Acquirer: &imagepipe.Acquirer{
				Direct:   imagepipe.NewFetcher(imagepipe.FetchConfig{}),
				Delegate: s.deps.Delegate,
			},
			Store:  s.deps.Assets,
			Logger: log,
		}
		results = proc.Process(ctx, cands)
	}

	doc := markup.ToDoc(req.HTML, markup.Options{
		Images: imageResolver(cands, results),
		Logger: log,
	})

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}

	public := s.cfg.DefaultPublic
	if req.Public != nil {
		public = *req.Public
	}

	out, err := s.orch.Publish(ctx, publish.Request{
		Tab:             req.Tab,
		SessionID:       sessionID,
		Title:           clipTitle(req),
		Doc:             doc,
		Budget:          s.cfg.SplitBudget,
		Public:          public,
		AutoTag:         s.cfg.EnableAutoTag,
		Tags:            req.Tags,
		CreateIndexNote: s.cfg.CreateIndexNote,
		ImagesTotal:     len(cands),
		ImagesFailed:    failed,
	})
	if err != nil {
		log.Info("clip cancelled", "error", err)
		return
	}
	log.Info("clip finished",
		"parts_ok", out.Succeeded(), "parts_failed", out.Failed(),
		"images", len(cands), "images_failed", failed,
		"index_note", out.IndexNoteID)
}

// selectCandidates applies the image settings: main-content images
// first in reading order, capped at the configured maximum.
func (s *Service) selectCandidates(req ClipRequest) []imagepipe.Candidate {
	include := s.cfg.DefaultIncludeImages
	if req.IncludeImages != nil {
		include = *req.IncludeImages
	}
	if !include || len(req.Images) == 0 {
		return nil
	}
	cands := make([]imagepipe.Candidate, len(req.Images))
	copy(cands, req.Images)
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].InMainContent != cands[j].InMainContent {
			return cands[i].InMainContent
		}
		return cands[i].Order < cands[j].Order
	})
	if len(cands) > s.cfg.MaxImages {
		cands = cands[:s.cfg.MaxImages]
	}
	return cands
}

// imageResolver ties markup image sources back to upload results:
// stored assets become image nodes, known failures degrade to links,
// unknown sources are dropped.
func imageResolver(cands []imagepipe.Candidate, results []imagepipe.Result) markup.ImageResolver {
	if len(cands) == 0 {
		return nil
	}
	matcher := imagepipe.NewMatcher(cands)
	byID := make(map[string]imagepipe.Result, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}
	captions := make(map[string]string, len(cands))
	for _, c := range cands {
		captions[c.ID] = c.Caption
	}
	return func(src string) (markup.Resolution, bool) {
		id, ok := matcher.Resolve(src)
		if !ok {
			return markup.Resolution{}, false
		}
		r, ok := byID[id]
		if !ok {
			return markup.Resolution{}, false
		}
		if r.Success {
			assetID := r.AssetID
			if assetID == "" {
				assetID = r.UploadUID
			}
			return markup.Resolution{UUID: assetID, Alt: captions[id]}, true
		}
		if r.OriginalURL != "" {
			return markup.Resolution{LinkURL: r.OriginalURL}, true
		}
		return markup.Resolution{}, false
	}
}

// HighlightRequest is the inbound highlight payload. An empty NoteID
// creates a fresh note; otherwise the fragment is appended to the
// cached tree of the given note.
type HighlightRequest struct {
	Tab    string `json:"tabId"`
	NoteID string `json:"noteId,omitempty"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	HTML   string `json:"html"`
}

// Highlight converts a selection fragment and either appends it to an
// existing note or publishes it as a new one. Runs synchronously; a
// highlight is a single paced API call.
func (s *Service) Highlight(ctx context.Context, req HighlightRequest) (string, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return "", ErrNoContent
	}
	fragment := markup.ToDoc(req.HTML, markup.Options{Logger: s.deps.Logger})

	if req.NoteID != "" {
		if err := s.orch.AppendHighlight(ctx, req.NoteID, fragment); err != nil {
			return "", err
		}
		return req.NoteID, nil
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.URL
	}
	out, err := s.orch.Publish(ctx, publish.Request{
		Tab:       req.Tab,
		SessionID: uuid.NewString(),
		Title:     title,
		Doc:       fragment,
		Budget:    s.cfg.SplitBudget,
		Public:    s.cfg.DefaultPublic,
		AutoTag:   s.cfg.EnableAutoTag,
	})
	if err != nil {
		return "", err
	}
	for _, p := range out.Parts {
		if p.Err == nil {
			return p.NoteID, nil
		}
		return "", p.Err
	}
	return "", ErrNoContent
}

func clipTitle(req ClipRequest) string {
	if t := strings.TrimSpace(req.Title); t != "" {
		return t
	}
	return req.URL
}
