package mowen

import (
	"context"
	"fmt"

	"github.com/yult97/mowen-plugin-sub000/notedoc"
)

const (
	pathNoteCreate = "/api/open/api/v1/note/create"
	pathNoteEdit   = "/api/open/api/v1/note/edit"
	pathNoteSet    = "/api/open/api/v1/note/set"
	pathKeyInfo    = "/api/open/api/v1/auth/key"
)

// CreateOptions carries the per-note settings forwarded on creation.
type CreateOptions struct {
	AutoPublish bool     // publish immediately instead of saving a draft
	AutoTag     bool     // let the service tag the note
	Tags        []string // explicit tags, optional
}

type noteSettings struct {
	AutoPublish bool     `json:"autoPublish"`
	AutoTag     bool     `json:"autoTag,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type createNoteRequest struct {
	Body     *notedoc.Node `json:"body"`
	Settings noteSettings  `json:"settings"`
}

type noteIDResponse struct {
	NoteID string `json:"noteId"`
}

// CreateNote publishes a document tree as a new note and returns its ID.
func (c *Client) CreateNote(ctx context.Context, doc *notedoc.Node, opts CreateOptions) (string, error) {
	req := createNoteRequest{
		Body: doc,
		Settings: noteSettings{
			AutoPublish: opts.AutoPublish,
			AutoTag:     opts.AutoTag,
			Tags:        opts.Tags,
		},
	}
	var resp noteIDResponse
	if err := c.post(ctx, pathNoteCreate, req, &resp); err != nil {
		return "", err
	}
	if resp.NoteID == "" {
		return "", &APIError{Kind: ErrUnknown, Message: "create succeeded without a note id"}
	}
	return resp.NoteID, nil
}

type editNoteRequest struct {
	NoteID string        `json:"noteId"`
	Body   *notedoc.Node `json:"body"`
}

// EditNote replaces the full content of an existing note. The API has
// no patch operation; callers submit the whole tree every time.
func (c *Client) EditNote(ctx context.Context, noteID string, doc *notedoc.Node) error {
	return c.post(ctx, pathNoteEdit, editNoteRequest{NoteID: noteID, Body: doc}, nil)
}

type setVisibilityRequest struct {
	NoteID  string      `json:"noteId"`
	Privacy notePrivacy `json:"privacy"`
}

type notePrivacy struct {
	Type string `json:"type"` // "public" | "private"
}

// SetVisibility switches a note between public and private.
func (c *Client) SetVisibility(ctx context.Context, noteID string, public bool) error {
	privacy := notePrivacy{Type: "private"}
	if public {
		privacy.Type = "public"
	}
	return c.post(ctx, pathNoteSet, setVisibilityRequest{NoteID: noteID, Privacy: privacy}, nil)
}

// TestConnection verifies the API key by hitting the key-info endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.post(ctx, pathKeyInfo, struct{}{}, nil)
}

// NoteURL returns the public web address of a note.
func NoteURL(noteID string) string {
	return fmt.Sprintf("https://note.mowen.cn/note/%s", noteID)
}
