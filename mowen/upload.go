package mowen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const (
	pathUploadPrepare = "/api/open/api/v1/upload/prepare"
	pathUploadURL     = "/api/open/api/v1/upload/url"

	fileTypeImage = 1

	// MaxUploadBytes is the documented per-file size limit. Oversized
	// bodies are rejected client-side without an attempt.
	MaxUploadBytes = 20 * 1024 * 1024
)

// UploadedFile is a stored asset as reported by the upload endpoints.
type UploadedFile struct {
	FileID    string `json:"fileId"`
	URL       string `json:"url"`
	UploadUID string `json:"uploadUid"`
}

// uploadAuth is the signed delivery authorization returned by the
// prepare endpoint: where to POST the bytes and the form fields that
// must accompany them.
type uploadAuth struct {
	Endpoint string            `json:"endpoint"`
	Form     map[string]string `json:"form"`
}

type uploadPrepareRequest struct {
	FileType int    `json:"fileType"`
	FileName string `json:"fileName"`
}

// UploadBytes stores image bytes as an asset using the two-phase
// protocol: authorize through the API (paced), then deliver the bytes
// as a multipart body to the signed endpoint.
func (c *Client) UploadBytes(ctx context.Context, filename string, data []byte, mimeType string) (*UploadedFile, error) {
	if int64(len(data)) > MaxUploadBytes {
		return nil, &APIError{
			Kind:    ErrContentTooLong,
			Message: fmt.Sprintf("file %s is %d bytes, over the %d limit", filename, len(data), MaxUploadBytes),
		}
	}

	var auth uploadAuth
	if err := c.post(ctx, pathUploadPrepare, uploadPrepareRequest{FileType: fileTypeImage, FileName: filename}, &auth); err != nil {
		return nil, err
	}
	if auth.Endpoint == "" {
		return nil, &APIError{Kind: ErrUnknown, Message: "upload authorization without a delivery endpoint"}
	}

	return c.deliver(ctx, auth, filename, data, mimeType)
}

// deliver POSTs the multipart body to the signed endpoint. The endpoint
// belongs to the storage tier, not the API, so the call is not paced.
func (c *Client) deliver(ctx context.Context, auth uploadAuth, filename string, data []byte, mimeType string) (*UploadedFile, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range auth.Form {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("mowen: write form field %s: %w", k, err)
		}
	}
	part, err := w.CreatePart(fileHeader(filename, mimeType))
	if err != nil {
		return nil, fmt.Errorf("mowen: create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("mowen: write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("mowen: finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, auth.Endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("mowen: build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &APIError{Kind: ErrTimeout, Message: err.Error()}
		}
		return nil, &APIError{Kind: ErrServiceUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &APIError{Kind: ErrTimeout, Status: resp.StatusCode, Message: err.Error()}
	}
	return parseDelivery(resp.StatusCode, raw)
}

// parseDelivery accepts either the API envelope or a bare file object,
// the storage tier has used both shapes.
func parseDelivery(status int, raw []byte) (*UploadedFile, error) {
	var env struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			File UploadedFile `json:"file"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Code != 0 || status < 200 || status >= 300 {
			return nil, &APIError{
				Kind:    classify(status, env.Code, env.Message),
				Status:  status,
				Code:    env.Code,
				Message: env.Message,
			}
		}
		if env.Data.File.FileID != "" || env.Data.File.URL != "" {
			return &env.Data.File, nil
		}
	}

	if status < 200 || status >= 300 {
		return nil, &APIError{
			Kind:    classify(status, 0, ""),
			Status:  status,
			Message: strings.TrimSpace(string(raw)),
		}
	}
	var file UploadedFile
	if err := json.Unmarshal(raw, &file); err == nil && (file.FileID != "" || file.URL != "") {
		return &file, nil
	}
	return nil, &APIError{Kind: ErrUnknown, Status: status, Message: "delivery response without a file identifier"}
}

func fileHeader(filename, mimeType string) textproto.MIMEHeader {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	return h
}

type uploadURLRequest struct {
	FileType int    `json:"fileType"`
	URL      string `json:"url"`
}

type uploadURLResponse struct {
	File UploadedFile `json:"file"`
}

// UploadByURL asks the service to fetch and store the image itself.
// Used when the client could not obtain the bytes locally.
func (c *Client) UploadByURL(ctx context.Context, rawURL string) (*UploadedFile, error) {
	var resp uploadURLResponse
	if err := c.post(ctx, pathUploadURL, uploadURLRequest{FileType: fileTypeImage, URL: rawURL}, &resp); err != nil {
		return nil, err
	}
	if resp.File.FileID == "" && resp.File.URL == "" {
		return nil, &APIError{Kind: ErrUnknown, Message: "url upload succeeded without a file identifier"}
	}
	return &resp.File, nil
}
