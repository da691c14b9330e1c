package imagepipe

import (
	"context"
	"encoding/base64"

	"github.com/go-rod/rod"
)

// Delegate fetches an image from within the page's own execution
// context, carrying whatever cookies and session state the page holds.
// The wire contract mirrors the extension messaging shape:
// request {type: FETCH_IMAGE, url} → {success, data:{base64, mimeType}}.
type Delegate interface {
	FetchImage(ctx context.Context, url string) (*Fetched, error)
}

// fetchImageJS runs inside the page. It tries a referrer-less CORS
// fetch first and falls back to a no-cors request; an opaque no-cors
// body reads back empty and is reported as blocked.
const fetchImageJS = `async (url) => {
	const read = async (resp) => {
		const blob = await resp.blob();
		if (blob.size === 0) throw new Error('empty or opaque body');
		const buf = await blob.arrayBuffer();
		const bytes = new Uint8Array(buf);
		let bin = '';
		for (let i = 0; i < bytes.length; i += 0x8000) {
			bin += String.fromCharCode.apply(null, bytes.subarray(i, i + 0x8000));
		}
		return { success: true, data: { base64: btoa(bin), mimeType: blob.type || 'image/jpeg' } };
	};
	try {
		const resp = await fetch(url, { mode: 'cors', credentials: 'include', referrerPolicy: 'no-referrer' });
		if (!resp.ok) throw new Error('http ' + resp.status);
		return await read(resp);
	} catch (corsErr) {
		try {
			const resp = await fetch(url, { mode: 'no-cors', credentials: 'include', referrerPolicy: 'no-referrer' });
			return await read(resp);
		} catch (e) {
			return { success: false, error: String(corsErr) + '; ' + String(e) };
		}
	}
}`

// RodDelegate delegates image fetches to a live browser page.
type RodDelegate struct {
	Page *rod.Page
}

// FetchImage evaluates the in-page fetch and decodes the response. The
// caller bounds ctx; evaluation aborts when it expires.
func (d *RodDelegate) FetchImage(ctx context.Context, url string) (*Fetched, error) {
	res, err := d.Page.Context(ctx).Eval(fetchImageJS, url)
	if err != nil {
		return nil, failf(FailureCORSOrBlocked, "delegated fetch %q: %w", url, err)
	}

	v := res.Value
	if !v.Get("success").Bool() {
		return nil, failf(FailureCORSOrBlocked, "delegated fetch %q: %s", url, v.Get("error").Str())
	}
	raw := v.Get("data").Get("base64").Str()
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, failf(FailureUnknown, "delegated fetch %q: decode: %w", url, err)
	}
	if len(data) == 0 {
		return nil, failf(FailureCORSOrBlocked, "delegated fetch %q: empty body", url)
	}
	mime := v.Get("data").Get("mimeType").Str()
	if mime == "" {
		mime = "image/jpeg"
	}
	return &Fetched{Data: data, MimeType: mime}, nil
}

var _ Delegate = (*RodDelegate)(nil)

// DelegateFunc adapts a function to the Delegate interface.
type DelegateFunc func(ctx context.Context, url string) (*Fetched, error)

func (f DelegateFunc) FetchImage(ctx context.Context, url string) (*Fetched, error) {
	return f(ctx, url)
}
