package download

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"edgellm/pkg/types"
)

// ResumeToken reconstructs a paused transfer. Opaque to callers; the encoded
// form travels through bindings as a string.
type ResumeToken struct {
	Token   string `json:"token"`
	ModelID string `json:"model_id"`
	FileID  string `json:"file_id"`
	URL     string `json:"url"`
	TmpPath string `json:"tmp_path"`
	Bytes   int64  `json:"bytes"`
	Total   int64  `json:"total"`
	ETag    string `json:"etag"`
}

// Encode serializes the token for transport across a binding boundary.
func (t ResumeToken) Encode() string {
	b, _ := json.Marshal(t)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeResumeToken parses a token produced by Encode.
func DecodeResumeToken(s string) (ResumeToken, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return ResumeToken{}, fmt.Errorf("malformed resume token: %w", err)
	}
	var t ResumeToken
	if err := json.Unmarshal(b, &t); err != nil {
		return ResumeToken{}, fmt.Errorf("malformed resume token: %w", err)
	}
	return t, nil
}

// Pause stops the in-flight transfer for the given file id, keeping its
// partial bytes, and returns a token that can continue it later. ok is false
// when nothing is in flight for the id.
func (d *Downloader) Pause(id string) (ResumeToken, bool) {
	d.mu.Lock()
	t, exists := d.active[id]
	if !exists {
		d.mu.Unlock()
		return ResumeToken{}, false
	}
	tok := ResumeToken{
		Token:   uuid.NewString(),
		ModelID: t.modelID,
		FileID:  t.fileID,
		URL:     t.url,
		TmpPath: t.tmpPath,
		Bytes:   t.bytes,
		Total:   t.total,
		ETag:    t.etag,
	}
	d.mu.Unlock()
	t.cancel(errPaused)
	d.log.Info().Str("file", id).Int64("bytes", tok.Bytes).Msg("transfer paused")
	return tok, true
}

// Resume continues a paused transfer from the token's byte offset using an
// HTTP range request. When the transport does not honor ranges the transfer
// restarts from zero; the restart is visible on the progress stream, never
// reported as a continued download. The returned channel behaves like the
// one from Start.
func (d *Downloader) Resume(ctx context.Context, token ResumeToken) (<-chan types.DownloadProgress, error) {
	if token.FileID == "" || token.URL == "" {
		return nil, fmt.Errorf("malformed resume token")
	}
	// The partial file on disk is the ground truth for the offset: the
	// token's count can trail writes that landed after it was minted.
	var offset int64
	if fi, err := os.Stat(token.TmpPath); err == nil {
		offset = fi.Size()
	}

	d.mu.Lock()
	if _, busy := d.active[token.FileID]; busy {
		d.mu.Unlock()
		return nil, fmt.Errorf("transfer already in progress: %s", token.FileID)
	}
	t := d.registerLocked(ctx, token.ModelID, fileSpec{id: token.FileID, url: token.URL}, offset)
	t.tmpPath = token.TmpPath
	t.etag = token.ETag
	t.total = token.Total
	d.mu.Unlock()

	ch := make(chan types.DownloadProgress, 32)
	go func() {
		defer close(ch)
		_ = d.run(ctx, t, ch)
	}()
	return ch, nil
}
