// Package download performs model file transfers: one or two files per
// model (primary weights, optional projector), each independently
// cancellable, with a push-based progress stream per model.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edgellm/pkg/types"
)

// copyChunkSize is the read granularity; cancellation and progress are
// observed at chunk boundaries.
const copyChunkSize = 64 * 1024

// progressEveryBytes throttles intermediate progress events.
const progressEveryBytes = 256 * 1024

// Sink receives finished files. The move is performed synchronously inside
// the completion path, before the temp file can be cleaned up.
type Sink interface {
	MoveToFinal(tempPath, id string) error
}

// errPaused marks a cancellation that should preserve the temp file.
var errPaused = errors.New("transfer paused")

// transfer is the in-flight bookkeeping for one file id.
type transfer struct {
	handle  string // internal transfer handle, maps back to the file id
	fileID  string
	modelID string
	url     string
	tmpPath string
	ctx     context.Context
	cancel  context.CancelCauseFunc

	bytes int64
	total int64
	etag  string
	last  types.DownloadProgress
	// resumedFrom is the offset a resumed transfer continued at; reset to
	// zero when the transport forces a restart.
	resumedFrom int64
}

// Downloader owns in-flight transfer handles for their duration. All shared
// bookkeeping is guarded by mu; progress callbacks from transfer goroutines
// go through it before touching the tables.
type Downloader struct {
	mu       sync.Mutex
	active   map[string]*transfer // by file id
	byHandle map[string]string    // transfer handle -> file id

	client *http.Client
	sink   Sink
	tmpDir string
	log    zerolog.Logger
}

// New returns a Downloader writing partial files under tmpDir and handing
// finished files to sink.
func New(sink Sink, tmpDir string, log zerolog.Logger) (*Downloader, error) {
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}
	return &Downloader{
		active:   make(map[string]*transfer),
		byHandle: make(map[string]string),
		client:   &http.Client{},
		sink:     sink,
		tmpDir:   tmpDir,
		log:      log,
	}, nil
}

// Start begins downloading all files for the descriptor and returns the
// model's progress stream. The primary file finishes (including the final
// move) before the projector transfer begins; a primary failure suppresses
// the projector entirely. The channel closes once every started file has
// reached a terminal stage. Cancelling ctx cancels the transfers.
func (d *Downloader) Start(ctx context.Context, desc types.ModelDescriptor) (<-chan types.DownloadProgress, error) {
	files := []fileSpec{{id: desc.ID, url: desc.URL, declaredMB: desc.SizeMB}}
	if desc.HasAux() {
		files = append(files, fileSpec{id: desc.AuxID(), url: desc.AuxURL, declaredMB: desc.AuxSizeMB})
	}
	return d.startFiles(ctx, desc.ID, files)
}

// StartAux downloads only the projector file, for a model whose primary
// file is already in place.
func (d *Downloader) StartAux(ctx context.Context, desc types.ModelDescriptor) (<-chan types.DownloadProgress, error) {
	if !desc.HasAux() {
		return nil, fmt.Errorf("model %s has no projector file", desc.ID)
	}
	return d.startFiles(ctx, desc.ID, []fileSpec{{id: desc.AuxID(), url: desc.AuxURL, declaredMB: desc.AuxSizeMB}})
}

func (d *Downloader) startFiles(ctx context.Context, modelID string, files []fileSpec) (<-chan types.DownloadProgress, error) {
	d.mu.Lock()
	for _, f := range files {
		if _, busy := d.active[f.id]; busy {
			d.mu.Unlock()
			return nil, fmt.Errorf("transfer already in progress: %s", f.id)
		}
	}
	transfers := make([]*transfer, len(files))
	for i, f := range files {
		transfers[i] = d.registerLocked(ctx, modelID, f, 0)
	}
	d.mu.Unlock()

	ch := make(chan types.DownloadProgress, 32)
	go func() {
		defer close(ch)
		for i, t := range transfers {
			err := d.run(ctx, t, ch)
			if err != nil && i+1 < len(transfers) {
				// Primary failed or was cancelled: release the queued
				// projector transfers without starting them.
				for _, rest := range transfers[i+1:] {
					rest.cancel(context.Canceled)
					d.unregister(rest)
					if errors.Is(err, errPaused) {
						continue // primary paused, not abandoned
					}
					d.emit(ctx, ch, rest, progressOf(rest, types.StageCancelled))
				}
				return
			}
		}
	}()
	return ch, nil
}

type fileSpec struct {
	id         string
	url        string
	declaredMB int64
}

// registerLocked creates the bookkeeping entry for one file. Caller holds mu.
func (d *Downloader) registerLocked(parent context.Context, modelID string, f fileSpec, offset int64) *transfer {
	runCtx, cancel := context.WithCancelCause(parent)
	t := &transfer{
		handle:  uuid.NewString(),
		fileID:  f.id,
		modelID: modelID,
		url:     f.url,
		tmpPath: filepath.Join(d.tmpDir, f.id+"-"+uuid.NewString()[:8]+".part"),
		ctx:     runCtx,
		cancel:  cancel,
		bytes:   offset,
		total:   f.declaredMB * 1024 * 1024,

		resumedFrom: offset,
	}
	t.last = progressOf(t, types.StagePending)
	d.active[f.id] = t
	d.byHandle[t.handle] = f.id
	return t
}

// run drives one file transfer to a terminal stage and returns the error
// that ended it, nil on completion.
func (d *Downloader) run(ctx context.Context, t *transfer, ch chan<- types.DownloadProgress) error {
	defer d.unregister(t)

	d.emit(ctx, ch, t, progressOf(t, types.StagePending))
	err := d.fetch(t, ch)
	switch {
	case err == nil:
		// Move to the final location synchronously, then report done.
		if mvErr := d.sink.MoveToFinal(t.tmpPath, t.fileID); mvErr != nil {
			d.log.Error().Str("file", t.fileID).Err(mvErr).Msg("final move failed")
			p := progressOf(t, types.StageFailed)
			p.Err = mvErr.Error()
			d.emit(ctx, ch, t, p)
			return mvErr
		}
		d.emit(ctx, ch, t, progressOf(t, types.StageCompleted))
		d.log.Info().Str("file", t.fileID).Int64("bytes", t.bytes).Msg("download completed")
		return nil

	case errors.Is(err, errPaused):
		// Keep the temp file; the resume token references it. No terminal
		// event: the stream ends and a resumed stream takes over.
		d.log.Info().Str("file", t.fileID).Int64("bytes", t.bytes).Msg("download paused")
		return err

	case isCancellation(err):
		_ = os.Remove(t.tmpPath)
		d.emit(ctx, ch, t, progressOf(t, types.StageCancelled))
		// Cancellation is ordinary control flow, never an error log.
		d.log.Info().Str("file", t.fileID).Msg("download cancelled")
		return err

	default:
		_ = os.Remove(t.tmpPath)
		p := progressOf(t, types.StageFailed)
		p.Err = err.Error()
		d.emit(ctx, ch, t, p)
		d.log.Error().Str("file", t.fileID).Err(err).Msg("download failed")
		return err
	}
}

// fetch performs the HTTP transfer into the temp file, starting at the
// transfer's current byte offset when it is nonzero.
func (d *Downloader) fetch(t *transfer, ch chan<- types.DownloadProgress) error {
	ctx := t.ctx
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return err
	}
	d.mu.Lock()
	offset := t.bytes
	etag := t.etag
	d.mu.Unlock()
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		if etag != "" {
			req.Header.Set("If-Range", etag)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && errors.Is(cause, errPaused) {
			return errPaused
		}
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		if offset > 0 {
			// Transport ignored the Range request: restart from zero and
			// make the restart observable instead of pretending the old
			// bytes survived.
			d.log.Warn().Str("file", t.fileID).Msg("server ignored range request, restarting from zero")
		}
		flags |= os.O_TRUNC
		d.mu.Lock()
		t.bytes = 0
		t.resumedFrom = 0
		t.last.BytesTransferred = 0
		d.mu.Unlock()
	default:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	d.mu.Lock()
	if resp.StatusCode == http.StatusOK && resp.ContentLength > 0 {
		t.total = resp.ContentLength
	}
	t.etag = resp.Header.Get("ETag")
	d.mu.Unlock()

	f, err := os.OpenFile(t.tmpPath, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, copyChunkSize)
	var sinceEmit int64
	for {
		if err := ctx.Err(); err != nil {
			if cause := context.Cause(ctx); errors.Is(cause, errPaused) {
				return errPaused
			}
			return err
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			d.mu.Lock()
			t.bytes += int64(n)
			sinceEmit += int64(n)
			d.mu.Unlock()
			if sinceEmit >= progressEveryBytes {
				sinceEmit = 0
				d.emit(ctx, ch, t, progressOf(t, types.StageDownloading))
			}
		}
		if rerr == io.EOF {
			return f.Sync()
		}
		if rerr != nil {
			if cause := context.Cause(ctx); cause != nil && errors.Is(cause, errPaused) {
				return errPaused
			}
			return rerr
		}
	}
}

// emit pushes a progress event, caching it for lookups. It never blocks past
// the consumer's context: a gone consumer drops the event.
func (d *Downloader) emit(ctx context.Context, ch chan<- types.DownloadProgress, t *transfer, p types.DownloadProgress) {
	d.mu.Lock()
	// Progress is monotonic per transfer.
	if p.BytesTransferred < t.last.BytesTransferred && !p.Stage.Terminal() {
		p.BytesTransferred = t.last.BytesTransferred
	}
	t.last = p
	d.mu.Unlock()
	select {
	case ch <- p:
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		d.log.Warn().Str("file", p.FileID).Msg("progress consumer stalled, dropping event")
	}
}

func (d *Downloader) unregister(t *transfer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.active[t.fileID]; ok && cur == t {
		delete(d.active, t.fileID)
		delete(d.byHandle, t.handle)
	}
}

func progressOf(t *transfer, stage types.DownloadStage) types.DownloadProgress {
	return types.DownloadProgress{
		ModelID:          t.modelID,
		FileID:           t.fileID,
		BytesTransferred: t.bytes,
		TotalBytes:       t.total,
		Stage:            stage,
		ResumedFrom:      t.resumedFrom,
	}
}

// Cancel aborts the transfer for id and its projector companion. Safe to
// call for ids with nothing in flight.
func (d *Downloader) Cancel(id string) {
	d.mu.Lock()
	ts := make([]*transfer, 0, 2)
	for _, fid := range []string{id, types.AuxID(id)} {
		if t, ok := d.active[fid]; ok {
			ts = append(ts, t)
		}
	}
	d.mu.Unlock()
	for _, t := range ts {
		t.cancel(context.Canceled)
	}
}

// CancelAll aborts every in-flight transfer.
func (d *Downloader) CancelAll() {
	d.mu.Lock()
	ts := make([]*transfer, 0, len(d.active))
	for _, t := range d.active {
		ts = append(ts, t)
	}
	d.mu.Unlock()
	for _, t := range ts {
		t.cancel(context.Canceled)
	}
}

// IsDownloading reports whether a transfer for id or its projector is in
// flight.
func (d *Downloader) IsDownloading(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.active[id]; ok {
		return true
	}
	_, ok := d.active[types.AuxID(id)]
	return ok
}

// Progress returns the last observed progress for a file id.
func (d *Downloader) Progress(id string) (types.DownloadProgress, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.active[id]
	if !ok {
		return types.DownloadProgress{}, false
	}
	return t.last, true
}

// isCancellation folds the transport's various cancellation shapes into one
// answer so cancellations are never misreported as failures.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
