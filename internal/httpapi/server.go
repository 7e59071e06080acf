// Package httpapi exposes the runtime core over HTTP for platform
// bindings: catalog and device queries, download progress streams, model
// lifecycle operations and generation.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgellm/internal/download"
	"edgellm/internal/engine"
	"edgellm/pkg/types"
)

// Service is what the HTTP layer needs from the lifecycle manager.
// Satisfied by *lifecycle.Manager.
type Service interface {
	ListModels() []types.ModelDescriptor
	GetModel(id string) (types.ModelDescriptor, bool)
	Capability() types.DeviceCapability
	State(id string) (types.LifecycleState, bool)
	States() map[string]types.LifecycleState
	ActiveModelID() string
	CurrentEngine() engine.Engine
	UsageBytes() (int64, error)
	Ready() bool

	DownloadModel(ctx context.Context, id string) (<-chan types.DownloadProgress, error)
	CancelDownload(id string)
	PauseDownload(id string) (download.ResumeToken, bool)
	ResumeDownload(ctx context.Context, token download.ResumeToken) (<-chan types.DownloadProgress, error)
	LoadModel(ctx context.Context, id string) error
	UnloadModel(id string) error
	DeleteModel(id string) error
	AutoSelectAndPrepare(ctx context.Context, memoryMB int64) (types.ModelDescriptor, <-chan types.DownloadProgress, error)
	Subscribe() (<-chan types.StateChange, func())
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"models": modelInfos(svc)})
		})

		r.Get("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			desc, ok := svc.GetModel(id)
			if !ok {
				writeJSONError(w, http.StatusNotFound, "model not found: "+id)
				return
			}
			writeJSON(w, http.StatusOK, modelInfo(svc, desc))
		})

		r.Get("/device", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Capability())
		})

		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			usage, _ := svc.UsageBytes()
			writeJSON(w, http.StatusOK, types.StatusResponse{
				ActiveModelID: svc.ActiveModelID(),
				Models:        svc.States(),
				StorageBytes:  usage,
				Device:        svc.Capability(),
			})
		})

		r.Post("/models/{id}/download", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			ch, err := svc.DownloadModel(ctx, chi.URLParam(r, "id"))
			if err != nil {
				writeJSONError(w, statusFor(err), err.Error())
				return
			}
			streamProgress(w, r, ch)
		})

		r.Post("/models/{id}/download/cancel", func(w http.ResponseWriter, r *http.Request) {
			svc.CancelDownload(chi.URLParam(r, "id"))
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/models/{id}/download/pause", func(w http.ResponseWriter, r *http.Request) {
			tok, ok := svc.PauseDownload(chi.URLParam(r, "id"))
			if !ok {
				writeJSONError(w, http.StatusConflict, "no transfer in flight")
				return
			}
			writeJSON(w, http.StatusOK, types.PauseResponse{Token: tok.Encode()})
		})

		r.Post("/download/resume", func(w http.ResponseWriter, r *http.Request) {
			var req types.ResumeRequest
			if !decodeBody(w, r, &req) {
				return
			}
			tok, err := download.DecodeResumeToken(req.Token)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			ch, err := svc.ResumeDownload(ctx, tok)
			if err != nil {
				writeJSONError(w, statusFor(err), err.Error())
				return
			}
			streamProgress(w, r, ch)
		})

		r.Post("/models/{id}/load", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			if err := svc.LoadModel(ctx, chi.URLParam(r, "id")); err != nil {
				writeJSONError(w, statusFor(err), err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/models/{id}/unload", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.UnloadModel(chi.URLParam(r, "id")); err != nil {
				writeJSONError(w, statusFor(err), err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Delete("/models/{id}", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.DeleteModel(chi.URLParam(r, "id")); err != nil {
				writeJSONError(w, statusFor(err), err.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/autoselect", func(w http.ResponseWriter, r *http.Request) {
			var req types.AutoSelectRequest
			if !decodeBody(w, r, &req) {
				return
			}
			memMB := req.MemoryMB
			if memMB <= 0 {
				memMB = svc.Capability().TotalMemoryMB
			}
			ctx, cancel := joinContexts(serverBaseCtx, r.Context())
			defer cancel()
			desc, ch, err := svc.AutoSelectAndPrepare(ctx, memMB)
			if err != nil {
				writeJSONError(w, statusFor(err), err.Error())
				return
			}
			if ch == nil {
				writeJSON(w, http.StatusOK, modelInfo(svc, desc))
				return
			}
			streamProgress(w, r, ch)
		})

		r.Post("/generate", func(w http.ResponseWriter, r *http.Request) {
			handleGenerate(svc, w, r)
		})

		r.Post("/generate/cancel", func(w http.ResponseWriter, r *http.Request) {
			eng := svc.CurrentEngine()
			if eng == nil || !eng.Cancel() {
				writeJSONError(w, http.StatusConflict, types.ErrEngineNotLoaded.Error())
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			handleEvents(svc, w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func modelInfos(svc Service) []types.ModelInfo {
	descs := svc.ListModels()
	out := make([]types.ModelInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, modelInfo(svc, d))
	}
	return out
}

func modelInfo(svc Service, desc types.ModelDescriptor) types.ModelInfo {
	state, _ := svc.State(desc.ID)
	downloaded := state.Phase == types.PhaseDownloaded ||
		state.Phase == types.PhaseLoading ||
		state.Phase == types.PhaseLoaded ||
		state.Phase == types.PhaseUnloading
	return types.ModelInfo{ModelDescriptor: desc, State: state, Downloaded: downloaded}
}

// decodeBody parses a JSON request body, enforcing content type and size.
// Writes the error response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// streamProgress writes a progress channel as NDJSON until it closes or the
// client goes away.
func streamProgress(w http.ResponseWriter, r *http.Request, ch <-chan types.DownloadProgress) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	for p := range ch {
		if r.Context().Err() != nil {
			return
		}
		if err := enc.Encode(p); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func handleGenerate(svc Service, w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	eng := svc.CurrentEngine()
	if eng == nil {
		writeJSONError(w, http.StatusConflict, types.ErrEngineNotLoaded.Error())
		return
	}

	base, ok := types.Preset(req.Preset)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "unknown preset: "+req.Preset)
		return
	}
	cfg := base
	if req.Config != nil {
		cfg = req.Config.WithDefaults(base)
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	start := time.Now()

	if req.ImageBase64 != "" {
		image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed image payload")
			return
		}
		text, err := eng.GenerateWithImage(ctx, req.Prompt, image, cfg)
		finishGenerate(w, r, text, err, start)
		return
	}

	if req.Stream {
		ch, err := eng.GenerateStream(ctx, req.Prompt, cfg)
		if err != nil {
			writeJSONError(w, statusFor(err), err.Error())
			return
		}
		streamGenerate(w, r, ch)
		logGenerate(r, start, "stream")
		return
	}

	text, err := eng.Generate(ctx, req.Prompt, cfg)
	finishGenerate(w, r, text, err, start)
}

func finishGenerate(w http.ResponseWriter, r *http.Request, text string, err error, start time.Time) {
	if err != nil {
		if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
			return
		}
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.GenerateResponse{Text: text})
	logGenerate(r, start, "blocking")
}

// streamGenerate writes generation fragments as NDJSON chunks, ending with
// a done marker or an error chunk.
func streamGenerate(w http.ResponseWriter, r *http.Request, ch <-chan engine.Fragment) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	for f := range ch {
		if r.Context().Err() != nil {
			// Drain so the engine releases its session promptly.
			for range ch {
			}
			return
		}
		chunk := types.GenerateChunk{Text: f.Text}
		if f.Err != nil {
			chunk = types.GenerateChunk{Error: f.Err.Error()}
		}
		if err := enc.Encode(chunk); err != nil {
			for range ch {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	_ = enc.Encode(types.GenerateChunk{Done: true})
	if flusher != nil {
		flusher.Flush()
	}
}

// handleEvents streams lifecycle state changes as server-sent events.
func handleEvents(svc Service, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	ch, unsub := svc.Subscribe()
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	for {
		select {
		case c, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(c)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Warn().Err(err).Msg("response encode failed")
	}
}
