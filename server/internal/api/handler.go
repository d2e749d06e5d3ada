package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/logship/logship/pkg/types"
	"github.com/logship/logship/server/internal/auth"
	"github.com/logship/logship/server/internal/config"
	"github.com/logship/logship/server/internal/store"
)

// Handler serves the collector endpoints.
type Handler struct {
	store   *store.Store
	issuer  *auth.Issuer
	maxBody int64
	mux     *http.ServeMux
}

// New creates a Handler wired to the given store and issuer and registers all routes.
func New(cfg config.ServerConfig, st *store.Store, iss *auth.Issuer) http.Handler {
	h := &Handler{
		store:   st,
		issuer:  iss,
		maxBody: cfg.MaxBody,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc(cfg.AuthPath, h.token)
	h.mux.Handle(cfg.LogsPath, auth.BearerMiddleware(cfg.Auth.Mode, iss, http.HandlerFunc(h.ingest)))
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/logs", h.logs)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// token exchanges client credentials for a bearer token.
func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var creds types.Credentials
	if err := h.decode(r, &creds); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	tok, _, err := h.issuer.Issue(creds.ClientID, creds.ClientSecret)
	if errors.Is(err, auth.ErrUnknownClient) {
		slog.Info("api: rejected credentials", "client_id", creds.ClientID, "remote", r.RemoteAddr)
		jsonErr(w, http.StatusUnauthorized, "invalid client credentials")
		return
	}
	if err != nil {
		slog.Error("api: issuing token", "err", err)
		jsonErr(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	slog.Debug("api: token issued", "client_id", creds.ClientID, "email", creds.Email)
	jsonResp(w, http.StatusOK, types.AuthResponse{
		Token:     tok,
		ExpiresIn: int64(h.issuer.Lease().Seconds()),
	})
}

// ingest stores one batch.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var b types.Batch
	if err := h.decode(r, &b); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateBatch(b); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.NewString()
	subject := auth.Subject(r.Context())
	h.store.Append(id, subject, b)

	slog.Debug("api: batch received",
		"batch_id", id, "source", b.Source, "subject", subject, "events", len(b.Logs))
	jsonResp(w, http.StatusOK, IngestResponse{BatchID: id, Accepted: len(b.Logs)})
}

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	batches, events := h.store.Count()
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Sources: h.store.Sources(),
		Batches: batches,
		Events:  events,
	})
}

// logs returns GET /api/v1/logs[?source=...] in arrival order.
func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	source := r.URL.Query().Get("source")
	events := h.store.Events(source)
	if events == nil {
		events = []types.LogEvent{}
	}
	jsonResp(w, http.StatusOK, LogsResponse{Source: source, Count: len(events), Logs: events})
}

// --- helpers ----------------------------------------------------------------

// decode reads a JSON body, inflating it first when Content-Encoding is gzip.
func (h *Handler) decode(r *http.Request, v interface{}) error {
	var body io.Reader = r.Body
	switch enc := strings.ToLower(r.Header.Get("Content-Encoding")); enc {
	case "", "identity":
	case "gzip":
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			return fmt.Errorf("bad gzip body: %w", err)
		}
		defer zr.Close()
		body = zr
	default:
		return fmt.Errorf("unsupported content encoding %q", enc)
	}

	dec := json.NewDecoder(io.LimitReader(body, h.maxBody+1))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad json body: %w", err)
	}
	return nil
}

func validateBatch(b types.Batch) error {
	if b.Source == "" {
		return errors.New("source is required")
	}
	if len(b.Logs) == 0 {
		return errors.New("logs must not be empty")
	}
	for i, ev := range b.Logs {
		if _, err := types.ParseLevel(string(ev.Level)); err != nil {
			return fmt.Errorf("logs[%d]: %w", i, err)
		}
		if ev.Timestamp == "" {
			return fmt.Errorf("logs[%d]: timestamp is required", i)
		}
	}
	return nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
