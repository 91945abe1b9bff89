// Package server exposes a FogMap over HTTP: a tile endpoint that renders
// through shader.Render and encodes PNG, and line/import endpoints that
// mutate the map. PNG encoding and network I/O live here rather than in
// the core bitmap pyramid, using plain net/http with a hand-rolled path
// parser instead of a router dependency.
package server

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
	"github.com/MeKo-Tech/fogtrail/internal/importer"
	"github.com/MeKo-Tech/fogtrail/internal/shader"
)

// Config configures the handler.
type Config struct {
	BufferSizePower int // render width = 2^BufferSizePower, e.g. 8 for 256px tiles
	BGColor         shader.Color
	FGColor         shader.Color
	CacheControl    string
}

// Handler serves tiles from, and accepts writes to, a single in-memory
// FogMap. All writes are serialized by mu -- the core itself performs no
// locking, so the server is responsible for it.
type Handler struct {
	mu     sync.RWMutex
	fog    *fogmap.FogMap
	cfg    Config
	logger *slog.Logger
}

// New creates a Handler wrapping an initially-empty FogMap.
func New(cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "no-store"
	}
	return &Handler{
		fog:    fogmap.New(),
		cfg:    cfg,
		logger: logger,
	}
}

// SetFogMap replaces the handler's map wholesale, e.g. after loading a
// snapshot from disk at startup.
func (h *Handler) SetFogMap(m *fogmap.FogMap) {
	h.mu.Lock()
	h.fog = m
	h.mu.Unlock()
}

// FogMap returns the handler's current map, for callers that need to save
// a snapshot on shutdown. The returned map must not be mutated concurrently
// with in-flight requests.
func (h *Handler) FogMap() *fogmap.FogMap {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fog
}

// Mux returns an http.ServeMux with all routes registered.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/tiles/", h.handleTile)
	mux.HandleFunc("/lines", h.handleAddLine)
	mux.HandleFunc("/import", h.handleImport)
	mux.HandleFunc("/stats", h.handleStats)
	return mux
}

// handleTile serves GET /tiles/{zoom}/{x}/{y}.png.
func (h *Handler) handleTile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	zoom, x, y, ok := parseTilePath(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}

	width := 1 << uint(h.cfg.BufferSizePower)
	buf := make([]byte, width*width*4)

	h.mu.RLock()
	err := shader.Render(h.fog, x, y, zoom, h.cfg.BufferSizePower, h.cfg.BGColor, h.cfg.FGColor, buf)
	h.mu.RUnlock()
	if err != nil {
		h.logger.Error("render failed", "zoom", zoom, "x", x, "y", y, "error", err)
		http.Error(w, "render failed", http.StatusBadRequest)
		return
	}

	img := &image.RGBA{Pix: buf, Stride: width * 4, Rect: image.Rect(0, 0, width, width)}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", h.cfg.CacheControl)
	if err := png.Encode(w, img); err != nil {
		h.logger.Error("png encode failed", "error", err)
	}
}

// parseTilePath parses "/tiles/{zoom}/{x}/{y}.png".
func parseTilePath(requestPath string) (zoom int, x, y int64, ok bool) {
	if !strings.HasPrefix(requestPath, "/tiles/") {
		return 0, 0, 0, false
	}
	trimmed := strings.TrimPrefix(requestPath, "/tiles/")
	trimmed = strings.TrimSuffix(trimmed, ".png")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}

	z, err1 := strconv.Atoi(parts[0])
	xi, err2 := strconv.ParseInt(parts[1], 10, 64)
	yi, err3 := strconv.ParseInt(path.Base(parts[2]), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0, false
	}
	return z, xi, yi, true
}

type addLineRequest struct {
	StartLng float64 `json:"start_lng"`
	StartLat float64 `json:"start_lat"`
	EndLng   float64 `json:"end_lng"`
	EndLat   float64 `json:"end_lat"`
}

// handleAddLine serves POST /lines with a JSON body of addLineRequest.
func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req addLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("bad request body: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	err := h.fog.AddLine(req.StartLng, req.StartLat, req.EndLng, req.EndLat)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImport serves POST /import?filename=<name> with the raw snapshot
// bytes as the request body.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		http.Error(w, "missing filename query parameter", http.StatusBadRequest)
		return
	}

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	err = importer.AddFowFile(h.fog, filename, buf)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statsResponse struct {
	Tiles int `json:"tiles"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	n := h.fog.TileCount()
	h.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statsResponse{Tiles: n})
}
