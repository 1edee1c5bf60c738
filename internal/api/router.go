package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"space-invaders-server/internal/directory"
)

// RouterConfig contains all dependencies needed to construct the HTTP
// router, keeping the router a pure factory that tests can exercise
// with httptest.
type RouterConfig struct {
	// Directory is the room registry the HTTP layer is a thin
	// wrapper over (required).
	Directory *directory.Directory

	// Gate is an optional pre-configured per-IP admission gate. If
	// nil, a new one is built from GateConfig.
	Gate *ClientGate

	// GateConfig is only used if Gate is nil.
	GateConfig *ClientGateConfig

	// CORSOrigins overrides the default allowed CORS origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware, useful
	// for benchmarks and quiet test output.
	DisableLogging bool
}

// NewRouter constructs the HTTP router with all middleware and routes.
// It opens no listener, so it is safe to drive with httptest.NewServer
// in tests. When cfg.Gate is nil it builds a ClientGate, which starts
// that gate's cleanup goroutine.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	gate := cfg.Gate
	if gate == nil {
		gateCfg := DefaultClientGateConfig
		if cfg.GateConfig != nil {
			gateCfg = *cfg.GateConfig
		}
		gate = NewClientGate(gateCfg)
	}
	r.Use(gate.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &roomHandlers{
		dir:  cfg.Directory,
		gate: gate,
	}

	r.Post("/init", h.handleInit)
	r.Get("/info", h.handleInfo)
	r.Post("/room", h.handleCreateRoom)
	r.Get("/room/{code}/ws", h.handleRoomWebSocket)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}

type roomHandlers struct {
	dir  *directory.Directory
	gate *ClientGate
}

type initRequest struct {
	RoomCode string `json:"roomCode"`
}

// handleInit implements POST /init {roomCode} -> 200 "OK" on first
// init, 409 "Already initialized" otherwise.
func (h *roomHandlers) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomCode == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.dir.Init(req.RoomCode); err != nil {
		if err == directory.ErrTooManyRooms {
			http.Error(w, "too many rooms", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Already initialized", http.StatusConflict)
		return
	}
	w.Write([]byte("OK"))
}

type infoResponse struct {
	RoomCode    string `json:"roomCode"`
	PlayerCount int    `json:"playerCount"`
	Status      string `json:"status"`
}

// handleInfo implements GET /info?roomCode=... -> {roomCode,
// playerCount, status}; 404 if uninitialized.
func (h *roomHandlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("roomCode")
	info, ok := h.dir.Info(code)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{
		RoomCode:    info.RoomCode,
		PlayerCount: info.PlayerCount,
		Status:      string(info.Status),
	})
}

type roomCodeResponse struct {
	RoomCode string `json:"roomCode"`
}

// handleCreateRoom implements POST /room (directory): generates a
// fresh 6-character base36 uppercase code, initializes a room for it,
// and returns {roomCode}.
func (h *roomHandlers) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var code string
	for attempts := 0; attempts < 5; attempts++ {
		code = directory.GenerateRoomCode()
		err := h.dir.Init(code)
		if err == nil {
			writeJSON(w, http.StatusOK, roomCodeResponse{RoomCode: code})
			return
		}
		if err == directory.ErrTooManyRooms {
			http.Error(w, "too many rooms", http.StatusServiceUnavailable)
			return
		}
	}
	http.Error(w, "could not allocate room code", http.StatusInternalServerError)
}

// metricsMiddleware records request_latency/request_total per route
// pattern rather than raw path, keeping the label cardinality bounded
// even as room codes vary ("/room/{code}/ws", not "/room/FULLRM/ws").
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		RecordRequest(r.Method, endpoint, ww.Status(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
