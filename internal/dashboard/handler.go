package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"meridian/internal/archive"
	"meridian/internal/backend"
	"meridian/internal/logging"
	"meridian/internal/risk"
	"meridian/internal/simulation"
)

// Session is the part of the session store the dashboard exposes.
type Session interface {
	StartRun(ctx context.Context) (string, error)
	CurrentState() *risk.AnalysisState
	Feed() []risk.FeedEntry
	// SubscribeWithCurrent delivers the current state and then every
	// transition, in order.
	SubscribeWithCurrent(fn func(*risk.AnalysisState)) func()
}

type Simulator interface {
	Simulate(ctx context.Context, m simulation.Mutation) (*simulation.Result, error)
	SimulateBatch(ctx context.Context, ms []simulation.Mutation) []simulation.BatchOutcome
}

// Backend covers the pass-through endpoints.
type Backend interface {
	Health(ctx context.Context) (backend.Health, error)
	MonteCarlo(ctx context.Context) (backend.MonteCarlo, error)
}

const maxBodyBytes = 64 << 10

// Handler serves the dashboard API over one shared session.
type Handler struct {
	session   Session
	simulator Simulator
	backend   Backend
	reports   archive.Store
	log       *slog.Logger
}

type Options struct {
	Session   Session
	Simulator Simulator
	Backend   Backend
	Reports   archive.Store
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		session:   opts.Session,
		simulator: opts.Simulator,
		backend:   opts.Backend,
		reports:   opts.Reports,
		log:       logging.New("dashboard"),
	}
}

// BuildMux registers every route on a new ServeMux.
func BuildMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.health)
	mux.HandleFunc("GET /api/state", h.state)
	mux.HandleFunc("GET /api/feed", h.feed)
	mux.HandleFunc("POST /api/run", h.startRun)
	mux.HandleFunc("POST /api/simulate", h.simulate)
	mux.HandleFunc("POST /api/simulate/batch", h.simulateBatch)
	mux.HandleFunc("GET /api/monte-carlo", h.monteCarlo)
	mux.HandleFunc("GET /api/reports", h.listReports)
	mux.HandleFunc("GET /api/reports/{runID}", h.getReport)
	mux.HandleFunc("GET /ws/state", h.stateWS)
	return mux
}

// Routes is the full middleware-wrapped handler.
func Routes(h *Handler) http.Handler {
	return CORS(AccessLog(h.log, BuildMux(h)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{"status": "ok"}
	if h.backend != nil {
		be, err := h.backend.Health(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
		out["backend"] = be
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.CurrentState())
}

func (h *Handler) feed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Feed())
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	runID, err := h.session.StartRun(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (h *Handler) simulate(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m, err := simulation.DecodeMutation(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.simulator.Simulate(r.Context(), m)
	if err != nil {
		writeError(w, simulationStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchItem struct {
	Mutation backend.MutationRequest `json:"mutation"`
	Result   *simulation.Result      `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

func (h *Handler) simulateBatch(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("body must be a JSON array of mutations"))
		return
	}
	ms := make([]simulation.Mutation, 0, len(raw))
	for _, item := range raw {
		m, err := simulation.DecodeMutation(item)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ms = append(ms, m)
	}

	outcomes := h.simulator.SimulateBatch(r.Context(), ms)
	out := make([]batchItem, 0, len(outcomes))
	for _, o := range outcomes {
		item := batchItem{Mutation: o.Mutation.Request(), Result: o.Result}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) monteCarlo(w http.ResponseWriter, r *http.Request) {
	if h.backend == nil {
		writeError(w, http.StatusServiceUnavailable, backend.ErrUnavailable)
		return
	}
	mc, err := h.backend.MonteCarlo(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, mc)
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	ids, err := h.reports.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("runID"))
	if h.reports == nil {
		writeError(w, http.StatusNotFound, archive.ErrNotFound)
		return
	}
	report, err := h.reports.Get(r.Context(), runID)
	if errors.Is(err, archive.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func simulationStatus(err error) int {
	switch {
	case errors.Is(err, simulation.ErrInvalidMutation):
		return http.StatusBadRequest
	case errors.Is(err, simulation.ErrBackendUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
