package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"meridian/internal/backend"
	"meridian/internal/logging"
	"meridian/internal/risk"
)

// ErrBackendUnavailable wraps every failure to obtain a result from the
// simulation endpoint.
var ErrBackendUnavailable = errors.New("simulation backend unavailable")

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 5 * time.Minute
	defaultParallel  = 4
)

// Backend is the simulation endpoint.
type Backend interface {
	Simulate(ctx context.Context, req backend.MutationRequest) (backend.SimulationResponse, error)
}

// BaselineSource exposes the analysis the simulation is compared against.
// Simulation only reads it.
type BaselineSource interface {
	CurrentState() *risk.AnalysisState
}

// Outcome is the scored project on one side of a simulation. Level is always
// derived from TotalScore.
type Outcome struct {
	TotalScore  float64                   `json:"total_score"`
	RiskLevel   risk.Level                `json:"risk_level"`
	AgentScores map[risk.AgentKey]float64 `json:"agent_scores,omitempty"`
}

type Delta struct {
	TotalScore       float64                   `json:"total_score"`
	AgentDeltas      map[risk.AgentKey]float64 `json:"agent_deltas,omitempty"`
	RiskLevelChanged bool                      `json:"risk_level_changed"`
}

// Result is self-contained: it carries the baseline captured when the
// request was made.
type Result struct {
	Mutation      backend.MutationRequest `json:"mutation"`
	BaselineRunID string                  `json:"baseline_run_id,omitempty"`
	Baseline      Outcome                 `json:"baseline"`
	Simulated     Outcome                 `json:"simulated"`
	Delta         Delta                   `json:"delta"`
	Version       string                  `json:"simulation_version,omitempty"`
	Cached        bool                    `json:"cached,omitempty"`
}

// BatchOutcome is the result of one scenario in SimulateBatch.
type BatchOutcome struct {
	Mutation Mutation
	Result   *Result
	Err      error
}

type Options struct {
	Backend  Backend
	Baseline BaselineSource
	// CacheSize of zero uses the default; negative disables caching.
	CacheSize int
	CacheTTL  time.Duration
	Parallel  int
	Logger    *slog.Logger
}

// Client runs what-if mutations. It never modifies the baseline's state.
type Client struct {
	backend  Backend
	baseline BaselineSource
	parallel int
	cache    *expirable.LRU[string, Result]
	log      *slog.Logger
}

func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = logging.New("simulation")
	}
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}
	c := &Client{
		backend:  opts.Backend,
		baseline: opts.Baseline,
		parallel: parallel,
		log:      log,
	}
	if opts.CacheSize >= 0 {
		size, ttl := opts.CacheSize, opts.CacheTTL
		if size == 0 {
			size = defaultCacheSize
		}
		if ttl <= 0 {
			ttl = defaultCacheTTL
		}
		c.cache = expirable.NewLRU[string, Result](size, nil, ttl)
	}
	return c
}

// Simulate validates m and asks the backend for its effect.
func (c *Client) Simulate(ctx context.Context, m Mutation) (*Result, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mutation is required", ErrInvalidMutation)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if c.backend == nil {
		return nil, fmt.Errorf("%w: no backend configured", ErrBackendUnavailable)
	}

	runID, cacheable := c.baselineRun()
	cacheKey := runID + "|" + key(m)
	if cacheable && c.cache != nil {
		if cached, ok := c.cache.Get(cacheKey); ok {
			res := cached.clone()
			res.Cached = true
			return &res, nil
		}
	}

	resp, err := c.backend.Simulate(ctx, m.Request())
	if err != nil {
		c.log.Warn("simulation failed", "mutation", key(m), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	res := newResult(m, runID, resp)
	if cacheable && c.cache != nil {
		c.cache.Add(cacheKey, res.clone())
	}
	c.log.Debug("simulation complete", "mutation", key(m), "baseline_run_id", runID,
		"delta", res.Delta.TotalScore)
	return &res, nil
}

// SimulateBatch runs every mutation concurrently and returns one outcome per
// mutation, in input order. A failing scenario does not stop the others.
func (c *Client) SimulateBatch(ctx context.Context, ms []Mutation) []BatchOutcome {
	out := make([]BatchOutcome, len(ms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for i, m := range ms {
		g.Go(func() error {
			res, err := c.Simulate(gctx, m)
			out[i] = BatchOutcome{Mutation: m, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// baselineRun reports the run the backend's baseline corresponds to.
// Results are only cached against a finished run.
func (c *Client) baselineRun() (string, bool) {
	if c.baseline == nil {
		return "", false
	}
	st := c.baseline.CurrentState()
	if st == nil || st.Status != risk.StatusReady || st.RunID == "" {
		return "", false
	}
	return st.RunID, true
}

func newResult(m Mutation, runID string, resp backend.SimulationResponse) Result {
	base := newOutcome(resp.Baseline)
	sim := newOutcome(resp.Simulated)
	return Result{
		Mutation:      m.Request(),
		BaselineRunID: runID,
		Baseline:      base,
		Simulated:     sim,
		Delta: Delta{
			TotalScore:       resp.Delta.TotalScore,
			AgentDeltas:      agentMap(resp.Delta.AgentDeltas),
			RiskLevelChanged: base.RiskLevel != sim.RiskLevel,
		},
		Version: resp.SimulationVersion,
	}
}

func newOutcome(o backend.Outcome) Outcome {
	return Outcome{
		TotalScore:  o.TotalScore,
		RiskLevel:   risk.ClassifyScore(o.TotalScore),
		AgentScores: agentMap(o.AgentScores),
	}
}

// clone copies the maps so callers never share them with the cache.
func (r Result) clone() Result {
	r.Baseline.AgentScores = maps.Clone(r.Baseline.AgentScores)
	r.Simulated.AgentScores = maps.Clone(r.Simulated.AgentScores)
	r.Delta.AgentDeltas = maps.Clone(r.Delta.AgentDeltas)
	return r
}

func agentMap(in map[string]float64) map[risk.AgentKey]float64 {
	if len(in) == 0 {
		return nil
	}
	out := make(map[risk.AgentKey]float64, len(in))
	for name, v := range in {
		if k, err := risk.ParseAgentKey(name); err == nil {
			out[k] = v
		}
	}
	return out
}
