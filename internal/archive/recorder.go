package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"meridian/internal/logging"
	"meridian/internal/risk"
)

// Source is anything that publishes analysis transitions.
type Source interface {
	Subscribe(fn func(*risk.AnalysisState)) func()
}

// Recorder archives every Ready state once per run. Writes happen off the
// notifying goroutine; failures are logged and not retried.
type Recorder struct {
	store   Store
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger

	recorded *lru.Cache[string, struct{}]
	wg       sync.WaitGroup
}

// recentRuns bounds how many run IDs are remembered for deduplication. A
// run's Ready state is published once, so only recent runs matter.
const recentRuns = 64

func NewRecorder(store Store) *Recorder {
	recorded, _ := lru.New[string, struct{}](recentRuns)
	return &Recorder{
		store:    store,
		timeout:  15 * time.Second,
		now:      time.Now,
		log:      logging.New("archive"),
		recorded: recorded,
	}
}

// Attach subscribes the recorder to src and returns the unsubscribe func.
func (r *Recorder) Attach(src Source) func() {
	return src.Subscribe(r.Observe)
}

// Observe archives st if it is the first Ready state seen for its run.
func (r *Recorder) Observe(st *risk.AnalysisState) {
	if r == nil || st == nil || st.Status != risk.StatusReady || st.RunID == "" {
		return
	}
	if seen, _ := r.recorded.ContainsOrAdd(st.RunID, struct{}{}); seen {
		return
	}

	report := NewReport(st, r.now())
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.store.Put(ctx, report); err != nil {
			r.log.Error("archive report", "run_id", report.RunID, "error", err)
			return
		}
		r.log.Info("report archived", "run_id", report.RunID)
	}()
}

// Wait blocks until every pending write has finished.
func (r *Recorder) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}
