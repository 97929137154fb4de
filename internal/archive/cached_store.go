package archive

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type CacheConfig struct {
	ReportTTL        time.Duration
	ReportMaxEntries int

	ListTTL time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ReportTTL:        10 * time.Minute,
		ReportMaxEntries: 256,
		ListTTL:          30 * time.Second,
	}
}

type MetricsSnapshot struct {
	ReportHits     uint64
	ReportMisses   uint64
	ListHits       uint64
	ListMisses     uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type Metrics struct {
	reportHits     atomic.Uint64
	reportMisses   atomic.Uint64
	listHits       atomic.Uint64
	listMisses     atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		ReportHits:     m.reportHits.Load(),
		ReportMisses:   m.reportMisses.Load(),
		ListHits:       m.listHits.Load(),
		ListMisses:     m.listMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

const listKey = "*"

// CachedStore is a read-through, write-through cache in front of an origin
// store. Reports are immutable once archived, so cached copies stay valid
// until they expire or are evicted.
type CachedStore struct {
	origin Store

	reports *expirable.LRU[string, []byte]
	lists   *expirable.LRU[string, []string]
	metrics Metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.ReportTTL <= 0 {
		cfg.ReportTTL = def.ReportTTL
	}
	if cfg.ReportMaxEntries <= 0 {
		cfg.ReportMaxEntries = def.ReportMaxEntries
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	return &CachedStore{
		origin:  origin,
		reports: expirable.NewLRU[string, []byte](cfg.ReportMaxEntries, nil, cfg.ReportTTL),
		lists:   expirable.NewLRU[string, []string](1, nil, cfg.ListTTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, report Report) error {
	s.metrics.originWrites.Add(1)
	if err := s.origin.Put(ctx, report); err != nil {
		s.metrics.originWriteErr.Add(1)
		return err
	}
	if raw, err := encode(report); err == nil {
		s.reports.Add(strings.TrimSpace(report.RunID), raw)
	}
	s.lists.Remove(listKey)
	return nil
}

// Get decodes a fresh copy on every call so callers never share a state.
func (s *CachedStore) Get(ctx context.Context, runID string) (Report, error) {
	runID = strings.TrimSpace(runID)
	if raw, ok := s.reports.Get(runID); ok {
		s.metrics.reportHits.Add(1)
		return decode(raw)
	}
	s.metrics.reportMisses.Add(1)
	s.metrics.originReads.Add(1)

	report, err := s.origin.Get(ctx, runID)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return Report{}, err
	}
	if raw, err := encode(report); err == nil {
		s.reports.Add(runID, raw)
	}
	return report, nil
}

func (s *CachedStore) List(ctx context.Context) ([]string, error) {
	if ids, ok := s.lists.Get(listKey); ok {
		s.metrics.listHits.Add(1)
		return append([]string(nil), ids...), nil
	}
	s.metrics.listMisses.Add(1)
	s.metrics.originReads.Add(1)

	ids, err := s.origin.List(ctx)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.lists.Add(listKey, append([]string(nil), ids...))
	return ids, nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.snapshot()
}

// Close releases the origin store if it holds resources.
func (s *CachedStore) Close() error {
	if c, ok := s.origin.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
