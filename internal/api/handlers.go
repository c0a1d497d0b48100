package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/shadowsync/internal/journal"
	"github.com/nerrad567/shadowsync/internal/shadow"
)

// checkTimeout bounds each component probe in /healthz.
const checkTimeout = 2 * time.Second

// Health response states.
const (
	healthOK          = "ok"
	healthDegraded    = "degraded"
	healthUnavailable = "unavailable"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Engine  string            `json:"engine"`
	Link    string            `json:"link"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// ShadowResponse is the body of GET /shadow.
type ShadowResponse struct {
	shadow.Snapshot
	Document json.RawMessage `json:"document"`
}

// handleHealth reports engine liveness and component checks.
//
// 200 "ok" when the engine runs and every check passes, 200 "degraded" when
// a check fails, 503 "unavailable" when the engine is not running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	resp := HealthResponse{
		Status:  healthOK,
		Version: s.version,
		Engine:  snap.State,
		Link:    snap.Health,
		Checks:  s.runChecks(r.Context()),
	}

	for _, result := range resp.Checks {
		if result != healthOK {
			resp.Status = healthDegraded
			break
		}
	}

	code := http.StatusOK
	if snap.State != shadow.StateRunning || snap.Health == shadow.HealthFatal.String() {
		resp.Status = healthUnavailable
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// runChecks probes every component concurrently.
func (s *Server) runChecks(ctx context.Context) map[string]string {
	if len(s.checks) == 0 {
		return nil
	}

	results := make(map[string]string, len(s.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, checker := range s.checks {
		name, checker := name, checker
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			result := healthOK
			if err := checker.HealthCheck(cctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// handleShadow returns the last report document and engine counters.
// Document is null until the first report is submitted.
func (s *Server) handleShadow(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	resp := ShadowResponse{Snapshot: snap}
	if len(snap.Document) > 0 {
		resp.Document = json.RawMessage(snap.Document)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeltaHistory lists journalled deltas for the engine's thing.
//
// Query parameters: key (optional), limit (optional, 1..500).
func (s *Server) handleDeltaHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	thing := s.engine.Snapshot().Thing
	entries, err := s.journal.DeltaHistory(r.Context(), thing, r.URL.Query().Get("key"), limit)
	if err != nil {
		s.logger.Error("reading delta history failed", "error", err)
		writeInternalError(w, "failed to read journal")
		return
	}
	if entries == nil {
		entries = []journal.DeltaEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"thing":  thing,
		"deltas": entries,
		"count":  len(entries),
	})
}

// AckCount is one row of GET /journal/acks.
type AckCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// handleAckCounts summarises journalled ack outcomes.
func (s *Server) handleAckCounts(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "journal is disabled")
		return
	}

	thing := s.engine.Snapshot().Thing
	counts, err := s.journal.AckCounts(r.Context(), thing)
	if err != nil {
		s.logger.Error("reading ack counts failed", "error", err)
		writeInternalError(w, "failed to read journal")
		return
	}

	acks := make([]AckCount, 0, len(counts))
	for status, n := range counts {
		acks = append(acks, AckCount{Status: status, Count: n})
	}
	sort.Slice(acks, func(i, j int) bool { return acks[i].Status < acks[j].Status })

	writeJSON(w, http.StatusOK, map[string]any{
		"thing": thing,
		"acks":  acks,
	})
}
