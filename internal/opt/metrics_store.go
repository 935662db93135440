package opt

import "sync"

// recentRuns bounds how many search summaries are kept per tenant.
const recentRuns = 50

type runMetrics struct {
	RunID   string
	Metrics Metrics
}

var (
	mu    sync.Mutex
	store = map[string][]runMetrics{}
)

// RecordMetrics keeps the summary of a finished search for the admin
// metrics endpoint. Snapshots are dropped; they live with the run.
func RecordMetrics(tenant, runID string, m Metrics) {
	m.Snapshots = nil
	mu.Lock()
	defer mu.Unlock()
	runs := append(store[tenant], runMetrics{RunID: runID, Metrics: m})
	if len(runs) > recentRuns {
		runs = runs[len(runs)-recentRuns:]
	}
	store[tenant] = runs
}

// GetMetrics returns the recent search summaries of a tenant keyed by run id.
func GetMetrics(tenant string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]Metrics, len(store[tenant]))
	for _, r := range store[tenant] {
		out[r.RunID] = r.Metrics
	}
	return out
}
