// Package health reports whether the minter keeps up with the source chain.
package health

import "github.com/vietddude/minter/internal/infra/rpc/provider"

// SystemStatus represents the overall health state of the minter or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// NetworkHealth contains the health of the ledger for one source network.
type NetworkHealth struct {
	Network            string                           `json:"network"`
	Status             SystemStatus                     `json:"status"`
	LastScrapedBlock   string                           `json:"last_scraped_block"`
	LastObservedBlock  string                           `json:"last_observed_block,omitempty"`
	BlockLag           uint64                           `json:"block_lag"`
	Pending            int                              `json:"pending"`
	Minted             int                              `json:"minted"`
	Invalid            int                              `json:"invalid"`
	Quarantined        int                              `json:"quarantined"`
	SkippedBlocks      int                              `json:"skipped_blocks"`
	InconsistentRanges int                              `json:"inconsistent_ranges"`
	UnflushedEvents    int                              `json:"unflushed_events"`
	ActiveTasks        []string                         `json:"active_tasks"`
	Providers          map[string]provider.HealthStatus `json:"providers"`
	Dependencies       map[string]string                `json:"dependencies,omitempty"`
	Reasons            []string                         `json:"reasons,omitempty"`
}

// HealthReport contains the full health report.
type HealthReport struct {
	SystemStatus SystemStatus  `json:"system_status"`
	Network      NetworkHealth `json:"network"`
}
