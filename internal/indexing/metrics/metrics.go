package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LastScrapedBlock tracks the scrape cursor per network
	LastScrapedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minter_last_scraped_block",
			Help: "Last block whose deposit logs were scraped",
		},
		[]string{"network"},
	)

	// LastObservedBlock tracks the latest block seen at the configured tag
	LastObservedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minter_last_observed_block",
			Help: "Latest block observed at the configured block tag",
		},
		[]string{"network"},
	)

	// BlocksScraped counts blocks covered by successful eth_getLogs ranges
	BlocksScraped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_blocks_scraped_total",
			Help: "Total number of blocks scraped",
		},
		[]string{"network"},
	)

	// SkippedBlocks counts blocks that could not be scraped even alone
	SkippedBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_skipped_blocks_total",
			Help: "Total number of blocks recorded as skipped",
		},
		[]string{"network"},
	)

	// Deposits counts deposit sources by lifecycle outcome
	Deposits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_deposits_total",
			Help: "Total number of deposit events by outcome",
		},
		[]string{"network", "outcome"},
	)

	// MintFailures counts failed mint calls by failure kind
	MintFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_mint_failures_total",
			Help: "Total number of failed mint calls",
		},
		[]string{"network", "kind"},
	)

	// InconsistentResults counts calls where providers disagreed
	InconsistentResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_inconsistent_results_total",
			Help: "Total number of multi-provider calls with inconsistent results",
		},
		[]string{"network", "method"},
	)

	// BaseFeePerGas tracks the last base fee estimate in wei
	BaseFeePerGas = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minter_base_fee_per_gas_wei",
			Help: "Last observed base fee per gas in wei",
		},
		[]string{"network"},
	)

	// RPCCallsTotal tracks RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"network", "provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"network", "provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minter_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "provider", "method"},
	)

	// TaskRuns counts task executions by result (ok, error, busy, fatal)
	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_task_runs_total",
			Help: "Total number of task runs",
		},
		[]string{"task", "result"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minter_task_duration_seconds",
			Help:    "Task run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// AuditEventsFlushed counts audit events persisted to the audit log
	AuditEventsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minter_audit_events_flushed_total",
			Help: "Total number of audit events persisted",
		},
	)

	// UnflushedAuditEvents tracks the journal length after each flush attempt
	UnflushedAuditEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minter_audit_events_unflushed",
			Help: "Number of audit events not yet persisted",
		},
	)

	// DBConnectionPoolUsage tracks the percentage of open connections in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minter_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// DBBatchSize tracks the number of rows written per batch insert
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minter_db_batch_size",
			Help:    "Number of rows per batch insert",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"operation"},
	)
)
