package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanCycles tracks scanner cycles by outcome (advanced, idle, failed, conflict)
	ScanCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boatwatch_scan_cycles_total",
			Help: "Total number of scanner cycles by result",
		},
		[]string{"result"},
	)

	// BlocksProcessed tracks total blocks committed behind the cursor
	BlocksProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boatwatch_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
	)

	// RecordsIngested tracks upserted records by type and initial status
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boatwatch_records_ingested_total",
			Help: "Total number of records produced by ingestion",
		},
		[]string{"type", "status"},
	)

	// Anomalies tracks anomaly reasons raised by the normalizer
	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boatwatch_anomalies_total",
			Help: "Total number of anomalies detected during ingestion",
		},
		[]string{"reason"},
	)

	// RPCCallsTotal tracks RPC calls per provider
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boatwatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per provider
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boatwatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boatwatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "method"},
	)

	// ChainLatestBlock tracks the latest block height of the ledger
	ChainLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boatwatch_chain_latest_block",
			Help: "Latest block height of the ledger",
		},
	)

	// IndexerLatestBlock tracks the cursor
	IndexerLatestBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boatwatch_indexer_latest_block",
			Help: "Last block fully processed",
		},
	)

	// ScannerLag is the distance between ledger head and cursor
	ScannerLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boatwatch_scanner_lag_blocks",
			Help: "Blocks between the ledger head and the cursor",
		},
	)

	// ScannerConsecutiveFailures counts failed attempts on the current range
	ScannerConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boatwatch_scanner_consecutive_failures",
			Help: "Consecutive failed attempts on the current range",
		},
	)

	// ScannerHalted is 1 once the scanner stopped on an unrecoverable error
	ScannerHalted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boatwatch_scanner_halted",
			Help: "Set to 1 when the scanner halted on an unrecoverable error",
		},
	)

	// CommitDuration tracks cursor+batch commit latency
	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boatwatch_commit_duration_seconds",
			Help:    "Duration of the atomic batch and cursor commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	// DBBatchSize tracks rows written per batch operation
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boatwatch_db_batch_size",
			Help:    "Rows written per batch operation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionPoolUsage tracks open connections as a percentage of the pool
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boatwatch_db_connection_pool_usage_percent",
			Help: "Open database connections as a percentage of the maximum",
		},
	)

	// Validations tracks validator actions by result
	Validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boatwatch_validations_total",
			Help: "Total number of validation requests by result",
		},
		[]string{"result"},
	)

	// RoleLookups tracks role gate lookups by source (cache, ledger)
	RoleLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boatwatch_role_lookups_total",
			Help: "Total number of role lookups by source",
		},
		[]string{"source"},
	)

	// RescanRanges tracks targeted re-scan ranges by result
	RescanRanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boatwatch_rescan_ranges_total",
			Help: "Total number of targeted re-scan ranges by result",
		},
		[]string{"result"},
	)
)
