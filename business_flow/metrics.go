package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sequenceIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sequence_values_issued_total",
			Help: "Sequence values handed out, by counter key",
		},
		[]string{"key"},
	)

	sequenceReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sequence_reconciliations_total",
			Help: "Times a counter was moved forward past an already issued value",
		},
		[]string{"key"},
	)

	sequenceConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sequence_conflicts_total",
			Help: "Sequence transactions aborted by the store because of contention",
		},
		[]string{"key"},
	)

	gtinGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtin_generated_total",
			Help: "GTINs written to products, by origin (assign, repair, import)",
		},
		[]string{"origin"},
	)

	gtinFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gtin_generation_failures_total",
			Help: "GTIN generation failures, by reason",
		},
		[]string{"reason"},
	)

	lotsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lots_received_total",
			Help: "Lots recorded, standalone or as part of a receipt",
		},
	)

	receiptsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "receipts_created_total",
			Help: "Receipts committed with all of their lots",
		},
	)

	voicePickChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_pick_verifications_total",
			Help: "Pick verifications, by method and outcome",
		},
		[]string{"method", "result"},
	)

	labelPrintJobsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "label_print_jobs_total",
			Help: "Label print jobs published to the print queue",
		},
	)
)
