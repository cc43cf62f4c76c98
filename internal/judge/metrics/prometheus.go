package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTime = time.Now()

	// UptimeSeconds tracks the judge engine uptime in seconds
	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "uptime_seconds",
		Help:      "Time passed since the judge engine started in seconds",
	})

	// Attack observation metrics
	AttacksObservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "attacks_observed_total",
		Help:      "Attack attempts observed",
	})

	// Verification metrics
	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "verifications_total",
		Help:      "Exploit claim verifications (result=valid/rejected)",
	}, []string{"result"})

	// Payout metrics
	BountiesPaidTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "bounties_paid_total",
		Help:      "Bounty payouts by severity",
	}, []string{"severity"})

	BountyAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "bounty_amount_total",
		Help:      "Cumulative bounty tokens paid out",
	})

	DailyBudgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "daily_budget_remaining",
		Help:      "Bounty tokens remaining in the current daily budget",
	})

	// Proof submission metrics
	ProofSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "proof_submissions_total",
		Help:      "Proof submissions to the verification service (status=success/failure)",
	}, []string{"status"})

	// Registry side-effect metrics
	RegistryWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "registry_writes_total",
		Help:      "Reputation registry writes (status=success/failure)",
	}, []string{"status"})

	// Internal error metrics
	ErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "errors_total",
		Help:      "Internal engine errors",
	})

	// Memory usage metrics
	MemoryUsageBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "memory_usage_bytes",
		Help:      "Memory consumption",
	})

	// CPU usage metrics
	CPUUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "cpu_usage_percent",
		Help:      "CPU utilization percentage",
	})

	// Goroutines active metrics
	GoroutinesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oxguard",
		Subsystem: "judge",
		Name:      "goroutines_active",
		Help:      "Active Go routines",
	})
)
