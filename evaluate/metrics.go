package evaluate

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	statementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mydb_statements_total",
		Help: "Count of statements executed by kind",
	}, []string{"kind"})
	statementErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mydb_statement_errors_total",
		Help: "Count of failed statements by kind and error class",
	}, []string{"kind", "class"})
	statementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mydb_statement_duration_seconds",
		Help:    "Histogram of statement run times",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1.0, 10.0},
	})
	commitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mydb_commits_total",
		Help: "Count of committed transactions",
	})
	commitConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mydb_commit_conflicts_total",
		Help: "Count of transactions aborted by a write conflict at commit",
	})
	sessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mydb_sessions",
		Help: "Number of open sessions",
	})
)

func init() {
	prometheus.MustRegister(statementsTotal)
	prometheus.MustRegister(statementErrors)
	prometheus.MustRegister(statementDuration)
	prometheus.MustRegister(commitsTotal)
	prometheus.MustRegister(commitConflicts)
	prometheus.MustRegister(sessionsGauge)
}
