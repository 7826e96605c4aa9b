package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// solveTotal counts operating point solves by result
	solveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuitsolver_solve_total",
		Help: "Total operating point solves by result",
	}, []string{"result"})

	// solveDuration tracks the wall time of a whole partition search
	solveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "circuitsolver_solve_duration_seconds",
		Help:    "Operating point solve duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	})

	solveAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "circuitsolver_solve_attempts",
		Help:    "Partition searches needed before a solve was accepted",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100},
	})

	// partitionsTotal counts solved partitions by solver termination
	partitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuitsolver_partitions_total",
		Help: "Total partitions solved by termination type",
	}, []string{"termination"})
)
