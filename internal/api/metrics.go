package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ncuskey/solid-couscous/internal/events"
	"github.com/ncuskey/solid-couscous/internal/lockbox"
	"github.com/ncuskey/solid-couscous/internal/version"
)

const namespace = "lockbox"

var startTime = time.Now()

var (
	solveSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "solve_signals_total",
		Help:      "Solve signals received, by puzzle and result.",
	}, []string{"puzzle", "result"})

	puzzlesSolved = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "puzzles_solved",
		Help:      "Distinct puzzles solved since boot.",
	})

	lockUnlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "unlocked",
		Help:      "Whether the lock has been released (1) or not (0).",
	})

	actuationFaults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actuation_faults_total",
		Help:      "Lock releases that failed at the hardware.",
	})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the process started.",
	}, func() float64 { return time.Since(startTime).Seconds() })

	_ = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Events emitted since startup.",
	}, func() float64 { return float64(events.TotalCount()) })

	_ = promauto.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Events not persisted because the audit writer fell behind.",
	}, func() float64 { return float64(events.Dropped()) })

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Active WebSocket event stream clients.",
	}, func() float64 { return float64(events.SubscriberCount()) })

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mqtt_connected",
		Help:      "Whether the MQTT broker is connected (1) or not (0).",
	}, func() float64 {
		readiness.mu.RLock()
		defer readiness.mu.RUnlock()
		return boolGauge(readiness.mqttConnected)
	})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "postgres_connected",
		Help:      "Whether PostgreSQL is connected (1) or not (0).",
	}, func() float64 {
		readiness.mu.RLock()
		defer readiness.mu.RUnlock()
		return boolGauge(readiness.postgresConnected)
	})

	buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build version of the running binary.",
	}, []string{"version"})
)

func init() {
	buildInfo.WithLabelValues(version.Version).Set(1)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// recordSolve folds one solve outcome into the metrics.
func recordSolve(out lockbox.Outcome) {
	label := "invalid"
	if out.Result != lockbox.ResultIgnored {
		label = strconv.Itoa(out.Identity.Number())
	}
	solveSignals.WithLabelValues(label, string(out.Result)).Inc()

	if out.Result == lockbox.ResultIgnored {
		return
	}
	puzzlesSolved.Set(float64(out.Solved))
	lockUnlocked.Set(boolGauge(out.Unlocked))
	if out.Err != nil {
		actuationFaults.Inc()
	}
}
