package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "courtq"

var (
	once sync.Once

	admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Slot requests by outcome.",
		},
		[]string{"outcome"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Reservation state transitions by target status and trigger.",
		},
		[]string{"status", "trigger"},
	)

	promotions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Promotion attempts by result.",
		},
		[]string{"result"},
	)

	txConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_tx_conflicts_total",
			Help:      "Slot transactions that exhausted their retries.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one expiry sweep pass.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	sweepReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_reclaimed_total",
			Help:      "Holds reclaimed by the sweeper.",
		},
	)

	kafkaMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_messages_total",
			Help:      "Kafka messages by direction and result.",
		},
		[]string{"direction", "result"},
	)

	kafkaDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_message_duration_seconds",
			Help:      "Kafka publish and handle latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"direction"},
	)

	httpRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			admissions, transitions, promotions, txConflicts,
			sweepDuration, sweepReclaimed,
			kafkaMessages, kafkaDuration, httpRequests,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func IncAdmission(outcome string) {
	admissions.WithLabelValues(outcome).Inc()
}

func IncTransition(status, trigger string) {
	transitions.WithLabelValues(status, trigger).Inc()
}

func IncPromotion(result string) {
	promotions.WithLabelValues(result).Inc()
}

func IncTxConflict() {
	txConflicts.Inc()
}

func ObserveSweep(d time.Duration, reclaimed int) {
	sweepDuration.Observe(d.Seconds())
	sweepReclaimed.Add(float64(reclaimed))
}

func ObserveKafka(direction string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	kafkaMessages.WithLabelValues(direction, result).Inc()
	kafkaDuration.WithLabelValues(direction).Observe(d.Seconds())
}

func ObserveHTTP(method string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}
