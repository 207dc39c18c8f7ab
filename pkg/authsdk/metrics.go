package authsdk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "authclient"

// metrics holds the client's Prometheus collectors. A nil *metrics records
// nothing.
type metrics struct {
	refreshTotal      *prometheus.CounterVec
	retryTotal        prometheus.Counter
	hardFailuresTotal *prometheus.CounterVec
	loginsTotal       *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)

	return &metrics{
		refreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refresh_total",
			Help:      "Refresh calls issued to the auth server, by result",
		}, []string{"result"}),

		retryTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "retry_total",
			Help:      "Requests re-issued after an unauthorized response",
		}),

		hardFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hard_failures_total",
			Help:      "Sessions cleared by a hard auth failure, by reason",
		}, []string{"reason"}),

		loginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "logins_total",
			Help:      "Login attempts by method and result",
		}, []string{"method", "result"}),
	}
}

func (m *metrics) refresh(result string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

func (m *metrics) retry() {
	if m == nil {
		return
	}
	m.retryTotal.Inc()
}

func (m *metrics) hardFailure(reason InvalidationReason) {
	if m == nil {
		return
	}
	m.hardFailuresTotal.WithLabelValues(string(reason)).Inc()
}

func (m *metrics) login(method, result string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(method, result).Inc()
}
