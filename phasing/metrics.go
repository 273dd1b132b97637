package phasing

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricsNamespace = "hac"
	MetricsSubsystem = "phasing"
)

type metrics struct {
	created       prometheus.Counter
	votes         prometheus.Counter
	outcomes      *prometheus.CounterVec
	releaseFaults prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "polls_created_total",
			Help:      "Number of phasing polls created.",
		}),
		votes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "votes_total",
			Help:      "Number of phasing votes recorded.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "outcomes_total",
			Help:      "Number of resolved phased transactions by outcome and resolution path.",
		}, []string{"outcome", "path"}),
		releaseFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "release_faults_total",
			Help:      "Number of releases that failed and were rejected instead.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.created, m.votes, m.outcomes, m.releaseFaults} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) outcome(o Outcome, early bool) {
	path := "forced"
	if early {
		path = "early"
	}
	m.outcomes.WithLabelValues(o.String(), path).Inc()
}
