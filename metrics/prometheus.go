package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Collector backed by Prometheus vectors.
type Prometheus struct {
	ringServers        *prometheus.GaugeVec
	ringVirtualNodes   *prometheus.GaugeVec
	ringHistorySize    *prometheus.GaugeVec
	ringEvictions      *prometheus.CounterVec
	leaderStatus       *prometheus.GaugeVec
	leaderTransitions  *prometheus.CounterVec
	leadershipDuration *prometheus.HistogramVec
	electionErrors     *prometheus.CounterVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus creates and registers the collectors on reg.
// A nil reg uses prometheus.DefaultRegisterer and an empty namespace defaults to "coordination".
// Registration fails if the same namespace was already registered on reg.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "coordination"
	}

	var p = &Prometheus{
		ringServers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hashring",
			Name:      "servers",
			Help:      "Current number of servers on the ring.",
		}, []string{"ring"}),
		ringVirtualNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hashring",
			Name:      "virtual_nodes",
			Help:      "Current number of virtual nodes on the ring.",
		}, []string{"ring"}),
		ringHistorySize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hashring",
			Name:      "history_snapshots",
			Help:      "Number of configuration snapshots retained in history.",
		}, []string{"ring"}),
		ringEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hashring",
			Name:      "snapshot_evictions_total",
			Help:      "Total snapshots evicted from history by the evict-oldest policy.",
		}, []string{"ring"}),
		leaderStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "election",
			Name:      "leader_status",
			Help:      "Current leader election status (1 = leader, 0 = follower).",
		}, []string{"election", "participant"}),
		leaderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "election",
			Name:      "transitions_total",
			Help:      "Total number of leadership transitions.",
		}, []string{"election", "participant", "transition"}),
		leadershipDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "election",
			Name:      "leadership_duration_seconds",
			Help:      "Duration in seconds a participant held leadership.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 15),
		}, []string{"election", "participant"}),
		electionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "election",
			Name:      "errors_total",
			Help:      "Total number of lease store errors by operation.",
		}, []string{"election", "participant", "operation"}),
	}

	for _, c := range []prometheus.Collector{
		p.ringServers,
		p.ringVirtualNodes,
		p.ringHistorySize,
		p.ringEvictions,
		p.leaderStatus,
		p.leaderTransitions,
		p.leadershipDuration,
		p.electionErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Prometheus) RecordRingTopology(ring string, servers, virtualNodes int) {
	p.ringServers.WithLabelValues(ring).Set(float64(servers))
	p.ringVirtualNodes.WithLabelValues(ring).Set(float64(virtualNodes))
}

func (p *Prometheus) RecordHistorySize(ring string, size int) {
	p.ringHistorySize.WithLabelValues(ring).Set(float64(size))
}

func (p *Prometheus) RecordSnapshotEviction(ring string) {
	p.ringEvictions.WithLabelValues(ring).Inc()
}

func (p *Prometheus) RecordLeaderStatus(election, participant string, isLeader bool) {
	var v float64
	if isLeader {
		v = 1
	}
	p.leaderStatus.WithLabelValues(election, participant).Set(v)
}

func (p *Prometheus) RecordLeaderTransition(election, participant, transition string) {
	p.leaderTransitions.WithLabelValues(election, participant, transition).Inc()
}

func (p *Prometheus) RecordLeadershipDuration(election, participant string, held time.Duration) {
	p.leadershipDuration.WithLabelValues(election, participant).Observe(held.Seconds())
}

func (p *Prometheus) RecordElectionError(election, participant, operation string) {
	p.electionErrors.WithLabelValues(election, participant, operation).Inc()
}
