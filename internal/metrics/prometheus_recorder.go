package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	opDuration    *prom.HistogramVec
	opResults     *prom.CounterVec
	knownReleases *prom.GaugeVec
	pruned        *prom.CounterVec
	purged        *prom.CounterVec
	evicted       *prom.CounterVec
	assetSyncs    *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the releasekeeper metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		opDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "releasekeeper",
			Name:      "operation_duration_seconds",
			Help:      "Duration of release history operations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"}),
		opResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasekeeper",
			Name:      "operation_results_total",
			Help:      "Release history operation results by outcome",
		}, []string{"operation", "result"}),
		knownReleases: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "releasekeeper",
			Name:      "known_releases",
			Help:      "Number of releases in the persisted history",
		}, []string{"app"}),
		pruned: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasekeeper",
			Name:      "pruned_releases_total",
			Help:      "History entries dropped because their directory was missing",
		}, []string{"app"}),
		purged: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasekeeper",
			Name:      "purged_directories_total",
			Help:      "Release directories deleted because they were not in history",
		}, []string{"app"}),
		evicted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasekeeper",
			Name:      "evicted_releases_total",
			Help:      "Releases forgotten and removed by the keep-releases policy",
		}, []string{"app"}),
		assetSyncs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "releasekeeper",
			Name:      "asset_syncs_total",
			Help:      "Asset manifest sync attempts by outcome",
		}, []string{"app", "result"}),
	}
	reg.MustRegister(pr.opDuration, pr.opResults, pr.knownReleases, pr.pruned, pr.purged, pr.evicted, pr.assetSyncs)
	return pr
}

func (p *PrometheusRecorder) ObserveOperation(op string, d time.Duration, result ResultLabel) {
	if p == nil {
		return
	}
	p.opDuration.WithLabelValues(op).Observe(d.Seconds())
	p.opResults.WithLabelValues(op, string(result)).Inc()
}

func (p *PrometheusRecorder) SetKnownReleases(app string, n int) {
	if p == nil {
		return
	}
	p.knownReleases.WithLabelValues(app).Set(float64(n))
}

func (p *PrometheusRecorder) AddPrunedReleases(app string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.pruned.WithLabelValues(app).Add(float64(n))
}

func (p *PrometheusRecorder) AddPurgedDirectories(app string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.purged.WithLabelValues(app).Add(float64(n))
}

func (p *PrometheusRecorder) AddEvictedReleases(app string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.evicted.WithLabelValues(app).Add(float64(n))
}

func (p *PrometheusRecorder) IncAssetSync(app string, result ResultLabel) {
	if p == nil {
		return
	}
	p.assetSyncs.WithLabelValues(app, string(result)).Inc()
}
