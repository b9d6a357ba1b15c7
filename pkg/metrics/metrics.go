package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Commit Generator metrics
	CommitsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacmanostree_commits_generated_total",
			Help: "Total number of commits generated from a rootfs, by outcome",
		},
		[]string{"outcome"},
	)

	CommitGenerateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacmanostree_commit_generate_duration_seconds",
			Help:    "Time taken to generate a commit from a rootfs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommitCheckoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacmanostree_commit_checkout_duration_seconds",
			Help:    "Time taken to check out a commit to a directory in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Object store metrics
	ObjectsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacmanostree_objects_written_total",
			Help: "Total number of objects written to the store, by kind",
		},
		[]string{"kind"},
	)

	ObjectsDedupedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pacmanostree_objects_deduped_total",
			Help: "Total number of object writes skipped because the checksum already existed",
		},
	)

	StoreSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacmanostree_store_size_bytes",
			Help: "Total size of objects flushed to the store by committed transactions in this process, in bytes",
		},
	)

	// Layered-state engine metrics
	PackagesInstalledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pacmanostree_packages_installed_total",
			Help: "Total number of layered packages installed",
		},
	)

	PackagesRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pacmanostree_packages_removed_total",
			Help: "Total number of layered packages removed",
		},
	)

	RebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacmanostree_rebuild_duration_seconds",
			Help:    "Time taken to rebuild a layered commit from a base and its layered packages",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// Encapsulator metrics
	EncapsulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacmanostree_encapsulations_total",
			Help: "Total number of OCI archive encapsulations, by outcome",
		},
		[]string{"outcome"},
	)

	EncapsulationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacmanostree_encapsulation_duration_seconds",
			Help:    "Time taken to produce an OCI archive from a commit in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	LayersProducedTotal = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacmanostree_layers_produced",
			Help:    "Number of OCI layers produced per encapsulation",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	LayerSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacmanostree_layer_size_bytes",
			Help:    "Size distribution of produced OCI layers, in bytes",
			Buckets: prometheus.ExponentialBuckets(1<<20, 4, 10),
		},
	)

	// Deployment metrics
	DeploymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacmanostree_deployments_total",
			Help: "Total number of deployment attempts, by status",
		},
		[]string{"status"},
	)

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pacmanostree_deployment_duration_seconds",
			Help:    "Time taken to deploy a staged commit in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Commit Generator tree-walk metrics
	SpecialFilesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pacmanostree_special_files_skipped_total",
			Help: "Total number of special files (device, socket, FIFO) skipped during the commit generator's tree walk",
		},
	)
)

func init() {
	prometheus.MustRegister(CommitsGeneratedTotal)
	prometheus.MustRegister(CommitGenerateDuration)
	prometheus.MustRegister(CommitCheckoutDuration)
	prometheus.MustRegister(ObjectsWrittenTotal)
	prometheus.MustRegister(ObjectsDedupedTotal)
	prometheus.MustRegister(StoreSizeBytes)
	prometheus.MustRegister(PackagesInstalledTotal)
	prometheus.MustRegister(PackagesRemovedTotal)
	prometheus.MustRegister(RebuildDuration)
	prometheus.MustRegister(EncapsulationsTotal)
	prometheus.MustRegister(EncapsulationDuration)
	prometheus.MustRegister(LayersProducedTotal)
	prometheus.MustRegister(LayerSizeBytes)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(SpecialFilesSkippedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
