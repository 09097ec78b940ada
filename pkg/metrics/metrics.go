package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/raterudder/powerwall-tou/pkg/common"
	"github.com/raterudder/powerwall-tou/pkg/log"
)

const (
	metricPrefix = "tou_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultDryRun  = "dry_run"
)

// Recorder holds the metrics of a single batch run on its own registry. The
// run exits right after publishing so the metrics are pushed to a Pushgateway
// rather than scraped.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	duration      prometheus.Histogram
	liveIntervals prometheus.Gauge
	spikeSlots    prometheus.Gauge
	lastSuccess   prometheus.Gauge

	pushURL string
	job     string
	client  *http.Client
}

// New returns a Recorder that doesn't push anywhere.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		job:      "tou_updater",
		client:   common.HTTPClient(10 * time.Second),
	}
	r.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metricPrefix + "run_total",
			Help: "Total tariff update runs by result",
		},
		[]string{"result"},
	)
	r.duration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    metricPrefix + "run_duration_seconds",
			Help:    "Tariff update run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	r.liveIntervals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "live_intervals",
			Help: "Number of live forecast intervals used in the last run",
		},
	)
	r.spikeSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "spike_slots",
			Help: "Number of slots overridden by a live spike in the last run",
		},
	)
	r.lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: metricPrefix + "last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
	)
	r.registry.MustRegister(r.runs, r.duration, r.liveIntervals, r.spikeSlots, r.lastSuccess)
	return r
}

// Configured sets up the Recorder based on flags.
func Configured() *Recorder {
	pushURL := lflag.String("pushgateway-url", "", "URL of a Prometheus Pushgateway to push run metrics to (optional)")
	job := lflag.String("pushgateway-job", "tou_updater", "Job name used when pushing metrics")

	r := New()
	lflag.Do(func() {
		r.SetPushGateway(*pushURL, *job)
	})
	return r
}

// SetPushGateway sets where Push sends the metrics. An empty url disables
// pushing and an empty job keeps the current one.
func (r *Recorder) SetPushGateway(url, job string) {
	r.pushURL = url
	if job != "" {
		r.job = job
	}
}

// Registry returns the registry the metrics are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records the result and duration of a run.
func (r *Recorder) ObserveRun(result string, d time.Duration) {
	r.runs.WithLabelValues(result).Inc()
	r.duration.Observe(d.Seconds())
	if result == ResultSuccess {
		r.lastSuccess.SetToCurrentTime()
	}
}

// SetLiveIntervals records how many live intervals were used.
func (r *Recorder) SetLiveIntervals(n int) {
	r.liveIntervals.Set(float64(n))
}

// SetSpikeSlots records how many slots were overridden by a spike.
func (r *Recorder) SetSpikeSlots(n int) {
	r.spikeSlots.Set(float64(n))
}

// Push sends the metrics to the Pushgateway if one is configured. Errors are
// logged and returned but shouldn't fail the run.
func (r *Recorder) Push(ctx context.Context) error {
	if r.pushURL == "" {
		return nil
	}
	err := push.New(r.pushURL, r.job).
		Gatherer(r.registry).
		Client(r.client).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", r.pushURL, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "pushed metrics", slog.String("url", r.pushURL), slog.String("job", r.job))
	return nil
}
