package output

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tkjaer/mping/internal/shared"
)

// PrometheusOutput writes the latest report as a node_exporter textfile.
// Each report replaces the previous file contents.
type PrometheusOutput struct {
	path string
}

func NewPrometheusOutput(path string) *PrometheusOutput {
	return &PrometheusOutput{path: path}
}

type reportMetrics struct {
	mean        *prometheus.GaugeVec
	min         *prometheus.GaugeVec
	max         *prometheus.GaugeVec
	stddev      *prometheus.GaugeVec
	loss        *prometheus.GaugeVec
	percentile  *prometheus.GaugeVec
	probes      *prometheus.GaugeVec
	received    *prometheus.GaugeVec
	duration    prometheus.Gauge
	lastRunTime prometheus.Gauge
}

func newReportMetrics(reg prometheus.Registerer) *reportMetrics {
	labels := []string{"target", "address"}
	gauge := func(name, help string, extra ...string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mping",
			Name:      name,
			Help:      help,
		}, append(labels[:len(labels):len(labels)], extra...))
		reg.MustRegister(g)
		return g
	}

	m := &reportMetrics{
		mean:       gauge("rtt_mean_ms", "Mean round-trip time of successful probes in milliseconds."),
		min:        gauge("rtt_min_ms", "Minimum round-trip time in milliseconds."),
		max:        gauge("rtt_max_ms", "Maximum round-trip time in milliseconds."),
		stddev:     gauge("rtt_stddev_ms", "Population standard deviation of round-trip time in milliseconds."),
		loss:       gauge("loss_ratio", "Share of probes lost, between 0 and 1."),
		percentile: gauge("rtt_percentile_ms", "Round-trip time percentile in milliseconds.", "quantile"),
		probes:     gauge("probes_total", "Echo requests scheduled for the target."),
		received:   gauge("probes_received", "Echo replies received in time."),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mping",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the measurement run.",
		}),
		lastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mping",
			Name:      "run_timestamp_seconds",
			Help:      "Unix time the measurement run started.",
		}),
	}
	reg.MustRegister(m.duration, m.lastRunTime)
	return m
}

func (m *reportMetrics) observe(report shared.Report) {
	m.duration.Set(report.Duration.Seconds())
	m.lastRunTime.Set(float64(report.Started.UnixNano()) / 1e9)

	for _, r := range report.Results {
		l := prometheus.Labels{"target": r.Host, "address": r.Address}
		m.loss.With(l).Set(r.LossPct / 100)
		m.probes.With(l).Set(float64(r.Count))
		m.received.With(l).Set(float64(r.Received))
		if !r.HasRTT() {
			continue
		}
		m.mean.With(l).Set(r.RTT.Mean)
		m.min.With(l).Set(r.RTT.Min)
		m.max.With(l).Set(r.RTT.Max)
		m.stddev.With(l).Set(r.RTT.StdDev)
		for _, p := range r.Percentiles.Keys() {
			m.percentile.With(prometheus.Labels{
				"target":   r.Host,
				"address":  r.Address,
				"quantile": shared.FormatPercentile(p),
			}).Set(r.Percentiles[p])
		}
	}
}

func (p *PrometheusOutput) WriteReport(report shared.Report) error {
	reg := prometheus.NewRegistry()
	newReportMetrics(reg).observe(report)
	return prometheus.WriteToTextfile(p.path, reg)
}

func (p *PrometheusOutput) Close() error {
	return nil
}
