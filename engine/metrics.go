package engine

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ftahirops/nbstat/model"
)

// Metrics exports the latest snapshot for Prometheus on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	CollectDuration prometheus.Histogram
	CollectorErrors *prometheus.CounterVec

	Processes prometheus.Gauge
	Kernels   prometheus.Gauge

	DeviceUtil        *prometheus.GaugeVec
	DeviceMemoryUsed  *prometheus.GaugeVec
	DeviceMemoryTotal *prometheus.GaugeVec
	DeviceTemperature *prometheus.GaugeVec
	DevicePower       *prometheus.GaugeVec
	DeviceProcesses   *prometheus.GaugeVec
	ProcessDeviceMem  *prometheus.GaugeVec

	HostCPU    prometheus.Gauge
	HostMemory prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	device := []string{"device", "uuid"}
	m := &Metrics{
		Registry: reg,

		CollectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nbstat_collect_duration_seconds",
			Help:    "Duration of one collection tick in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		CollectorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nbstat_collector_errors_total",
			Help: "Total number of failed source queries.",
		}, []string{"source"}),

		Processes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nbstat_tracked_processes",
			Help: "Number of tracked interpreter processes.",
		}),
		Kernels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nbstat_kernels",
			Help: "Number of kernels reported by notebook servers.",
		}),

		DeviceUtil: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nbstat_device_utilization_percent",
			Help: "Device compute utilization.",
		}, device),
		DeviceMemoryUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nbstat_device_memory_used_bytes",
			Help: "Device memory in use.",
		}, device),
		DeviceMemoryTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nbstat_device_memory_total_bytes",
			Help: "Device memory capacity.",
		}, device),
		DeviceTemperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nbstat_device_temperature_celsius",
			Help: "Device temperature.",
		}, device),
		DevicePower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nbstat_device_power_watts",
			Help: "Device power draw.",
		}, device),
		DeviceProcesses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nbstat_device_processes",
			Help: "Number of processes holding a device.",
		}, device),
		ProcessDeviceMem: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nbstat_process_device_memory_bytes",
			Help: "Device memory held by a host process.",
		}, []string{"device", "pid"}),

		HostCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nbstat_host_cpu_percent",
			Help: "Host CPU utilization.",
		}),
		HostMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nbstat_host_memory_used_bytes",
			Help: "Host memory in use.",
		}),
	}

	reg.MustRegister(
		m.CollectDuration, m.CollectorErrors,
		m.Processes, m.Kernels,
		m.DeviceUtil, m.DeviceMemoryUsed, m.DeviceMemoryTotal, m.DeviceTemperature,
		m.DevicePower, m.DeviceProcesses, m.ProcessDeviceMem,
		m.HostCPU, m.HostMemory,
	)
	return m
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) collectorError(source string) {
	if m == nil {
		return
	}
	m.CollectorErrors.WithLabelValues(source).Inc()
}

// observe replaces the per-device series with the values of snap.
func (m *Metrics) observe(snap *model.Snapshot, took time.Duration) {
	if m == nil {
		return
	}
	m.CollectDuration.Observe(took.Seconds())
	m.Processes.Set(float64(len(snap.Processes)))
	m.Kernels.Set(float64(len(snap.Kernels)))
	if p := snap.System.CPUPercent; p != nil {
		m.HostCPU.Set(*p)
	}
	m.HostMemory.Set(float64(snap.System.MemoryUsed))

	for _, vec := range []*prometheus.GaugeVec{
		m.DeviceUtil, m.DeviceMemoryUsed, m.DeviceMemoryTotal, m.DeviceTemperature,
		m.DevicePower, m.DeviceProcesses, m.ProcessDeviceMem,
	} {
		vec.Reset()
	}
	for _, d := range snap.Devices.Devices {
		idx := strconv.Itoa(d.Index)
		set := func(vec *prometheus.GaugeVec, v *float64) {
			if v != nil {
				vec.WithLabelValues(idx, d.UUID).Set(*v)
			}
		}
		set(m.DeviceUtil, d.Util)
		set(m.DeviceTemperature, d.Temperature)
		set(m.DevicePower, d.PowerDraw)
		if d.MemoryUsed != nil {
			m.DeviceMemoryUsed.WithLabelValues(idx, d.UUID).Set(float64(*d.MemoryUsed))
		}
		if d.MemoryTotal != nil {
			m.DeviceMemoryTotal.WithLabelValues(idx, d.UUID).Set(float64(*d.MemoryTotal))
		}
		m.DeviceProcesses.WithLabelValues(idx, d.UUID).Set(float64(len(d.Processes)))
		for _, p := range d.Processes {
			if p.MemoryUsed != nil {
				m.ProcessDeviceMem.WithLabelValues(idx, strconv.Itoa(int(p.PID))).Add(float64(*p.MemoryUsed))
			}
		}
	}
}
