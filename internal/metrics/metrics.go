// Package metrics exports light entity state and command outcomes to
// Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dokzlo13/cyncd/internal/light"
)

// Command results
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the daemon's collectors.
type Metrics struct {
	lightOn         *prometheus.GaugeVec
	lightBrightness *prometheus.GaugeVec
	lightColorTemp  *prometheus.GaugeVec
	commands        *prometheus.CounterVec
	entities        prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lightOn: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cync_light_on",
				Help: "Whether the light entity is on (1) or off (0).",
			},
			[]string{"unique_id", "name"}),
		lightBrightness: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cync_light_brightness",
				Help: "Light brightness on host scale (0-255).",
			},
			[]string{"unique_id", "name"},
		),
		lightColorTemp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cync_light_color_temp_kelvin",
				Help: "Light color temperature in Kelvin.",
			},
			[]string{"unique_id", "name"},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cync_commands_total",
				Help: "Commands dispatched to Cync devices.",
			},
			[]string{"command", "result"},
		),
		entities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cync_entities",
				Help: "Number of registered light entities.",
			},
		),
	}
	reg.MustRegister(m.lightOn)
	reg.MustRegister(m.lightBrightness)
	reg.MustRegister(m.lightColorTemp)
	reg.MustRegister(m.commands)
	reg.MustRegister(m.entities)
	return m
}

// Observe records the current state of an entity.
func (m *Metrics) Observe(st light.State) {
	on := 0.0
	if st.IsOn {
		on = 1
	}
	m.lightOn.WithLabelValues(st.UniqueID, st.Name).Set(on)
	m.lightBrightness.WithLabelValues(st.UniqueID, st.Name).Set(float64(st.Brightness))
	if st.ColorTempKelvin != nil {
		m.lightColorTemp.WithLabelValues(st.UniqueID, st.Name).Set(float64(*st.ColorTempKelvin))
	}
}

// Forget drops the series of a removed entity.
func (m *Metrics) Forget(uniqueID, name string) {
	m.lightOn.DeleteLabelValues(uniqueID, name)
	m.lightBrightness.DeleteLabelValues(uniqueID, name)
	m.lightColorTemp.DeleteLabelValues(uniqueID, name)
}

// RecordCommand counts a dispatched command.
func (m *Metrics) RecordCommand(command string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.commands.WithLabelValues(command, result).Inc()
}

// SetEntities records the number of registered entities.
func (m *Metrics) SetEntities(n int) {
	m.entities.Set(float64(n))
}
