package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dokzlo13/cyncd/internal/light"
)

func TestObserveAndForget(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	kelvin := 4250
	m.Observe(light.State{UniqueID: "cync_switch_1", Name: "Lamp", IsOn: true, Brightness: 128, ColorTempKelvin: &kelvin})

	if got := testutil.ToFloat64(m.lightOn.WithLabelValues("cync_switch_1", "Lamp")); got != 1 {
		t.Errorf("cync_light_on = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.lightBrightness.WithLabelValues("cync_switch_1", "Lamp")); got != 128 {
		t.Errorf("cync_light_brightness = %v, want 128", got)
	}
	if got := testutil.ToFloat64(m.lightColorTemp.WithLabelValues("cync_switch_1", "Lamp")); got != 4250 {
		t.Errorf("cync_light_color_temp_kelvin = %v, want 4250", got)
	}

	m.Forget("cync_switch_1", "Lamp")
	if n := testutil.CollectAndCount(m.lightOn); n != 0 {
		t.Errorf("cync_light_on series after Forget = %d", n)
	}
}

func TestRecordCommand(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCommand("turn_on", nil)
	m.RecordCommand("turn_on", nil)
	m.RecordCommand("turn_off", errors.New("boom"))

	if got := testutil.ToFloat64(m.commands.WithLabelValues("turn_on", ResultOK)); got != 2 {
		t.Errorf("turn_on ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues("turn_off", ResultError)); got != 1 {
		t.Errorf("turn_off error = %v, want 1", got)
	}

	m.SetEntities(3)
	if got := testutil.ToFloat64(m.entities); got != 3 {
		t.Errorf("entities = %v, want 3", got)
	}
}
