package runner

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestMetricJSON(t *testing.T) {
	v := struct {
		A Metric[int64] `json:"a"`
		B Metric[int64] `json:"b"`
	}{
		A: Known[int64](42),
		B: Unknown[int64](),
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if want := `{"a":42,"b":null}`; string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestMetricZeroIsNotUnknown(t *testing.T) {
	m := Known(time.Duration(0))
	if v, ok := m.Get(); !ok || v != 0 {
		t.Errorf("Get() = %v, %v, want 0, true", v, ok)
	}
	if m.String() != "0s" {
		t.Errorf("String() = %q", m.String())
	}
	if Unknown[Size]().String() != "unknown" {
		t.Errorf("unknown metric should print as unknown")
	}
}

func TestUsageUnknown(t *testing.T) {
	u := Usage{
		CPUTime:  Known(time.Second),
		WallTime: Known(2 * time.Second),
	}
	want := []string{"peakMemory", "outputBytes"}
	if got := u.Unknown(); !reflect.DeepEqual(got, want) {
		t.Errorf("Unknown() = %v, want %v", got, want)
	}
	if got := (Usage{CPUTime: Known(time.Duration(0)), WallTime: Known(time.Duration(0)),
		PeakMemory: Known(Size(0)), OutputBytes: Known(Size(0))}).Unknown(); got != nil {
		t.Errorf("Unknown() = %v, want nil", got)
	}
}
