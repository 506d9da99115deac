package stats

import (
	"testing"
	"time"
)

func TestSummarizeEmpty(t *testing.T) {
	if _, ok := Summarize(nil); ok {
		t.Error("Summarize(nil) ok = true, want false")
	}
}

func TestSummarizeUniform(t *testing.T) {
	ds := []time.Duration{time.Second, time.Second, time.Second, time.Second}
	got, ok := Summarize(ds)
	if !ok {
		t.Fatal("Summarize returned ok = false for non-empty input")
	}
	want := Summary{Min: time.Second, Max: time.Second, Avg: time.Second}
	if got != want {
		t.Errorf("Summarize(%v) = %+v, want %+v", ds, got, want)
	}
}

func TestSummarizeWorkedExample(t *testing.T) {
	ds := []time.Duration{
		100 * time.Microsecond,
		200 * time.Microsecond,
		300 * time.Microsecond,
		300 * time.Microsecond,
	}
	got, ok := Summarize(ds)
	if !ok {
		t.Fatal("Summarize returned ok = false for non-empty input")
	}
	want := Summary{
		Min:    100 * time.Microsecond,
		Max:    300 * time.Microsecond,
		Avg:    225 * time.Microsecond,
		StdDev: 83 * time.Microsecond,
		Jitter: 67 * time.Microsecond,
	}
	if got != want {
		t.Errorf("Summarize(%v) = %+v, want %+v", ds, got, want)
	}
}
