package stream

import (
	"testing"
	"time"

	"github.com/yourusername/quantstream/pkg/model"
)

func TestSeriesCursor_Monotonic(t *testing.T) {
	c := NewSeriesCursor(model.MetricSpread)

	steps := []struct {
		at   int64
		want bool
	}{
		{100, true},
		{100, false}, // duplicate
		{99, false},
		{101, true},
		{50, false},
		{160, true},
		{160, false},
	}
	for i, s := range steps {
		if got := c.Accept(unix(s.at)); got != s.want {
			t.Fatalf("step %d: Accept(%d) = %v, want %v", i, s.at, got, s.want)
		}
	}
	last, ok := c.Last()
	if !ok || !last.Equal(unix(160)) {
		t.Errorf("Last() = %v, %v", last.Unix(), ok)
	}
}

func TestSeriesCursor_Reset(t *testing.T) {
	c := NewSeriesCursor(model.MetricZScore)
	c.Reset(unix(600))
	if c.Accept(unix(600)) {
		t.Error("Accept at the reset time should be rejected")
	}
	if !c.Accept(unix(601)) {
		t.Error("Accept after the reset time should pass")
	}

	c.Reset(time.Time{})
	if _, ok := c.Last(); ok {
		t.Error("zero reset should leave the cursor unset")
	}
	if !c.Accept(unix(1)) {
		t.Error("unset cursor should accept anything")
	}
}
