package util

import (
	"testing"
	"time"
)

func TestSkipThrottler(t *testing.T) {
	t.Parallel()
	tt := NewSkipThrottler(time.Hour)
	if !tt.Ok() {
		t.Fatalf("first call skipped")
	}
	if tt.Ok() {
		t.Fatalf("second call not skipped")
	}

	tt = NewSkipThrottler(0)
	for i := 0; i < 3; i++ {
		if !tt.Ok() {
			t.Fatalf("%d skipped", i)
		}
	}
}
