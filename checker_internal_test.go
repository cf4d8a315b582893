package updatecheck

import (
	"testing"
	"time"
)

func TestDefaultClientFollowsTimeout(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    time.Duration
	}{
		{30 * time.Second, 30 * time.Second},
		{DefaultTimeout, DefaultTimeout},
		{time.Second, time.Second},
		{0, 0},
		{-time.Second, 0},
	}

	for _, tt := range tests {
		if got := newDefaultClient("", tt.timeout).Timeout(); got != tt.want {
			t.Errorf("newDefaultClient(%v).Timeout() = %v, want %v", tt.timeout, got, tt.want)
		}
	}
}
