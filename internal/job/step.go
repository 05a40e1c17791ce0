package job

import (
	"fmt"
	"strings"
	"time"
)

// Step is one unit of work reported by the prover.
type Step struct {
	Name       string `json:"name"`
	Success    *bool  `json:"success,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
}

func (s Step) Duration() (time.Duration, bool) {
	if s.DurationMs == nil {
		return 0, false
	}
	return time.Duration(*s.DurationMs) * time.Millisecond, true
}

func (s Step) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	if s.Success != nil {
		if *s.Success {
			b.WriteString(" ok")
		} else {
			b.WriteString(" failed")
		}
	}
	if d, ok := s.Duration(); ok {
		fmt.Fprintf(&b, " (%s)", d)
	}
	return b.String()
}

// Summary renders steps one per line.
func Summary(steps []Step) string {
	lines := make([]string, 0, len(steps))
	for i, step := range steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, step))
	}
	return strings.Join(lines, "\n")
}
