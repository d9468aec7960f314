package upload

import (
	"fmt"
	"strings"
)

// Stages are the coarse steps shown while a lecture is processed.
var Stages = []string{"Uploading", "Understanding", "Writing notes"}

// StageIndex maps a phase reported by the server to an index of Stages.
func StageIndex(phase string) int {
	p := strings.ToLower(phase)
	switch {
	case strings.Contains(p, "extract"), strings.Contains(p, "file"), strings.Contains(p, "creating"):
		return 1
	case strings.Contains(p, "generating"), strings.Contains(p, "finalizing"), strings.Contains(p, "embedding"):
		return 2
	}
	return 0
}

// FormatETA renders the remaining time, eg: "1m 5s remaining"; it is empty when unknown.
func FormatETA(secs *int) string {
	if secs == nil || *secs < 0 {
		return ""
	}
	m, s := *secs/60, *secs%60
	if m > 0 {
		return fmt.Sprintf("%dm %ds remaining", m, s)
	}
	return fmt.Sprintf("%ds remaining", s)
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
