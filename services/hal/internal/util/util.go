// services/hal/internal/util/util.go
package util

import "time"

func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
