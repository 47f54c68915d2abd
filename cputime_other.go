//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package allocbench

import "time"

// cpuTime is unavailable here; samples report zero CPU time.
func cpuTime() time.Duration {
	return 0
}
