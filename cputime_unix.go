//go:build linux || darwin || freebsd || netbsd || openbsd

package allocbench

import (
	"time"

	"golang.org/x/sys/unix"
)

// cpuTime returns the user plus system time consumed by the process.
func cpuTime() time.Duration {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
}
