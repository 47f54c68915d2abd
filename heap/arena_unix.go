//go:build linux || darwin || freebsd || netbsd || openbsd

package heap

import (
	"golang.org/x/sys/unix"
)

var pageSize = unix.Getpagesize()

// provision maps anonymous private memory. Anonymous mappings are zero
// filled and page aligned; alignments above a page are met by mapping one
// extra alignment unit and trimming in NewArena.
func provision(size, align int) ([]byte, func([]byte) error, error) {
	length := size
	if align > pageSize {
		length += align
	}
	mapping, err := unix.Mmap(
		-1, 0,
		length,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil, nil, err
	}
	return mapping, unix.Munmap, nil
}
