//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package heap

const pageSize = DefaultArenaAlign

// provision falls back to an over-sized Go buffer; NewArena trims it to the
// aligned window. The runtime does not move heap objects, so the window
// address is stable for the arena's lifetime.
func provision(size, align int) ([]byte, func([]byte) error, error) {
	return make([]byte, size+align), nil, nil
}
