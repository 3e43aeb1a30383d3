package boot

// Registry is an immutable, process-wide mapping of board serial numbers to
// their configuration. A configuration reload builds a new Registry and
// swaps it in atomically (see Resolver.SetRegistry); in-flight transfers keep
// working against whichever Registry they resolved against.
type Registry struct {
	boards map[uint32]Board
}

// NewRegistry builds a Registry from boards. Later entries with a
// duplicate serial overwrite earlier ones, matching the includedir
// later-file-wins rule at the config layer.
func NewRegistry(boards []Board) *Registry {
	r := &Registry{boards: make(map[uint32]Board, len(boards))}
	for _, b := range boards {
		r.boards[b.Serial] = b
	}
	return r
}

// Lookup returns the board registered for serial, if any.
func (r *Registry) Lookup(serial uint32) (Board, bool) {
	b, ok := r.boards[serial]
	return b, ok
}

// Default returns the registry's sole board, used as a fallback when a
// client's RRQ path carries no serial prefix segment at all. It is only
// usable when exactly one board is configured.
func (r *Registry) Default() (Board, bool) {
	if len(r.boards) != 1 {
		return Board{}, false
	}
	for _, b := range r.boards {
		return b, true
	}
	return Board{}, false
}

// Len returns the number of boards in the registry.
func (r *Registry) Len() int { return len(r.boards) }

// Boards returns every board in the registry, in no particular order. Used
// when merging a loaded registry with overrides from another source, e.g.
// command-line --board flags layered on top of a config file.
func (r *Registry) Boards() []Board {
	list := make([]Board, 0, len(r.boards))
	for _, b := range r.boards {
		list = append(list, b)
	}
	return list
}
