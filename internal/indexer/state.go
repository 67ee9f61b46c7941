package indexer

// State is the lifecycle state of one project's index inside this process.
type State int

const (
	// Absent means no snapshot is held in memory. The project may still have an index on disk.
	Absent State = iota
	// Loaded means a snapshot equal to the on-disk index is cached.
	Loaded
)

func (s State) String() string {
	switch s {
	case Loaded:
		return "loaded"
	default:
		return "absent"
	}
}

// event is something that happened to a project's index.
type event int

const (
	evLoaded     event = iota // read from disk
	evLoadFailed              // disk read failed
	evSaved                   // chunks appended and persisted
	evRebuilt                 // resource removed, chunks remain, persisted
	evDrained                 // last chunk removed, directory deleted
	evEvicted                 // dropped from the cache
	evUnchanged               // operation made no change
)

func (e event) String() string {
	switch e {
	case evLoaded:
		return "loaded"
	case evLoadFailed:
		return "load_failed"
	case evSaved:
		return "saved"
	case evRebuilt:
		return "rebuilt"
	case evDrained:
		return "drained"
	case evEvicted:
		return "evicted"
	default:
		return "unchanged"
	}
}

// transition returns the state after ev. It has no side effects; the manager applies
// the result to the cache.
func transition(s State, ev event) State {
	switch ev {
	case evLoaded, evSaved, evRebuilt:
		return Loaded
	case evLoadFailed, evDrained, evEvicted:
		return Absent
	default:
		return s
	}
}
