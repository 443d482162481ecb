package boot

// StageState tracks one tier of the bootstrap chain.
type StageState int

const (
	StageIdle StageState = iota
	StageLoading
	StageCompiling
	StageRunning
	StageFailed
)

func (s StageState) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageLoading:
		return "loading"
	case StageCompiling:
		return "compiling"
	case StageRunning:
		return "running"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stage is one evolving tier of the chain. The native binary is stage zero
// and never appears here; these stages live in the tree and are compiled
// through the module loader.
type Stage struct {
	Name     string
	Entry    string
	Requires []string // capability names to wait for in Loading

	state StageState
	err   error
}

// Status is a read-only view of a stage for callers outside the
// supervisor.
type Status struct {
	Name  string
	Entry string
	State StageState
	Err   error
}

func (st *Stage) status() Status {
	return Status{Name: st.Name, Entry: st.Entry, State: st.state, Err: st.err}
}
