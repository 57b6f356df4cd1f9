package sch

// Signal is one unit of scheduler work: either a task ready to execute,
// identified by the owning process and task id, or the Terminal sentinel
// that ends the event loop.
type Signal struct {
	Pid      string
	Tid      string
	Terminal bool
}
