// Package msg defines all tea.Msg types dispatched within the browser.
// It has no upstream imports (client, model) to avoid import cycles.
package msg

// -- Lifecycle --

// HealthResult from the initial health check.
type HealthResult struct {
	ClusterName string
	Status      string
	Nodes       int
	Err         error
}

// -- User input --

// SubmitQuery when the user presses Enter in the query bar.
type SubmitQuery struct {
	Text string
}

// -- Result set --

// InitialLoaded when the first chunk of a search settles. Generation
// identifies the search so answers for a replaced query can be dropped.
type InitialLoaded struct {
	Generation int
	Err        error
}

// ResultsChanged after any mutation of the result array.
type ResultsChanged struct {
	Generation int
	From, To   int
	Len        int
	Err        error
}

// RunScheduled carries a deferred callback onto the UI goroutine.
type RunScheduled struct {
	Fn func()
}

// -- UI events --

// TickMsg for periodic timer updates.
type TickMsg struct{}
