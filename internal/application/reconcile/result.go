package reconcile

// Result is what applying one delta record did
type Result string

const (
	// ResultApplied changed local state and scheduled its side effects
	ResultApplied Result = "applied"
	// ResultImported created a new local entity
	ResultImported Result = "imported"
	// ResultUnchanged matched local state already; nothing was written
	ResultUnchanged Result = "unchanged"
	// ResultSkipped could not be resolved to a local entity
	ResultSkipped Result = "skipped"
	// ResultFailed is counted for records whose apply returned an error
	ResultFailed Result = "failed"
)
