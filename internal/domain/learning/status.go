package learning

// Lifecycle values shared by courses, modules, lessons, roadmaps and roadmap nodes.
const (
	StatusGenerating   = "GENERATING"
	StatusNotStarted   = "NOT_STARTED"
	StatusInProgress   = "IN_PROGRESS"
	StatusCompleted    = "COMPLETED"
	StatusFailed       = "FAILED"
	StatusNotGenerated = "NOT_GENERATED"
)

// ValidStatus reports whether s is one of the known lifecycle values.
func ValidStatus(s string) bool {
	switch s {
	case StatusGenerating, StatusNotStarted, StatusInProgress, StatusCompleted, StatusFailed, StatusNotGenerated:
		return true
	}
	return false
}

// UserSettableStatus reports whether a client may set s through a status endpoint.
// GENERATING and FAILED are owned by the generation lifecycle.
func UserSettableStatus(s string) bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}
