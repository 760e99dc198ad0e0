package feed

// NATS subjects for the incident feed.
const (
	// SubjectIncidentsCreated carries every incident candidate the
	// pipeline emits, one message per candidate version.
	SubjectIncidentsCreated = "kestrel.incidents.created"

	// SubjectRunsCompleted carries one run report per finished hunt.
	SubjectRunsCompleted = "kestrel.runs.completed"
)
