package feed

import (
	"time"

	"github.com/kestrelsec/kestrel/internal/model"
)

// incidentMessage is the wire envelope on SubjectIncidentsCreated.
type incidentMessage struct {
	Incident    *model.IncidentCandidate `json:"incident"`
	PublishedAt time.Time                `json:"published_at"`
}

// runMessage is the wire envelope on SubjectRunsCompleted.
type runMessage struct {
	Report      *model.RunReport `json:"report"`
	PublishedAt time.Time        `json:"published_at"`
}
