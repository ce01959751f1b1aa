package crater

// Status is the lifecycle state crater reports for an experiment. It is an
// open set: unknown values are carried through verbatim.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// Label returns a human-readable form of the status.
func (s Status) Label() string {
	switch s {
	case StatusQueued:
		return "Queued"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusAborted:
		return "Aborted"
	default:
		return string(s)
	}
}

// CreateExperimentRequest is the body of POST /api/v1/experiments.
type CreateExperimentRequest struct {
	Name        string   `json:"name"`
	Toolchains  []string `json:"toolchains"`
	Mode        string   `json:"mode"`
	CrateSelect string   `json:"crate_select"`
	Priority    int      `json:"priority"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

// Experiment is crater's view of an experiment.
type Experiment struct {
	Name        string   `json:"name"`
	Toolchains  []string `json:"toolchains"`
	Mode        string   `json:"mode"`
	CrateSelect string   `json:"crate_select"`
	Priority    int      `json:"priority"`
	Status      Status   `json:"status"`
	ReportURL   string   `json:"report_url,omitempty"`
}

// ExperimentList is the body of GET /api/v1/experiments.
type ExperimentList struct {
	Experiments []Experiment `json:"experiments"`
}

// Callback is what crater POSTs to the relay when an experiment changes state.
type Callback struct {
	Experiment string `json:"experiment"`
	Status     string `json:"status"`
	ReportURL  string `json:"report_url,omitempty"`
}
