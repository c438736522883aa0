package explore

// Status is the page-level lifecycle state.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusLoading      Status = "loading"
	StatusStreaming    Status = "streaming"
	StatusDone         Status = "done"
	StatusError        Status = "error"
	StatusUnauthorized Status = "unauthorized"
	StatusCancelled    Status = "cancelled"
)

// Mode is the branch the primary stream took.
type Mode string

const (
	ModeNone Mode = ""
	ModeRecs Mode = "recs"
	ModeChat Mode = "chat"
)

// State is the explore page state driven by the reducers.
type State struct {
	Status Status `json:"status"`
	Mode   Mode   `json:"mode"`
	// Busy is set while the primary stream is in progress.
	Busy bool `json:"busy"`
	// WhyBusy is set while the explanation stream is in progress.
	WhyBusy bool `json:"whyBusy"`

	SessionID string `json:"sessionId,omitempty"`
	QueryID   string `json:"queryId,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	QueryText string `json:"queryText,omitempty"`

	OpeningSummary string `json:"openingSummary,omitempty"`
	CuratorOpening string `json:"curatorOpening,omitempty"`
	ChatMessage    string `json:"chatMessage,omitempty"`

	ErrorMessage     string `json:"errorMessage,omitempty"`
	ErrorID          string `json:"errorId,omitempty"`
	ExplanationError string `json:"explanationError,omitempty"`

	Filters        Filters `json:"filters"`
	ServerDefaults Filters `json:"serverDefaults"`
}

func (s State) clone() State {
	s.Filters = s.Filters.clone()
	s.ServerDefaults = s.ServerDefaults.clone()
	return s
}

// Live reports whether a stream of the current query may still deliver data.
func (s State) Live() bool {
	return s.Busy || s.WhyBusy
}
