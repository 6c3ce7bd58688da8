package world

// Plan event names.
const (
	EventStarted  = "started"
	EventFinished = "finished"
	EventAborted  = "aborted"
)

// PlanEvent records a runner starting, finishing or being aborted.
type PlanEvent struct {
	Tick  uint64 `json:"tick"`
	Agent uint32 `json:"agent"`
	Name  string `json:"name"`
	Event string `json:"event"`
	Job   string `json:"job,omitempty"`
	Error string `json:"error,omitempty"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type PlanEventLogger interface {
	WritePlanEvent(ev PlanEvent) error
}

type TickLogEntry struct {
	Tick    uint64      `json:"tick"`
	Elapsed float64     `json:"elapsed"`
	Runners int         `json:"runners"`
	Events  []PlanEvent `json:"events,omitempty"`
	Digest  string      `json:"digest"`
}

type ObserverJoinRequest struct {
	SessionID  string
	TickOut    chan []byte
	EveryTicks int
	FocusAgent uint32
}

type ObserverSubscribeRequest struct {
	SessionID  string
	EveryTicks int
	FocusAgent uint32
}
