package observerproto

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Send a frame every N ticks (1 = every tick).
	EveryTicks int `json:"every_ticks,omitempty"`
	// Only report this villager when non-zero.
	FocusAgent uint32 `json:"focus_agent,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	RunID           string      `json:"run_id"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`
	Terrain         Terrain     `json:"terrain"`
}

type WorldParams struct {
	TickRateHz  int     `json:"tick_rate_hz"`
	TickSeconds float64 `json:"tick_seconds"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Seed        int64   `json:"seed"`
}

// Terrain holds row-major movement modifiers, each grid run-length encoded
// (see encoding.EncodeRLE).
type Terrain struct {
	Encoding string `json:"encoding"`
	Ground   string `json:"ground"`
	Above    string `json:"above"`
}

// Server -> Client.
type TickMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Elapsed         float64 `json:"elapsed"`

	Agents    []AgentState    `json:"agents"`
	Buildings []BuildingState `json:"buildings"`
	Plants    []PlantState    `json:"plants,omitempty"`
	Piles     []PileState     `json:"piles,omitempty"`
	Events    []PlanEvent     `json:"events,omitempty"`
}

type AgentState struct {
	ID   uint32     `json:"id"`
	Name string     `json:"name"`
	Pos  [2]float64 `json:"pos"`

	Food    float64 `json:"food"`
	Rest    float64 `json:"rest"`
	Bladder float64 `json:"bladder"`

	Job      string  `json:"job,omitempty"`
	HighPlan string  `json:"high_plan,omitempty"`
	LowPlan  string  `json:"low_plan,omitempty"`
	Target   uint32  `json:"target,omitempty"`
	Carrying []Stack `json:"carrying,omitempty"`
}

type BuildingState struct {
	ID       uint32  `json:"id"`
	Template string  `json:"template"`
	Pos      [2]int  `json:"pos"`
	Built    bool    `json:"built"`
	WorkLeft float64 `json:"work_left,omitempty"`
	Contents []Stack `json:"contents,omitempty"`
}

type PlantState struct {
	ID     uint32  `json:"id"`
	Crop   string  `json:"crop"`
	Pos    [2]int  `json:"pos"`
	Growth float64 `json:"growth"`
}

type PileState struct {
	ID       uint32  `json:"id"`
	Pos      [2]int  `json:"pos"`
	Waste    bool    `json:"waste,omitempty"`
	Contents []Stack `json:"contents,omitempty"`
}

// Stack is an amount of one resource kind. Reserved is the part held by
// in-flight plans.
type Stack struct {
	Kind     string  `json:"kind"`
	Amount   float64 `json:"amount"`
	Reserved float64 `json:"reserved,omitempty"`
}

type PlanEvent struct {
	Agent uint32 `json:"agent"`
	Name  string `json:"name"`
	Event string `json:"event"`
	Job   string `json:"job,omitempty"`
	Error string `json:"error,omitempty"`
}
