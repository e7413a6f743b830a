package orchestration

// Phase is a step of answering one request. Phases only move forward.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSearching
	PhaseAssembling
	PhaseStreamingAnswer
	PhaseAppendingReferences
	PhaseDone
)

var phaseNames = map[Phase]string{
	PhaseIdle:                "idle",
	PhaseSearching:           "searching",
	PhaseAssembling:          "assembling",
	PhaseStreamingAnswer:     "streaming_answer",
	PhaseAppendingReferences: "appending_references",
	PhaseDone:                "done",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets phases appear by name in JSON events.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
