package types

// EventState is the processing state of one inbound message event
type EventState string

const (
	EventStateReceived     EventState = "RECEIVED"
	EventStateDeduplicated EventState = "DEDUPLICATED"
	EventStateStored       EventState = "STORED"
	EventStateDropped      EventState = "DROPPED"
)

func (s EventState) String() string {
	return string(s)
}

// IsTerminal reports whether no further processing happens for the event
func (s EventState) IsTerminal() bool {
	return s == EventStateStored || s == EventStateDropped
}
