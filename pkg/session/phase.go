package session

// Phase is one state of the per-call state machine (spec §4.4).
type Phase string

const (
	Connecting Phase = "connecting"
	Greeting   Phase = "greeting"
	Listening  Phase = "listening"
	Thinking   Phase = "thinking"
	Speaking   Phase = "speaking"
	Terminated Phase = "terminated"
)

func (p Phase) String() string { return string(p) }

// gates is the table from spec §4.4: whether inbound audio is forwarded to
// STT, and whether a speech-start event should be allowed to trigger
// barge-in, for each phase.
type gates struct {
	sttGate      bool
	bargeinArmed bool
}

var gateTable = map[Phase]gates{
	Connecting: {sttGate: false, bargeinArmed: false},
	Greeting:   {sttGate: false, bargeinArmed: false},
	Listening:  {sttGate: true, bargeinArmed: false},
	Thinking:   {sttGate: true, bargeinArmed: true},
	Speaking:   {sttGate: true, bargeinArmed: true},
	Terminated: {sttGate: false, bargeinArmed: false},
}

func gatesFor(p Phase) gates {
	g, ok := gateTable[p]
	if !ok {
		return gates{}
	}
	return g
}
