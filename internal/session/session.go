package session

// Status is the lifecycle state of a game session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnectedWaiting
	StatusPlaying
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnectedWaiting:
		return "connected-waiting"
	case StatusPlaying:
		return "playing"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Connected reports whether the status implies an open socket.
func (s Status) Connected() bool {
	return s == StatusConnectedWaiting || s == StatusPlaying || s == StatusEnded
}

// Event is something that can move a session between statuses.
type Event int

const (
	EventConnectRequested Event = iota
	EventSocketOpen
	EventStart
	EventEnd
	EventSocketClose
	EventGiveUp
	EventTeardown
)

func (e Event) String() string {
	switch e {
	case EventConnectRequested:
		return "connect_requested"
	case EventSocketOpen:
		return "socket_open"
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	case EventSocketClose:
		return "socket_close"
	case EventGiveUp:
		return "give_up"
	case EventTeardown:
		return "teardown"
	default:
		return "unknown"
	}
}

// Transition is the outcome of firing an event.
type Transition struct {
	From    Status
	To      Status
	Event   Event
	Changed bool
}

// Machine holds the single current Status. It is not safe for concurrent use;
// the owning event loop serializes access.
type Machine struct {
	status Status
}

// NewMachine returns a machine in StatusDisconnected.
func NewMachine() *Machine {
	return &Machine{status: StatusDisconnected}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	return m.status
}

// Fire applies ev. Pairs that have no transition leave the status unchanged.
func (m *Machine) Fire(ev Event) Transition {
	from := m.status
	to, ok := next(from, ev)
	if !ok {
		return Transition{From: from, To: from, Event: ev}
	}
	m.status = to
	return Transition{From: from, To: to, Event: ev, Changed: from != to}
}

func next(from Status, ev Event) (Status, bool) {
	switch ev {
	case EventConnectRequested:
		return StatusConnecting, true
	case EventGiveUp, EventTeardown:
		return StatusDisconnected, true
	case EventSocketOpen:
		if from == StatusConnecting {
			return StatusConnectedWaiting, true
		}
	case EventStart:
		if from == StatusConnectedWaiting || from == StatusEnded {
			return StatusPlaying, true
		}
	case EventEnd:
		if from == StatusPlaying {
			return StatusEnded, true
		}
	case EventSocketClose:
		if from.Connected() {
			return StatusConnecting, true
		}
	}
	return from, false
}
