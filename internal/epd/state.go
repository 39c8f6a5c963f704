package epd

// State is the controller lifecycle as tracked by the Driver. It changes only
// through Driver operations.
type State int

const (
	Uninitialized State = iota
	Resetting
	Configuring
	PoweredOn
	Idle
	Refreshing
	// PoweredOff covers both power-off and deep sleep; the controller needs a
	// hardware reset to leave it.
	PoweredOff
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Resetting:
		return "resetting"
	case Configuring:
		return "configuring"
	case PoweredOn:
		return "powered-on"
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case PoweredOff:
		return "powered-off"
	default:
		return "unknown"
	}
}

// Awake reports whether frame transfers and refreshes are allowed.
func (s State) Awake() bool {
	return s == PoweredOn || s == Idle
}
