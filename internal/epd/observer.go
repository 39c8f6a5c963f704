package epd

// Observer receives lifecycle events from a Driver. Implementations must not
// call back into the driver.
type Observer interface {
	StateChanged(from, to State)
	BusyWaited(res WaitResult)
	PlaneSent(cmd byte, n int)
}

// Observers fans events out to several observers.
type Observers []Observer

func (obs Observers) StateChanged(from, to State) {
	for _, o := range obs {
		o.StateChanged(from, to)
	}
}

func (obs Observers) BusyWaited(res WaitResult) {
	for _, o := range obs {
		o.BusyWaited(res)
	}
}

func (obs Observers) PlaneSent(cmd byte, n int) {
	for _, o := range obs {
		o.PlaneSent(cmd, n)
	}
}

type nopObserver struct{}

func (nopObserver) StateChanged(State, State) {}
func (nopObserver) BusyWaited(WaitResult)     {}
func (nopObserver) PlaneSent(byte, int)       {}

// PlaneName names the data commands for logs and metrics labels.
func PlaneName(cmd byte) string {
	switch cmd {
	case dataStartOld:
		return "old"
	case dataStartNew:
		return "new"
	default:
		return "other"
	}
}
