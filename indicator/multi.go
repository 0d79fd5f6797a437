package indicator

// Multi combines multiple Indicator implementations. Calls fan out in
// configuration order.
type Multi struct {
	indicators []Indicator
}

// NewMulti combines indicators.
func NewMulti(indicators ...Indicator) *Multi {
	return &Multi{indicators: indicators}
}

// Idle implements Indicator.Idle.
func (m *Multi) Idle() {
	for _, ind := range m.indicators {
		ind.Idle()
	}
}

// Processing implements Indicator.Processing.
func (m *Multi) Processing() {
	for _, ind := range m.indicators {
		ind.Processing()
	}
}

// Cue implements Indicator.Cue.
func (m *Multi) Cue(c Cue) {
	for _, ind := range m.indicators {
		ind.Cue(c)
	}
}

// Shutdown implements Indicator.Shutdown.
func (m *Multi) Shutdown() {
	for _, ind := range m.indicators {
		ind.Shutdown()
	}
}

// Release implements Indicator.Release.
func (m *Multi) Release() error {
	var lastErr error
	for _, ind := range m.indicators {
		if err := ind.Release(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
