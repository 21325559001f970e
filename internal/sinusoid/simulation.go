package sinusoid

import "math/rand"

const (
	smallDischargeInterval = 601
	smallDischargeDuration = 60
	largeDischargeInterval = 25219
	largeDischargeDuration = 60

	minHoldDuration = 5 * 60
	maxHoldDuration = 10 * 60
)

// Reading keys emitted by Poll.
const (
	KeySmallDischarge      = "SmallDischarge"
	KeyLargeDischarge      = "LargeDischarge"
	KeyProduction          = "Production"
	KeyLdThresholdExceeded = "LdThresholdExceeded"
)

// PLCData is one step of the simulated PLC.
type PLCData struct {
	SmallDischarge      int `json:"SmallDischarge"`
	LargeDischarge      int `json:"LargeDischarge"`
	Production          int `json:"Production"`
	LdThresholdExceeded int `json:"LdThresholdExceeded"`
}

// Map renders the data as a reading payload.
func (d PLCData) Map() map[string]any {
	return map[string]any{
		KeySmallDischarge:      d.SmallDischarge,
		KeyLargeDischarge:      d.LargeDischarge,
		KeyProduction:          d.Production,
		KeyLdThresholdExceeded: d.LdThresholdExceeded,
	}
}

// Simulation is the discharge/production state machine driven by a monotonic
// tick counter.
type Simulation struct {
	Time         int64
	HoldDuration int
	Exceeded     int
}

// rerollIfDue draws a new threshold hold period and exceeded flag when the
// previous hold period has run out. It reports whether a draw happened.
func (s *Simulation) rerollIfDue(rng *rand.Rand) bool {
	if s.HoldDuration != 0 {
		return false
	}
	s.HoldDuration = minHoldDuration + rng.Intn(maxHoldDuration-minHoldDuration+1)
	s.Exceeded = rng.Intn(2)
	return true
}

// evaluate computes the PLC outputs for the current tick and applies the
// production interlock and hold countdown. It does not advance Time.
func (s *Simulation) evaluate() PLCData {
	ld := 0
	if inWindow(s.Time, largeDischargeInterval, largeDischargeDuration) {
		ld = 1
	}

	sd := 0
	if ld == 0 && inWindow(s.Time, smallDischargeInterval, smallDischargeDuration) {
		sd = 1
	}

	production := 1 - ld
	if production == 0 {
		s.Exceeded = 0
	}

	s.HoldDuration--

	return PLCData{
		SmallDischarge:      sd,
		LargeDischarge:      ld,
		Production:          production,
		LdThresholdExceeded: s.Exceeded,
	}
}

func inWindow(t, interval, duration int64) bool {
	if t <= duration {
		return false
	}
	m := t % interval
	return m >= 0 && m <= duration
}
