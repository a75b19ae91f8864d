// Package status derives a machine's online/offline state from its heartbeat.
package status

import (
	"time"

	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/parse"
)

// Status is the derived liveness of a machine.
type Status string

const (
	Online  Status = "online"
	Offline Status = "offline"
)

// Default policy.
const (
	DefaultWindow = 300 * time.Second
	defaultOffset = 3 * 60 * 60
)

// Evaluator classifies machines with a fixed heartbeat policy.
type Evaluator struct {
	// Window is how recent last_seen must be. The check is strict:
	// a heartbeat exactly Window old is stale.
	Window time.Duration
	// Location is the fixed zone machines write last_seen in.
	Location *time.Location
}

// NewEvaluator returns an evaluator; zero values fall back to 300s and UTC+3.
func NewEvaluator(window time.Duration, loc *time.Location) Evaluator {
	if window <= 0 {
		window = DefaultWindow
	}
	if loc == nil {
		loc = time.FixedZone("UTC+3", defaultOffset)
	}
	return Evaluator{Window: window, Location: loc}
}

// Classify never fails: a missing record, a false flag or an unreadable
// timestamp all mean Offline. A heartbeat from the future counts as fresh.
func (e Evaluator) Classify(info *model.MachineInfo, now time.Time) Status {
	if info == nil || !info.OnlineStatus {
		return Offline
	}
	seen, err := parse.LastSeen(info.LastSeen, e.Location)
	if err != nil {
		return Offline
	}
	if now.Sub(seen) < e.Window {
		return Online
	}
	return Offline
}

// Classify applies the default policy.
func Classify(info *model.MachineInfo, now time.Time) Status {
	return NewEvaluator(0, nil).Classify(info, now)
}
