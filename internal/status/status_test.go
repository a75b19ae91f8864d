package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"vending-panel-backend/internal/model"
)

func TestClassify(t *testing.T) {
	// 12:30:00 at UTC+3.
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	testCases := []struct {
		name string
		info *model.MachineInfo
		want Status
	}{
		{"missing info", nil, Offline},
		{"flag false", &model.MachineInfo{OnlineStatus: false, LastSeen: "2024-05-01 12:29:59"}, Offline},
		{"unparsable last_seen", &model.MachineInfo{OnlineStatus: true, LastSeen: "01/05/2024 12:29"}, Offline},
		{"empty last_seen", &model.MachineInfo{OnlineStatus: true}, Offline},
		{"301 seconds old", &model.MachineInfo{OnlineStatus: true, LastSeen: "2024-05-01 12:24:59"}, Offline},
		{"exactly 300 seconds old", &model.MachineInfo{OnlineStatus: true, LastSeen: "2024-05-01 12:25:00"}, Offline},
		{"299 seconds old", &model.MachineInfo{OnlineStatus: true, LastSeen: "2024-05-01 12:25:01"}, Online},
		{"1 second old", &model.MachineInfo{OnlineStatus: true, LastSeen: "2024-05-01 12:29:59"}, Online},
		{"clock ahead", &model.MachineInfo{OnlineStatus: true, LastSeen: "2024-05-01 12:35:00"}, Online},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.info, now))
		})
	}
}

func TestEvaluator_CustomPolicy(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	info := &model.MachineInfo{OnlineStatus: true, LastSeen: "2024-05-01 12:28:00"}

	utc := NewEvaluator(time.Minute, time.UTC)
	assert.Equal(t, Offline, utc.Classify(info, now))

	wide := NewEvaluator(5*time.Minute, time.UTC)
	assert.Equal(t, Online, wide.Classify(info, now))

	// Same wall clock read as UTC+3 is three hours stale.
	assert.Equal(t, Offline, Classify(info, now))
}
