package model

// PushSubscription holds the information for a browser push subscription.
// Machines is the set the subscriber was authorized for when subscribing.
type PushSubscription struct {
	Endpoint string   `json:"endpoint"`
	P256DH   string   `json:"p256dh"`
	Auth     string   `json:"auth"`
	UserID   string   `json:"user_id"`
	Machines []string `json:"machines"`
	Created  string   `json:"created_at"`
}

// Covers reports whether the subscription wants alerts for mid.
func (s PushSubscription) Covers(mid string) bool {
	for _, m := range s.Machines {
		if m == mid {
			return true
		}
	}
	return false
}
