package store

import (
	"crypto/sha256"
	"encoding/hex"

	"vending-panel-backend/internal/tree"
)

// Tree layout.
const (
	usersRoot         = "users"
	machinesRoot      = "machines"
	subscriptionsRoot = "push_subscriptions"

	infoKey     = "info"
	slotsKey    = "slots"
	commandsKey = "commands"
	salesKey    = "satis_hareketleri"
)

func userPath(uid string) string { return tree.Join(usersRoot, uid) }

func machinePath(mid string, rest ...string) string {
	return tree.Join(append([]string{machinesRoot, mid}, rest...)...)
}

func slotPath(mid, sid string) string { return machinePath(mid, slotsKey, sid) }

// subscriptionPath keys a subscription by the hash of its endpoint; endpoints
// are URLs and contain characters the tree rejects in keys.
func subscriptionPath(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return tree.Join(subscriptionsRoot, hex.EncodeToString(sum[:]))
}
