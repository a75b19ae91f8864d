package store

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/parse"
	"vending-panel-backend/internal/tree"
)

// decodeAny decodes a tree value keeping numbers exact.
func decodeAny(raw json.RawMessage) (any, error) {
	if tree.IsNull(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// asMap views a collection as key→child. Arrays, which the store produces
// for collections with dense integer keys, are keyed by stringified index
// with null entries dropped.
func asMap(v any) map[string]any {
	switch c := v.(type) {
	case map[string]any:
		return c
	case []any:
		out := make(map[string]any, len(c))
		for i, child := range c {
			if child != nil {
				out[strconv.Itoa(i)] = child
			}
		}
		return out
	}
	return nil
}

func lexical(a, b string) bool { return a < b }

func sortedKeys(m map[string]any, less func(a, b string) bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}

func decodeUser(uid string, rec map[string]any) model.User {
	return model.User{
		ID:       uid,
		Email:    parse.String(rec["email"]),
		FullName: parse.String(rec["full_name"]),
		Approved: parse.Bool(rec["approved"]),
		Machines: decodeMachineSet(rec["machines"]),
	}
}

// decodeMachineSet accepts a single id, a list of ids or an index-keyed map
// of ids. Blank and repeated entries are dropped.
func decodeMachineSet(v any) []string {
	var ids []string
	switch c := v.(type) {
	case nil:
	case []any:
		for _, e := range c {
			ids = append(ids, parse.String(e))
		}
	case map[string]any:
		for _, k := range sortedKeys(c, parse.SlotLess) {
			ids = append(ids, parse.String(c[k]))
		}
	default:
		ids = append(ids, parse.String(c))
	}

	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func decodeInfo(rec map[string]any) model.MachineInfo {
	temp, _ := parse.Float(rec["temperature"])
	return model.MachineInfo{
		LastSeen:     parse.String(rec["last_seen"]),
		Temperature:  temp,
		Location:     parse.String(rec["location"]),
		OnlineStatus: parse.Bool(rec["online_status"]),
	}
}

// decodeSlots upgrades either slot encoding into id→Slot. Entries that are
// not objects, and array holes, are skipped.
func decodeSlots(v any, log *zap.Logger) model.Slots {
	slots := make(model.Slots)
	if v == nil {
		return slots
	}
	if _, ok := v.([]any); ok {
		log.Debug("upgrading legacy array-encoded slots")
	}

	children := asMap(v)
	if children == nil {
		log.Warn("slots value is not a collection")
		return slots
	}
	for sid, child := range children {
		rec, ok := child.(map[string]any)
		if !ok || len(rec) == 0 {
			log.Debug("skipping empty or malformed slot", zap.String("slot_id", sid))
			continue
		}
		slots[sid] = decodeSlot(sid, rec, log)
	}
	return slots
}

func decodeSlot(sid string, rec map[string]any, log *zap.Logger) model.Slot {
	price, ok := parse.Int(rec["price"])
	if !ok && rec["price"] != nil {
		log.Warn("unparsable slot price", zap.String("slot_id", sid), zap.Any("price", rec["price"]))
	}
	if price < 0 {
		log.Warn("negative slot price", zap.String("slot_id", sid), zap.Int("price", price))
		price = 0
	}
	return model.Slot{
		ID:          sid,
		Price:       price,
		Enabled:     parse.Bool(rec["enabled"]),
		ProductName: parse.String(rec["product_name"]),
		ImageURL:    parse.String(rec["image_url"]),
		LastRestock: parse.String(rec["last_restock"]),
	}
}

// decodeSales flattens a ledger into records. Keys are ordered with
// numeric ids first, then lexically, which keeps push ids chronological.
func decodeSales(v any, log *zap.Logger) []model.RawSale {
	children := asMap(v)
	if children == nil {
		if v != nil {
			log.Warn("sales ledger is not a collection")
		}
		return nil
	}
	sales := make([]model.RawSale, 0, len(children))
	for _, k := range sortedKeys(children, parse.SlotLess) {
		rec, ok := children[k].(map[string]any)
		if !ok {
			log.Debug("skipping malformed sale", zap.String("key", k))
			continue
		}
		sales = append(sales, model.RawSale(rec))
	}
	return sales
}

func decodeSubscription(rec map[string]any) model.PushSubscription {
	return model.PushSubscription{
		Endpoint: parse.String(rec["endpoint"]),
		P256DH:   parse.String(rec["p256dh"]),
		Auth:     parse.String(rec["auth"]),
		UserID:   parse.String(rec["user_id"]),
		Machines: decodeMachineSet(rec["machines"]),
		Created:  parse.String(rec["created_at"]),
	}
}
