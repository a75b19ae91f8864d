package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/parse"
	"vending-panel-backend/internal/tree"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Store defines the typed data access operations over the tree.
type Store interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, uid string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateUserAccess(ctx context.Context, uid string, approved bool, machines []string) error

	ListMachineIDs(ctx context.Context) ([]string, error)
	GetMachineInfo(ctx context.Context, mid string) (*model.MachineInfo, error)
	GetSlots(ctx context.Context, mid string) (model.Slots, error)
	UpdateSlot(ctx context.Context, mid, sid string, price int, enabled bool) error
	RestockSlot(ctx context.Context, mid, sid string, r model.Restock) error
	SendOpenCommand(ctx context.Context, mid string, cmd model.OpenGateCommand) error
	GetSales(ctx context.Context, mid string) ([]model.RawSale, error)

	PutSubscription(ctx context.Context, sub model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error)
}

// treeStore implements Store on top of a tree.Tree.
type treeStore struct {
	tree tree.Tree
	loc  *time.Location
	log  *zap.Logger
}

// NewTreeStore creates a store over t. Timestamps it writes are formatted
// in loc, the zone the machines use.
func NewTreeStore(t tree.Tree, loc *time.Location, log *zap.Logger) Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &treeStore{tree: t, loc: loc, log: log}
}

// CreateUser writes a complete user record, replacing any existing one.
func (s *treeStore) CreateUser(ctx context.Context, user model.User) error {
	if err := checkKeys(user.ID); err != nil {
		return err
	}
	machines := user.Machines
	if machines == nil {
		machines = []string{}
	}
	record := map[string]any{
		"email":     user.Email,
		"full_name": user.FullName,
		"approved":  user.Approved,
		"machines":  machines,
	}
	if err := s.tree.Set(ctx, userPath(user.ID), record); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.ID, err)
	}
	return nil
}

func (s *treeStore) GetUser(ctx context.Context, uid string) (*model.User, error) {
	if err := checkKeys(uid); err != nil {
		return nil, err
	}
	raw, err := s.tree.Get(ctx, userPath(uid))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", uid, err)
	}
	v, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode user %s: %w", uid, err)
	}
	rec, ok := v.(map[string]any)
	if !ok {
		if v != nil {
			s.log.Warn("user record is not an object", zap.String("uid", uid))
		}
		return nil, ErrNotFound
	}
	u := decodeUser(uid, rec)
	return &u, nil
}

// ListUsers returns every user record ordered by id.
func (s *treeStore) ListUsers(ctx context.Context) ([]model.User, error) {
	raw, err := s.tree.Get(ctx, usersRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	v, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	children := asMap(v)
	users := make([]model.User, 0, len(children))
	for _, uid := range sortedKeys(children, lexical) {
		rec, ok := children[uid].(map[string]any)
		if !ok {
			s.log.Warn("skipping malformed user record", zap.String("uid", uid))
			continue
		}
		users = append(users, decodeUser(uid, rec))
	}
	return users, nil
}

// UpdateUserAccess overwrites approved and machines in one update call.
func (s *treeStore) UpdateUserAccess(ctx context.Context, uid string, approved bool, machines []string) error {
	if err := checkKeys(uid); err != nil {
		return err
	}
	if machines == nil {
		machines = []string{}
	}
	err := s.tree.Update(ctx, userPath(uid), map[string]any{
		"approved": approved,
		"machines": machines,
	})
	if err != nil {
		return fmt.Errorf("failed to update access for user %s: %w", uid, err)
	}
	return nil
}

// ListMachineIDs returns the registry: every key under machines.
func (s *treeStore) ListMachineIDs(ctx context.Context) ([]string, error) {
	ids, err := s.tree.Keys(ctx, machinesRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	parse.SortSlotIDs(ids)
	return ids, nil
}

// GetMachineInfo returns nil without error when the machine has no info record.
func (s *treeStore) GetMachineInfo(ctx context.Context, mid string) (*model.MachineInfo, error) {
	if err := checkKeys(mid); err != nil {
		return nil, err
	}
	raw, err := s.tree.Get(ctx, machinePath(mid, infoKey))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch info for machine %s: %w", mid, err)
	}
	v, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode info for machine %s: %w", mid, err)
	}
	rec, ok := v.(map[string]any)
	if !ok {
		if v != nil {
			s.log.Warn("machine info is not an object", zap.String("machine_id", mid))
		}
		return nil, nil
	}
	info := decodeInfo(rec)
	return &info, nil
}

// GetSlots returns the slot collection keyed by slot id, upgrading the
// legacy array encoding.
func (s *treeStore) GetSlots(ctx context.Context, mid string) (model.Slots, error) {
	if err := checkKeys(mid); err != nil {
		return nil, err
	}
	raw, err := s.tree.Get(ctx, machinePath(mid, slotsKey))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch slots for machine %s: %w", mid, err)
	}
	v, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode slots for machine %s: %w", mid, err)
	}
	return decodeSlots(v, s.log.With(zap.String("machine_id", mid))), nil
}

// UpdateSlot merges price and enabled into one slot.
func (s *treeStore) UpdateSlot(ctx context.Context, mid, sid string, price int, enabled bool) error {
	if err := checkKeys(mid, sid); err != nil {
		return err
	}
	err := s.tree.Update(ctx, slotPath(mid, sid), map[string]any{
		"price":   price,
		"enabled": enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to update slot %s/%s: %w", mid, sid, err)
	}
	return nil
}

// RestockSlot writes the product record of a refilled slot. Fields the
// device keeps on the slot survive; the photo is kept unless r names a new one.
func (s *treeStore) RestockSlot(ctx context.Context, mid, sid string, r model.Restock) error {
	if err := checkKeys(mid, sid); err != nil {
		return err
	}
	fields := map[string]any{
		"price":        r.Price,
		"product_name": r.ProductName,
		"enabled":      true,
		"last_restock": parse.FormatLocal(r.At, s.loc),
	}
	if r.ImageURL != "" {
		fields["image_url"] = r.ImageURL
	}
	if err := s.tree.Update(ctx, slotPath(mid, sid), fields); err != nil {
		return fmt.Errorf("failed to restock slot %s/%s: %w", mid, sid, err)
	}
	return nil
}

// SendOpenCommand merges the open-gate command into the machine's commands.
func (s *treeStore) SendOpenCommand(ctx context.Context, mid string, cmd model.OpenGateCommand) error {
	if err := checkKeys(mid, cmd.SlotID); err != nil {
		return err
	}
	err := s.tree.Update(ctx, machinePath(mid, commandsKey), map[string]any{
		"open_gate": cmd.SlotID,
		"timestamp": cmd.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to send open command to %s: %w", mid, err)
	}
	return nil
}

// GetSales returns the machine's sales ledger in ledger order. Map ledgers
// are ordered by key; push ids sort chronologically.
func (s *treeStore) GetSales(ctx context.Context, mid string) ([]model.RawSale, error) {
	if err := checkKeys(mid); err != nil {
		return nil, err
	}
	raw, err := s.tree.Get(ctx, machinePath(mid, salesKey))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sales for machine %s: %w", mid, err)
	}
	v, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sales for machine %s: %w", mid, err)
	}
	return decodeSales(v, s.log.With(zap.String("machine_id", mid))), nil
}

func (s *treeStore) PutSubscription(ctx context.Context, sub model.PushSubscription) error {
	if sub.Endpoint == "" {
		return fmt.Errorf("%w: empty endpoint", parse.ErrInvalidKey)
	}
	if sub.Created == "" {
		sub.Created = parse.FormatLocal(time.Now(), s.loc)
	}
	if sub.Machines == nil {
		sub.Machines = []string{}
	}
	if err := s.tree.Set(ctx, subscriptionPath(sub.Endpoint), sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *treeStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	raw, err := s.tree.Get(ctx, subscriptionPath(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}
	v, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}
	rec, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotFound
	}
	sub := decodeSubscription(rec)
	return &sub, nil
}

func (s *treeStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.tree.Set(ctx, subscriptionPath(endpoint), nil); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *treeStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	raw, err := s.tree.Get(ctx, subscriptionsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	v, err := decodeAny(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}

	children := asMap(v)
	subs := make([]model.PushSubscription, 0, len(children))
	for _, k := range sortedKeys(children, lexical) {
		rec, ok := children[k].(map[string]any)
		if !ok {
			continue
		}
		sub := decodeSubscription(rec)
		if sub.Endpoint == "" {
			s.log.Warn("skipping subscription without endpoint", zap.String("key", k))
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func checkKeys(keys ...string) error {
	for _, k := range keys {
		if err := parse.ValidKey(k); err != nil {
			return err
		}
	}
	return nil
}
