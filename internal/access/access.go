// Package access decides who may use the panel and which machines they see.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vending-panel-backend/internal/identity"
	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPendingApproval    = errors.New("account is waiting for administrator approval")
	ErrForbidden          = errors.New("not allowed")
	ErrUnknownMachine     = errors.New("machine is not registered")
)

// Identity is an authenticated panel user and the machines they may manage.
type Identity struct {
	UserID   string     `json:"user_id"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
	Machines []string   `json:"machines"`
}

// IsAdmin reports whether the identity has the administrator role.
func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

// CanAccess reports whether mid is in the identity's machine set.
func (i Identity) CanAccess(mid string) bool {
	for _, m := range i.Machines {
		if m == mid {
			return true
		}
	}
	return false
}

// Options holds the gate's fixed policy values.
type Options struct {
	AdminEmail         string
	DefaultMachine     string
	PlaceholderMachine string
	AdminName          string
}

// Gate authenticates users and authorizes machine access.
type Gate struct {
	provider identity.Provider
	store    store.Store
	opts     Options
	log      *zap.Logger
}

// NewGate creates a gate.
func NewGate(provider identity.Provider, st store.Store, opts Options, log *zap.Logger) *Gate {
	if opts.AdminName == "" {
		opts.AdminName = "Yönetici"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{provider: provider, store: st, opts: opts, log: log}
}

// Authenticate checks credentials with the identity provider and resolves
// the caller's role and machine set. The administrator sees every
// registered machine; dealers see their own set once approved.
func (g *Gate) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Identity{}, ErrInvalidCredentials
	}

	acct, err := g.provider.SignIn(ctx, email, password)
	if err != nil {
		g.log.Info("sign-in refused", zap.String("email", email), zap.Error(err))
		return Identity{}, ErrInvalidCredentials
	}

	if g.IsAdminEmail(email) {
		machines, err := g.store.ListMachineIDs(ctx)
		if err != nil {
			return Identity{}, fmt.Errorf("load machine registry: %w", err)
		}
		if len(machines) == 0 {
			machines = []string{g.opts.DefaultMachine}
		}
		return Identity{
			UserID:   acct.LocalID,
			Email:    email,
			Name:     g.opts.AdminName,
			Role:     model.RoleAdmin,
			Machines: machines,
		}, nil
	}

	user, err := g.store.GetUser(ctx, acct.LocalID)
	if errors.Is(err, store.ErrNotFound) {
		// Signed up at the provider but never got a panel record.
		return Identity{}, ErrPendingApproval
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load user %s: %w", acct.LocalID, err)
	}
	if !user.Approved {
		return Identity{}, ErrPendingApproval
	}

	machines := user.Machines
	if machines == nil {
		machines = []string{}
	}
	return Identity{
		UserID:   acct.LocalID,
		Email:    email,
		Name:     user.FullName,
		Role:     model.RoleDealer,
		Machines: machines,
	}, nil
}

// Register creates an account at the provider and an unapproved user
// record holding only the placeholder machine. Provider errors are
// returned unchanged.
func (g *Gate) Register(ctx context.Context, fullName, email, password string) (string, error) {
	acct, err := g.provider.SignUp(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return "", err
	}

	user := model.User{
		ID:       acct.LocalID,
		Email:    strings.TrimSpace(email),
		FullName: strings.TrimSpace(fullName),
		Approved: false,
		Machines: []string{g.opts.PlaceholderMachine},
	}
	if err := g.store.CreateUser(ctx, user); err != nil {
		return "", fmt.Errorf("create user record: %w", err)
	}
	return acct.LocalID, nil
}

// SetUserAccess overwrites a user's approval flag and machine set. Only
// an administrator may call it, and every machine must be registered.
func (g *Gate) SetUserAccess(ctx context.Context, admin Identity, uid string, approved bool, machines []string) error {
	if !admin.IsAdmin() {
		return ErrForbidden
	}

	registry, err := g.store.ListMachineIDs(ctx)
	if err != nil {
		return fmt.Errorf("load machine registry: %w", err)
	}
	known := make(map[string]bool, len(registry))
	for _, m := range registry {
		known[m] = true
	}

	set := make([]string, 0, len(machines))
	seen := make(map[string]bool, len(machines))
	for _, m := range machines {
		if !known[m] {
			return fmt.Errorf("%w: %s", ErrUnknownMachine, m)
		}
		if !seen[m] {
			seen[m] = true
			set = append(set, m)
		}
	}

	if err := g.store.UpdateUserAccess(ctx, uid, approved, set); err != nil {
		return err
	}
	g.log.Info("user access updated",
		zap.String("uid", uid), zap.Bool("approved", approved), zap.Strings("machines", set))
	return nil
}

// ManagedUser is a user record as the administrator's user list shows it.
type ManagedUser struct {
	model.User
	// StaleMachines are stored references to machines no longer registered.
	StaleMachines []string `json:"stale_machines,omitempty"`
}

// ListUsers returns every user except the administrator, with machine sets
// split into registered and stale references, plus the registry itself.
func (g *Gate) ListUsers(ctx context.Context, admin Identity) ([]ManagedUser, []string, error) {
	if !admin.IsAdmin() {
		return nil, nil, ErrForbidden
	}
	registry, err := g.store.ListMachineIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load machine registry: %w", err)
	}
	users, err := g.store.ListUsers(ctx)
	if err != nil {
		return nil, nil, err
	}

	known := make(map[string]bool, len(registry))
	for _, m := range registry {
		known[m] = true
	}

	out := make([]ManagedUser, 0, len(users))
	for _, u := range users {
		if g.IsAdminEmail(u.Email) {
			continue
		}
		mu := ManagedUser{User: u}
		mu.Machines = make([]string, 0, len(u.Machines))
		for _, m := range u.Machines {
			if known[m] {
				mu.Machines = append(mu.Machines, m)
			} else {
				mu.StaleMachines = append(mu.StaleMachines, m)
			}
		}
		out = append(out, mu)
	}
	return out, registry, nil
}

// Authorize checks that id may act on machine mid.
func (g *Gate) Authorize(id Identity, mid string) error {
	if !id.CanAccess(mid) {
		return fmt.Errorf("%w: machine %s", ErrForbidden, mid)
	}
	return nil
}

// IsAdminEmail compares against the configured administrator address,
// ignoring case and surrounding space.
func (g *Gate) IsAdminEmail(email string) bool {
	return g.opts.AdminEmail != "" &&
		strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(g.opts.AdminEmail))
}
