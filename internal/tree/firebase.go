package tree

import (
	"context"
	"encoding/json"
	"fmt"

	"firebase.google.com/go/v4/db"
)

// Firebase is a Tree backed by the Firebase Realtime Database.
type Firebase struct {
	client *db.Client
}

// NewFirebase wraps a Realtime Database client.
func NewFirebase(client *db.Client) *Firebase {
	return &Firebase{client: client}
}

func (f *Firebase) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := f.client.NewRef(path).Get(ctx, &raw); err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	if IsNull(raw) {
		return Null, nil
	}
	return raw, nil
}

func (f *Firebase) Keys(ctx context.Context, path string) ([]string, error) {
	var raw json.RawMessage
	if err := f.client.NewRef(path).GetShallow(ctx, &raw); err != nil {
		return nil, fmt.Errorf("keys %s: %w", path, err)
	}
	if IsNull(raw) {
		return nil, nil
	}
	return keysOf(raw), nil
}

func (f *Firebase) Set(ctx context.Context, path string, v any) error {
	if err := f.client.NewRef(path).Set(ctx, v); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (f *Firebase) Update(ctx context.Context, path string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := f.client.NewRef(path).Update(ctx, fields); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}
