package tree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Node is one leaf of the tree. Interior nodes exist only as path prefixes
// of their leaves, so empty objects disappear the way they do in Firebase.
type Node struct {
	Path      string         `gorm:"primaryKey;size:768"`
	Value     datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName pins the table name regardless of naming strategy.
func (Node) TableName() string { return "tree_nodes" }

// SQL is a Tree stored as leaf rows in a relational database.
type SQL struct {
	db *gorm.DB
}

// NewSQL creates a SQL-backed tree. The tree_nodes table must exist.
func NewSQL(db *gorm.DB) *SQL {
	return &SQL{db: db}
}

func (s *SQL) Get(ctx context.Context, path string) (json.RawMessage, error) {
	p := Join(path)

	var nodes []Node
	if err := subtree(s.db.WithContext(ctx), p).Order("path").Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	if len(nodes) == 0 {
		return Null, nil
	}
	if len(nodes) == 1 && nodes[0].Path == p {
		return json.RawMessage(nodes[0].Value), nil
	}

	root := make(map[string]any)
	for _, n := range nodes {
		rel := n.Path
		if p != "" {
			if !strings.HasPrefix(n.Path, p+"/") {
				continue
			}
			rel = n.Path[len(p)+1:]
		}
		v, err := decode(n.Value)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", n.Path, err)
		}
		insert(root, strings.Split(rel, "/"), v)
	}

	out, err := json.Marshal(arrayify(root))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", p, err)
	}
	return out, nil
}

func (s *SQL) Set(ctx context.Context, path string, v any) error {
	p := Join(path)
	leaves, err := flatten(p, v)
	if err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replace(tx, p, leaves)
	})
}

func (s *SQL) Update(ctx context.Context, path string, fields map[string]any) error {
	p := Join(path)
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Build every leaf before opening the transaction so a bad value
	// leaves the stored data untouched.
	children := make(map[string][]Node, len(keys))
	for _, k := range keys {
		child := Join(p, k)
		if child == p {
			return fmt.Errorf("update %s: empty key", p)
		}
		leaves, err := flatten(child, fields[k])
		if err != nil {
			return fmt.Errorf("update %s: %w", p, err)
		}
		children[k] = leaves
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			if err := replace(tx, Join(p, k), children[k]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQL) Keys(ctx context.Context, path string) ([]string, error) {
	p := Join(path)

	var paths []string
	if err := subtree(s.db.WithContext(ctx).Model(&Node{}), p).Order("path").Pluck("path", &paths).Error; err != nil {
		return nil, fmt.Errorf("keys %s: %w", p, err)
	}

	seen := make(map[string]bool)
	keys := make([]string, 0)
	for _, full := range paths {
		rel := full
		if p != "" {
			if !strings.HasPrefix(full, p+"/") {
				continue
			}
			rel = full[len(p)+1:]
		}
		k, _, _ := strings.Cut(rel, "/")
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// subtree scopes q to p and everything below it.
func subtree(q *gorm.DB, p string) *gorm.DB {
	if p == "" {
		return q
	}
	prefix := p + "/"
	return q.Where("path = ? OR substr(path, 1, ?) = ?", p, utf8.RuneCountInString(prefix), prefix)
}

// replace drops whatever lives at p, below p, or at a leaf above p, then
// writes leaves.
func replace(tx *gorm.DB, p string, leaves []Node) error {
	del := subtree(tx, p)
	if p == "" {
		del = tx.Where("1 = 1")
	}
	if err := del.Delete(&Node{}).Error; err != nil {
		return fmt.Errorf("clear %s: %w", p, err)
	}

	if ancestors := ancestorsOf(p); len(ancestors) > 0 {
		if err := tx.Where("path IN ?", ancestors).Delete(&Node{}).Error; err != nil {
			return fmt.Errorf("clear parents of %s: %w", p, err)
		}
	}

	if len(leaves) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(leaves, 100).Error; err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

func ancestorsOf(p string) []string {
	if p == "" {
		return nil
	}
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// flatten turns v into one Node per scalar, keyed by full path.
func flatten(p string, v any) ([]Node, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	generic, err := decode(raw)
	if err != nil {
		return nil, err
	}

	var leaves []Node
	var walk func(path string, v any) error
	walk = func(path string, v any) error {
		switch t := v.(type) {
		case nil:
			return nil
		case map[string]any:
			for k, child := range t {
				if k == "" {
					return fmt.Errorf("empty key under %q", path)
				}
				if err := walk(Join(path, k), child); err != nil {
					return err
				}
			}
			return nil
		case []any:
			for i, child := range t {
				if err := walk(Join(path, strconv.Itoa(i)), child); err != nil {
					return err
				}
			}
			return nil
		}
		if path == "" {
			return fmt.Errorf("cannot store a scalar at the root")
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		leaves = append(leaves, Node{Path: path, Value: datatypes.JSON(b)})
		return nil
	}

	if err := walk(p, generic); err != nil {
		return nil, err
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Path < leaves[j].Path })
	return leaves, nil
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func insert(root map[string]any, segs []string, v any) {
	node := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
	node[segs[len(segs)-1]] = v
}

// arrayify mirrors how Firebase renders objects: when every key is a
// non-negative integer and more than half of the indexes up to the largest
// are present, the object comes back as an array with nulls in the gaps.
func arrayify(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, child := range m {
		m[k] = arrayify(child)
	}

	maxIdx := -1
	for k := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || strconv.Itoa(i) != k {
			return m
		}
		if i > maxIdx {
			maxIdx = i
		}
	}
	if len(m) == 0 || len(m)*2 <= maxIdx+1 {
		return m
	}

	arr := make([]any, maxIdx+1)
	for k, child := range m {
		i, _ := strconv.Atoi(k)
		arr[i] = child
	}
	return arr
}
