// Package treetest provides an in-memory SQL tree for tests.
package treetest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vending-panel-backend/internal/tree"
)

var seq atomic.Int64

// New returns an empty tree backed by a private in-memory sqlite database.
func New(t testing.TB) *tree.SQL {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&tree.Node{}))
	return tree.NewSQL(db)
}

// Seed writes v at path and fails the test on error.
func Seed(t testing.TB, tr tree.Tree, path string, v any) {
	t.Helper()
	require.NoError(t, tr.Set(t.Context(), path, v))
}
