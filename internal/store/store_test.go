package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/parse"
	"vending-panel-backend/internal/tree"
	"vending-panel-backend/internal/tree/treetest"
)

var istanbul = time.FixedZone("UTC+3", 3*3600)

func newTestStore(t *testing.T) (Store, tree.Tree) {
	tr := treetest.New(t)
	return NewTreeStore(tr, istanbul, zap.NewNop()), tr
}

func TestTreeStore_Users(t *testing.T) {
	ctx := context.Background()
	s, tr := newTestStore(t)

	_, err := s.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateUser(ctx, model.User{
		ID: "uid-1", Email: "bayi@example.com", FullName: "Ayşe Bayi", Machines: []string{"DEMO"},
	}))

	raw, err := tr.Get(ctx, "users/uid-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"email":"bayi@example.com","full_name":"Ayşe Bayi","approved":false,"machines":["DEMO"]}`, string(raw))

	require.NoError(t, s.UpdateUserAccess(ctx, "uid-1", true, []string{"ETM_001", "ETM_002"}))

	u, err := s.GetUser(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, &model.User{
		ID: "uid-1", Email: "bayi@example.com", FullName: "Ayşe Bayi",
		Approved: true, Machines: []string{"ETM_001", "ETM_002"},
	}, u)
}

func TestTreeStore_MachineSetEncodings(t *testing.T) {
	ctx := context.Background()
	s, tr := newTestStore(t)

	treetest.Seed(t, tr, "users/single", map[string]any{"email": "a@x", "approved": true, "machines": "ETM_001"})
	treetest.Seed(t, tr, "users/list", map[string]any{"email": "b@x", "approved": "true", "machines": []any{"ETM_001", "", "ETM_002", "ETM_001"}})
	treetest.Seed(t, tr, "users/keyed", map[string]any{"email": "c@x", "machines": map[string]any{"b": "ETM_003", "a": "ETM_002"}})
	treetest.Seed(t, tr, "users/none", map[string]any{"email": "d@x"})

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 4)

	got := make(map[string]model.User)
	for _, u := range users {
		got[u.ID] = u
	}
	assert.Equal(t, []string{"ETM_001"}, got["single"].Machines)
	assert.Equal(t, []string{"ETM_001", "ETM_002"}, got["list"].Machines)
	assert.True(t, got["list"].Approved)
	assert.Equal(t, []string{"ETM_002", "ETM_003"}, got["keyed"].Machines)
	assert.Empty(t, got["none"].Machines)
	assert.False(t, got["none"].Approved)
}

func TestTreeStore_MachineRegistryAndInfo(t *testing.T) {
	ctx := context.Background()
	s, tr := newTestStore(t)

	ids, err := s.ListMachineIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	treetest.Seed(t, tr, "machines/ETM_002/info", map[string]any{
		"last_seen": "2024-05-01 12:30:00", "temperature": "4.5", "location": "Kadıköy", "online_status": true,
	})
	treetest.Seed(t, tr, "machines/ETM_001/slots/1", map[string]any{"price": 5})

	ids, err = s.ListMachineIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETM_001", "ETM_002"}, ids)

	info, err := s.GetMachineInfo(ctx, "ETM_002")
	require.NoError(t, err)
	assert.Equal(t, &model.MachineInfo{
		LastSeen: "2024-05-01 12:30:00", Temperature: 4.5, Location: "Kadıköy", OnlineStatus: true,
	}, info)

	info, err = s.GetMachineInfo(ctx, "ETM_001")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestTreeStore_GetSlots(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name  string
		value any
		want  model.Slots
	}{
		{
			name:  "legacy array with holes",
			value: []any{nil, map[string]any{"price": 5, "enabled": true}, nil},
			want:  model.Slots{"1": {ID: "1", Price: 5, Enabled: true}},
		},
		{
			name:  "dense legacy array",
			value: []any{map[string]any{"price": 3}, map[string]any{"price": "7", "enabled": "true"}},
			want: model.Slots{
				"0": {ID: "0", Price: 3},
				"1": {ID: "1", Price: 7, Enabled: true},
			},
		},
		{
			name: "map with non-numeric id",
			value: map[string]any{
				"3":  map[string]any{"price": 12.0, "enabled": false, "product_name": "Gül", "image_url": "https://img/3"},
				"A1": map[string]any{"price": -4, "enabled": true},
				"9":  "garbage",
			},
			want: model.Slots{
				"3":  {ID: "3", Price: 12, ProductName: "Gül", ImageURL: "https://img/3"},
				"A1": {ID: "A1", Price: 0, Enabled: true},
			},
		},
		{
			name:  "missing",
			value: nil,
			want:  model.Slots{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, tr := newTestStore(t)
			treetest.Seed(t, tr, "machines/M1/slots", tc.value)

			got, err := s.GetSlots(ctx, "M1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTreeStore_SlotWrites(t *testing.T) {
	ctx := context.Background()
	s, tr := newTestStore(t)

	treetest.Seed(t, tr, "machines/M1/slots/2", map[string]any{
		"price": 10, "enabled": false, "product_name": "Lale", "image_url": "https://old", "stock": 4,
	})

	require.NoError(t, s.UpdateSlot(ctx, "M1", "2", 15, true))
	raw, err := tr.Get(ctx, "machines/M1/slots/2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":15,"enabled":true,"product_name":"Lale","image_url":"https://old","stock":4}`, string(raw))

	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, s.RestockSlot(ctx, "M1", "2", model.Restock{ProductName: "Orkide", Price: 40, At: at}))
	raw, err = tr.Get(ctx, "machines/M1/slots/2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"price":40,"enabled":true,"product_name":"Orkide","image_url":"https://old","stock":4,"last_restock":"2024-05-01 12:30:00"}`, string(raw))

	require.NoError(t, s.RestockSlot(ctx, "M1", "2", model.Restock{ProductName: "Orkide", Price: 40, ImageURL: "https://new", At: at}))
	slots, err := s.GetSlots(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, "https://new", slots["2"].ImageURL)

	require.NoError(t, s.SendOpenCommand(ctx, "M1", model.OpenGateCommand{SlotID: "2", Timestamp: 1714555800.25}))
	raw, err = tr.Get(ctx, "machines/M1/commands")
	require.NoError(t, err)
	assert.JSONEq(t, `{"open_gate":"2","timestamp":1714555800.25}`, string(raw))
}

func TestTreeStore_RejectsBadKeys(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	assert.ErrorIs(t, s.UpdateSlot(ctx, "M1", "../users", 1, true), parse.ErrInvalidKey)
	_, err := s.GetSlots(ctx, "")
	assert.ErrorIs(t, err, parse.ErrInvalidKey)
	_, err = s.GetUser(ctx, "a.b")
	assert.ErrorIs(t, err, parse.ErrInvalidKey)
}

func TestTreeStore_GetSales(t *testing.T) {
	ctx := context.Background()
	s, tr := newTestStore(t)

	sales, err := s.GetSales(ctx, "M1")
	require.NoError(t, err)
	assert.Empty(t, sales)

	treetest.Seed(t, tr, "machines/M1/satis_hareketleri", map[string]any{
		"-Nb": map[string]any{"date": "2024-05-01 10:00:00", "price": 20},
		"-Na": map[string]any{"tarih": "2024-05-01 09:00:00", "fiyat": 10},
		"-Nc": "not a sale",
	})

	sales, err = s.GetSales(ctx, "M1")
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "2024-05-01 09:00:00", sales[0]["tarih"])
	assert.Equal(t, "2024-05-01 10:00:00", sales[1]["date"])
}

func TestTreeStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	sub := model.PushSubscription{
		Endpoint: "https://push.example.com/send/abc.def?x=1",
		P256DH:   "key", Auth: "auth", UserID: "uid-1",
		Machines: []string{"ETM_001"},
	}
	require.NoError(t, s.PutSubscription(ctx, sub))
	require.NoError(t, s.PutSubscription(ctx, sub))

	subs, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.Endpoint, subs[0].Endpoint)
	assert.Equal(t, []string{"ETM_001"}, subs[0].Machines)
	assert.NotEmpty(t, subs[0].Created)

	got, err := s.GetSubscription(ctx, sub.Endpoint)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", got.UserID)

	require.NoError(t, s.DeleteSubscription(ctx, sub.Endpoint))
	subs, err = s.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
	_, err = s.GetSubscription(ctx, sub.Endpoint)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTreeStore_RemoteFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)
	s := NewTreeStore(tree.NewSQL(gormDB), istanbul, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tree_nodes"`)).
		WillReturnError(errors.New("network unreachable"))

	_, err = s.GetSlots(context.Background(), "M1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch slots for machine M1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
