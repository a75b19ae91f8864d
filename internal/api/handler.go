package api

import (
	"context"
	"io"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"vending-panel-backend/internal/access"
	"vending-panel-backend/internal/sales"
	"vending-panel-backend/internal/session"
	"vending-panel-backend/internal/status"
	"vending-panel-backend/internal/store"
)

// PhotoStore saves a slot photo and returns its public URL.
type PhotoStore interface {
	StoreSlotPhoto(ctx context.Context, mid, sid string, r io.Reader) (string, error)
}

// Deps are the collaborators the handlers need.
type Deps struct {
	Store      store.Store
	Gate       *access.Gate
	Sessions   *session.Manager
	Evaluator  status.Evaluator
	Normalizer *sales.Normalizer
	Photos     PhotoStore
	WebPush    *webpush.Options
	// Location is the machines' wall-clock zone; sales days and restock
	// timestamps use it.
	Location       *time.Location
	SecureCookies  bool
	MaxUploadBytes int64
	Log            *zap.Logger
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store      store.Store
	gate       *access.Gate
	sessions   *session.Manager
	evaluator  status.Evaluator
	normalizer *sales.Normalizer
	photos     PhotoStore
	webpush    *webpush.Options
	loc        *time.Location
	secure     bool
	maxUpload  int64
	log        *zap.Logger
	now        func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Normalizer == nil {
		d.Normalizer = sales.NewNormalizer(d.Location, d.Log)
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 16 << 20
	}
	return &Handler{
		store:      d.Store,
		gate:       d.Gate,
		sessions:   d.Sessions,
		evaluator:  d.Evaluator,
		normalizer: d.Normalizer,
		photos:     d.Photos,
		webpush:    d.WebPush,
		loc:        d.Location,
		secure:     d.SecureCookies,
		maxUpload:  d.MaxUploadBytes,
		log:        d.Log,
		now:        time.Now,
	}
}
