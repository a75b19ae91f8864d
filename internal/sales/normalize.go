// Package sales turns raw ledger entries into canonical sales and reports
// time-windowed aggregates over them.
package sales

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"vending-panel-backend/internal/model"
	"vending-panel-backend/internal/parse"
)

// Field name variants, most preferred first. Matching ignores case.
var (
	dateFields    = []string{"tarih", "date"}
	amountFields  = []string{"fiyat", "price"}
	slotFields    = []string{"kutu", "kutu_no"}
	statusFields  = []string{"durum"}
	productFields = []string{"urun", "ürün"}
)

// Normalizer canonicalizes ledger entries. Timestamps without a zone are
// read in Location.
type Normalizer struct {
	Location *time.Location
	Log      *zap.Logger
}

// NewNormalizer returns a Normalizer for loc.
func NewNormalizer(loc *time.Location, log *zap.Logger) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{Location: loc, Log: log}
}

// Normalize returns the canonical sales in ledger order. It returns nil when
// raw is empty or no entry carries a timestamp field. An entry without a
// timestamp field is kept with a zero Tarih; one whose timestamp cannot be
// read is dropped.
func (n *Normalizer) Normalize(raw []model.RawSale) []model.Sale {
	if len(raw) == 0 {
		return nil
	}

	var out []model.Sale
	dated := false
	for i, rec := range raw {
		fields := lowerKeys(rec)

		dateVal, ok := pick(fields, dateFields)
		if !ok {
			n.Log.Debug("sale without timestamp field", zap.Int("index", i))
			out = append(out, canonical(time.Time{}, fields))
			continue
		}
		dated = true

		ts, ok := parse.Timestamp(dateVal, n.Location)
		if !ok {
			n.Log.Warn("dropping sale with unreadable timestamp", zap.Int("index", i), zap.Any("value", dateVal))
			continue
		}
		out = append(out, canonical(ts, fields))
	}
	if !dated {
		return nil
	}
	return out
}

func canonical(ts time.Time, fields map[string]any) model.Sale {
	s := model.Sale{Tarih: ts}

	if v, ok := pick(fields, amountFields); ok {
		s.Tutar, _ = parse.Float(v)
	}
	if v, ok := pick(fields, slotFields); ok {
		s.Kutu = parse.String(v)
	}
	if v, ok := pick(fields, statusFields); ok {
		s.Durum = parse.String(v)
	}

	if v, ok := pick(fields, productFields); ok {
		s.Urun = parse.String(v)
	}
	switch {
	case s.Urun != "":
	case s.Kutu != "":
		s.Urun = s.Kutu
	default:
		s.Urun = model.UnknownProduct
	}
	return s
}

// lowerKeys folds key case. When two keys fold together the one already
// lower case wins, otherwise the lexically first.
func lowerKeys(rec model.RawSale) map[string]any {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(rec))
	for _, k := range keys {
		lk := strings.ToLower(k)
		if _, taken := out[lk]; taken && k != lk {
			continue
		}
		out[lk] = rec[k]
	}
	return out
}

func pick(fields map[string]any, names []string) (any, bool) {
	for _, name := range names {
		if v, ok := fields[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}
