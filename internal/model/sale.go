package model

import (
	"encoding/json"
	"time"
)

// RawSale is one sales ledger entry exactly as stored; field names vary
// between device firmware versions.
type RawSale map[string]any

// UnknownProduct labels sales that name neither a product nor a slot.
const UnknownProduct = "Bilinmiyor"

// Sale is the canonical form of a completed transaction. A zero Tarih means
// the ledger entry carried no timestamp.
type Sale struct {
	Tarih time.Time `json:"tarih"`
	Tutar float64   `json:"tutar"`
	Kutu  string    `json:"kutu"`
	Durum string    `json:"durum"`
	Urun  string    `json:"urun"`
}

// MarshalJSON renders an undated sale with a null tarih.
func (s Sale) MarshalJSON() ([]byte, error) {
	type plain Sale
	var tarih *time.Time
	if !s.Tarih.IsZero() {
		tarih = &s.Tarih
	}
	return json.Marshal(struct {
		plain
		Tarih *time.Time `json:"tarih"`
	}{plain: plain(s), Tarih: tarih})
}
