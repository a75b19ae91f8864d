package sales

import (
	"sort"
	"time"

	"vending-panel-backend/internal/model"
)

// Window is revenue and sale count over a period.
type Window struct {
	Revenue float64 `json:"revenue"`
	Count   int     `json:"count"`
}

// HourCount is the number of sales within one hour of the day.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// ProductCount is how many times a product sold.
type ProductCount struct {
	Product string `json:"product"`
	Count   int    `json:"count"`
}

// Report holds the aggregates over a machine's sales.
type Report struct {
	Today     Window `json:"today"`
	ThisMonth Window `json:"this_month"`
	Total     Window `json:"total"`
	// AverageTicket is nil when there are no sales.
	AverageTicket *float64       `json:"average_ticket"`
	Hourly        []HourCount    `json:"hourly"`
	TopProducts   []ProductCount `json:"top_products"`
}

// Aggregate computes the report as seen at now. Day and month boundaries and
// hours of the day are taken in now's location. Undated sales count only
// towards the total and the product ranking.
func Aggregate(sales []model.Sale, now time.Time) Report {
	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	var r Report
	var hours [24]int
	counts := make(map[string]int)
	var order []string

	for _, s := range sales {
		r.Total.add(s.Tutar)
		if !s.Tarih.IsZero() {
			if !s.Tarih.Before(monthStart) {
				r.ThisMonth.add(s.Tutar)
			}
			if !s.Tarih.Before(midnight) {
				r.Today.add(s.Tutar)
			}
			hours[s.Tarih.In(loc).Hour()]++
		}

		if _, seen := counts[s.Urun]; !seen {
			order = append(order, s.Urun)
		}
		counts[s.Urun]++
	}

	if r.Total.Count > 0 {
		avg := r.Total.Revenue / float64(r.Total.Count)
		r.AverageTicket = &avg
	}

	r.Hourly = make([]HourCount, 24)
	for h, c := range hours {
		r.Hourly[h] = HourCount{Hour: h, Count: c}
	}

	r.TopProducts = TopProducts(order, counts)
	return r
}

// TopProducts ranks products by count, descending. Ties keep the order in
// which products were first seen.
func TopProducts(order []string, counts map[string]int) []ProductCount {
	ranked := make([]ProductCount, 0, len(order))
	for _, p := range order {
		ranked = append(ranked, ProductCount{Product: p, Count: counts[p]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	return ranked
}

func (w *Window) add(amount float64) {
	w.Revenue += amount
	w.Count++
}
