// Package listing turns a raw collection and a FilterState into the exact
// ordered collection a listing page renders.
package listing

import (
	"cmp"
	"math"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Schema exposes the fields of T that predicates and comparators read.
// A nil accessor disables every predicate and comparator that needs it.
type Schema[T any] struct {
	Name     func(T) string
	Category func(T) string
	Retailer func(T) string
	InStock  func(T) bool
	Price    func(T) float64
	Change   func(T) float64 // percentage change, negative for drops
	Age      func(T) float64 // days since the event
}

// Pipeline filters, sorts and pages collections of T.
type Pipeline[T any] struct {
	schema Schema[T]
	locale language.Tag
}

// New creates a pipeline. Names are compared with the collation of locale.
func New[T any](schema Schema[T], locale language.Tag) *Pipeline[T] {
	return &Pipeline[T]{schema: schema, locale: locale}
}

// Result is the rendered collection plus pagination facts.
type Result[T any] struct {
	Items   []T
	Total   int
	Page    int
	PerPage int
	HasMore bool
}

// Apply returns the filtered and sorted collection. The input slice is never
// modified; the result is always a new slice.
func (p *Pipeline[T]) Apply(items []T, f FilterState) []T {
	out := p.filter(items, f)
	p.sort(out, f.SortBy)
	return out
}

// Run applies the pipeline and fills in pagination. serverTotal is the
// backend's total for ModeServer and ignored for ModeClient.
func (p *Pipeline[T]) Run(items []T, f FilterState, serverTotal int) Result[T] {
	out := p.Apply(items, f)
	res := Result[T]{Items: out, Page: f.Page, PerPage: f.PerPage}

	switch f.Mode {
	case ModeServer:
		res.Total = serverTotal
		if res.Total < len(out) {
			res.Total = len(out)
		}
		res.HasMore = f.PerPage > 0 && f.Page*f.PerPage < serverTotal
	default:
		res.Total = len(out)
		res.Page = 1
		res.PerPage = len(out)
	}
	return res
}

func (p *Pipeline[T]) filter(items []T, f FilterState) []T {
	preds := p.predicates(f)
	out := make([]T, 0, len(items))
	for _, it := range items {
		keep := true
		for _, pred := range preds {
			if !pred(it) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, it)
		}
	}
	return out
}

func (p *Pipeline[T]) predicates(f FilterState) []func(T) bool {
	s := p.schema
	var preds []func(T) bool

	if f.Category != "" && f.Category != All && s.Category != nil {
		preds = append(preds, func(it T) bool { return s.Category(it) == f.Category })
	}
	if f.Retailer != "" && f.Retailer != All && s.Retailer != nil {
		preds = append(preds, func(it T) bool { return s.Retailer(it) == f.Retailer })
	}
	if f.Stock != StockAny && s.InStock != nil {
		want := f.Stock == StockIn
		preds = append(preds, func(it T) bool { return s.InStock(it) == want })
	}
	if f.MinPrice.Set && s.Price != nil {
		preds = append(preds, func(it T) bool { return s.Price(it) >= f.MinPrice.Value })
	}
	if f.MaxPrice.Set && s.Price != nil {
		preds = append(preds, func(it T) bool { return s.Price(it) <= f.MaxPrice.Value })
	}
	if f.MinDiscount.Set && s.Change != nil {
		preds = append(preds, func(it T) bool { return -s.Change(it) >= f.MinDiscount.Value })
	}
	return preds
}

func (p *Pipeline[T]) sort(items []T, key SortKey) {
	compare := p.comparator(key)
	if compare == nil {
		return
	}
	slices.SortStableFunc(items, compare)
}

func (p *Pipeline[T]) comparator(key SortKey) func(a, b T) int {
	s := p.schema
	switch key {
	case SortPriceAsc, SortPriceDesc:
		if s.Price == nil {
			return nil
		}
		return direction(key == SortPriceDesc, func(a, b T) int { return cmp.Compare(s.Price(a), s.Price(b)) })
	case SortNameAsc, SortNameDesc:
		if s.Name == nil {
			return nil
		}
		// Collator keeps internal buffers, one per sort.
		col := collate.New(p.locale, collate.IgnoreCase)
		return direction(key == SortNameDesc, func(a, b T) int { return col.CompareString(s.Name(a), s.Name(b)) })
	case SortChangeAsc, SortChangeDesc:
		if s.Change == nil {
			return nil
		}
		return direction(key == SortChangeDesc, func(a, b T) int {
			return cmp.Compare(math.Abs(s.Change(a)), math.Abs(s.Change(b)))
		})
	case SortRecent:
		if s.Age == nil {
			return nil
		}
		return func(a, b T) int { return cmp.Compare(s.Age(a), s.Age(b)) }
	default:
		return nil
	}
}

// direction flips an ascending comparator. Equal elements stay equal so the
// stable sort keeps their input order in both directions.
func direction[T any](desc bool, asc func(a, b T) int) func(a, b T) int {
	if !desc {
		return asc
	}
	return func(a, b T) int { return asc(b, a) }
}
