package listing

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// All is the sentinel filter value that disables a predicate.
const All = "all"

// SortKey selects the comparator applied after filtering.
type SortKey string

const (
	SortNone       SortKey = ""
	SortPriceAsc   SortKey = "price_asc"
	SortPriceDesc  SortKey = "price_desc"
	SortNameAsc    SortKey = "name_asc"
	SortNameDesc   SortKey = "name_desc"
	SortChangeAsc  SortKey = "change_asc"
	SortChangeDesc SortKey = "change_desc"
	SortRecent     SortKey = "recent"
)

var sortKeys = map[SortKey]bool{
	SortNone: true, SortPriceAsc: true, SortPriceDesc: true, SortNameAsc: true,
	SortNameDesc: true, SortChangeAsc: true, SortChangeDesc: true, SortRecent: true,
}

// Stock filters on availability.
type Stock int

const (
	StockAny Stock = iota
	StockIn
	StockOut
)

// Bound is an optional numeric limit.
type Bound struct {
	Set   bool
	Value float64
}

// At returns a set bound.
func At(v float64) Bound { return Bound{Set: true, Value: v} }

// Mode says who paginates the collection.
type Mode int

const (
	// ModeServer: the backend already returned one page; no slicing.
	ModeServer Mode = iota
	// ModeClient: the whole collection is held locally and returned in full.
	ModeClient
)

// FilterState is the full set of predicate, sort and pagination parameters of
// one listing. The zero value filters nothing and keeps input order.
// FilterState is comparable so it can key a Memo.
type FilterState struct {
	Category    string
	Retailer    string
	Stock       Stock
	MinPrice    Bound
	MaxPrice    Bound
	MinDiscount Bound // minimum price drop in percent, e.g. 40 keeps -42%
	SortBy      SortKey
	Page        int
	PerPage     int
	Mode        Mode
}

// FilterError describes an invalid filter parameter.
type FilterError struct {
	Field   string
	Message string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// DefaultPerPage is used when a listing request omits per_page.
const DefaultPerPage = 24

// MaxPerPage caps per_page.
const MaxPerPage = 100

// ParseQuery reads a FilterState from query parameters. Absent parameters keep
// their zero value; page defaults to 1 and per_page to DefaultPerPage.
func ParseQuery(q url.Values) (FilterState, []FilterError) {
	var (
		f    FilterState
		errs []FilterError
	)

	f.Category = normalizeSentinel(q.Get("category"))
	f.Retailer = normalizeSentinel(q.Get("retailer"))

	switch strings.ToLower(strings.TrimSpace(q.Get("in_stock"))) {
	case "", All:
	case "true", "1", "yes":
		f.Stock = StockIn
	case "false", "0", "no":
		f.Stock = StockOut
	default:
		errs = append(errs, FilterError{Field: "in_stock", Message: "must be true, false or all"})
	}

	for _, p := range []struct {
		name string
		dst  *Bound
	}{
		{"min_price", &f.MinPrice},
		{"max_price", &f.MaxPrice},
		{"min_discount", &f.MinDiscount},
	} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" || raw == All {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			errs = append(errs, FilterError{Field: p.name, Message: "must be a non-negative number"})
			continue
		}
		*p.dst = At(v)
	}
	if f.MinPrice.Set && f.MaxPrice.Set && f.MinPrice.Value > f.MaxPrice.Value {
		errs = append(errs, FilterError{Field: "max_price", Message: "must not be below min_price"})
	}

	f.SortBy = SortKey(strings.ToLower(strings.TrimSpace(q.Get("sort"))))
	if !sortKeys[f.SortBy] {
		errs = append(errs, FilterError{Field: "sort", Message: fmt.Sprintf("unknown sort key %q", f.SortBy)})
		f.SortBy = SortNone
	}

	f.Page = 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errs = append(errs, FilterError{Field: "page", Message: "must be a positive integer"})
		} else {
			f.Page = n
		}
	}
	f.PerPage = DefaultPerPage
	if raw := q.Get("per_page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > MaxPerPage {
			errs = append(errs, FilterError{Field: "per_page", Message: fmt.Sprintf("must be between 1 and %d", MaxPerPage)})
		} else {
			f.PerPage = n
		}
	}

	return f, errs
}

func normalizeSentinel(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, All) {
		return ""
	}
	return v
}
