package models

import (
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

// StatusCategory is the fixed workflow bucket a custom status belongs to
type StatusCategory string

const (
	CategoryNew      StatusCategory = "NOU"
	CategoryInWork   StatusCategory = "INLUCRU"
	CategoryWaiting  StatusCategory = "INASTEPTARE"
	CategoryFinished StatusCategory = "FINALIZAT"
	CategoryWon      StatusCategory = "CASTIGAT"
	CategoryLost     StatusCategory = "PIERDUT"
	CategoryCourier  StatusCategory = "CURIER"
)

// StatusCategories lists the categories in display order
var StatusCategories = []StatusCategory{
	CategoryNew,
	CategoryInWork,
	CategoryWaiting,
	CategoryFinished,
	CategoryWon,
	CategoryLost,
	CategoryCourier,
}

var categoryLabels = map[StatusCategory]string{
	CategoryNew:      "📥 NOU",
	CategoryInWork:   "🔧 ÎN LUCRU",
	CategoryWaiting:  "⏳ ÎN AȘTEPTARE",
	CategoryFinished: "✅ FINALIZAT",
	CategoryWon:      "🏆 CÂȘTIGAT",
	CategoryLost:     "❌ PIERDUT",
	CategoryCourier:  "🚚 CURIER",
}

// Valid reports whether c is one of the known categories
func (c StatusCategory) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Label returns the display label of the category, or the raw value for
// unknown categories.
func (c StatusCategory) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// rank orders categories; unknown ones sort last
func (c StatusCategory) rank() int {
	for i, cat := range StatusCategories {
		if cat == c {
			return i
		}
	}
	return len(StatusCategories)
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// IsHexColor reports whether s is a #rgb or #rrggbb color
func IsHexColor(s string) bool {
	return hexColor.MatchString(s)
}

// DefaultStatusColor is applied when a status is created without a color
const DefaultStatusColor = "#6b7280"

// CustomStatus is a tenant-defined ticket status. Tickets reference it by
// Label, which is unique within the tenant.
type CustomStatus struct {
	ID        uuid.UUID `json:"status_id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
	TenantID  uuid.UUID `json:"-" db:"tenant_id"`

	Category     StatusCategory `json:"category" db:"category"`
	Label        string         `json:"label" db:"label"`
	Color        string         `json:"color" db:"color"`
	Icon         string         `json:"icon" db:"icon"`
	Description  string         `json:"description" db:"description"`
	Order        int            `json:"order" db:"sort_order"`
	IsFinal      bool           `json:"is_final" db:"is_final"`
	RequiresNote bool           `json:"requires_note" db:"requires_note"`
}

// SortStatuses orders statuses by category, then Order, then creation time.
// The sort is stable so equal keys keep their input order.
func SortStatuses(statuses []*CustomStatus) {
	sort.SliceStable(statuses, func(i, j int) bool {
		a, b := statuses[i], statuses[j]
		if ra, rb := a.Category.rank(), b.Category.rank(); ra != rb {
			return ra < rb
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// StatusGroup is one category section of the status catalog
type StatusGroup struct {
	Category StatusCategory  `json:"category"`
	Label    string          `json:"label"`
	Statuses []*CustomStatus `json:"statuses"`
}

// GroupByCategory buckets statuses by category. Known categories come first
// in fixed order, unknown ones follow in order of first appearance. Within a
// group statuses are ordered by Order ascending.
func GroupByCategory(statuses []*CustomStatus) []StatusGroup {
	sorted := make([]*CustomStatus, len(statuses))
	copy(sorted, statuses)
	SortStatuses(sorted)

	var groups []StatusGroup
	index := make(map[StatusCategory]int)
	for _, s := range sorted {
		i, ok := index[s.Category]
		if !ok {
			i = len(groups)
			index[s.Category] = i
			groups = append(groups, StatusGroup{
				Category: s.Category,
				Label:    s.Category.Label(),
			})
		}
		groups[i].Statuses = append(groups[i].Statuses, s)
	}
	return groups
}

// DefaultStatuses is the catalog seeded for a new tenant
func DefaultStatuses() []*CustomStatus {
	return []*CustomStatus{
		{Category: CategoryNew, Label: "Nou", Color: "#3b82f6", Icon: "📥", Description: "Dispozitiv preluat", Order: 1},
		{Category: CategoryNew, Label: "Diagnosticare", Color: "#6366f1", Icon: "🔍", Order: 2},
		{Category: CategoryInWork, Label: "În lucru", Color: "#f59e0b", Icon: "🔧", Order: 1},
		{Category: CategoryWaiting, Label: "Așteaptă piese", Color: "#a855f7", Icon: "📦", Order: 1},
		{Category: CategoryWaiting, Label: "Așteaptă confirmare client", Color: "#ec4899", Icon: "📞", Order: 2, RequiresNote: true},
		{Category: CategoryFinished, Label: "Finalizat", Color: "#10b981", Icon: "✅", Order: 1, IsFinal: true},
		{Category: CategoryWon, Label: "Predat client", Color: "#059669", Icon: "🏆", Order: 1, IsFinal: true},
		{Category: CategoryLost, Label: "Refuzat", Color: "#ef4444", Icon: "❌", Order: 1, IsFinal: true, RequiresNote: true},
		{Category: CategoryCourier, Label: "Trimis prin curier", Color: "#0ea5e9", Icon: "🚚", Order: 1},
	}
}
