package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByCategory(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	statuses := []*CustomStatus{
		{Category: CategoryLost, Label: "Refuzat", Order: 1, CreatedAt: base},
		{Category: "ARHIVAT", Label: "Arhivă", Order: 1, CreatedAt: base},
		{Category: CategoryNew, Label: "Diagnosticare", Order: 2, CreatedAt: base},
		{Category: CategoryNew, Label: "Nou", Order: 1, CreatedAt: base.Add(time.Minute)},
		{Category: CategoryInWork, Label: "În lucru", Order: 1, CreatedAt: base},
	}

	groups := GroupByCategory(statuses)
	require.Len(t, groups, 4)

	assert.Equal(t, CategoryNew, groups[0].Category)
	assert.Equal(t, "📥 NOU", groups[0].Label)
	require.Len(t, groups[0].Statuses, 2)
	assert.Equal(t, "Nou", groups[0].Statuses[0].Label)
	assert.Equal(t, "Diagnosticare", groups[0].Statuses[1].Label)

	assert.Equal(t, CategoryInWork, groups[1].Category)
	assert.Equal(t, CategoryLost, groups[2].Category)

	assert.Equal(t, StatusCategory("ARHIVAT"), groups[3].Category)
	assert.Equal(t, "ARHIVAT", groups[3].Label)

	// input untouched
	assert.Equal(t, "Refuzat", statuses[0].Label)
}

func TestGroupByCategoryEmpty(t *testing.T) {
	assert.Empty(t, GroupByCategory(nil))
}

func TestSortStatusesTieBreak(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	statuses := []*CustomStatus{
		{Category: CategoryWaiting, Label: "B", Order: 1, CreatedAt: base.Add(time.Second)},
		{Category: CategoryWaiting, Label: "A", Order: 1, CreatedAt: base},
	}
	SortStatuses(statuses)
	assert.Equal(t, "A", statuses[0].Label)
}

func TestCategoryValid(t *testing.T) {
	for _, c := range StatusCategories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, StatusCategory("nou").Valid())
	assert.False(t, StatusCategory("").Valid())
}

func TestIsHexColor(t *testing.T) {
	for _, c := range []string{"#fff", "#3B82F6", "#6b7280"} {
		assert.True(t, IsHexColor(c), c)
	}
	for _, c := range []string{"", "fff", "#ffff", "#ggg", "red", "#3b82f6 "} {
		assert.False(t, IsHexColor(c), c)
	}
}

func TestDefaultStatusesUniqueLabels(t *testing.T) {
	seen := make(map[string]bool)
	hasNew := false
	for _, s := range DefaultStatuses() {
		assert.False(t, seen[s.Label], "duplicate label %q", s.Label)
		seen[s.Label] = true
		assert.True(t, s.Category.Valid())
		assert.True(t, IsHexColor(s.Color))
		if s.Category == CategoryNew {
			hasNew = true
		}
	}
	assert.True(t, hasNew)
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	out, err := json.Marshal(Ticket{ID: "FX-1", EstimatedCost: decimal.RequireFromString("149.50")})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"estimated_cost":149.5`)
	assert.NotContains(t, string(out), "tenant_id")
}
