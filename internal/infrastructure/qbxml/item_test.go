package qbxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/shared"
)

func wireSpec() ItemSpec {
	active := true
	return ItemSpec{
		RequestID:           NewItemRequestID("evt_300", "Supplies:Bonsai Wire", 0),
		FullName:            "Supplies:Bonsai Wire",
		SKU:                 "WIRE-2MM",
		IncomeAccount:       "Sales:Supplies",
		COGSAccount:         "Cost of Goods Sold",
		AssetAccount:        "Inventory Asset",
		SalesDescription:    "Bonsai wire 2mm",
		PurchaseDescription: "Bonsai wire 2mm",
		SalesPrice:          "12.50",
		PurchaseCost:        "4.250",
		IsActive:            &active,
	}
}

func TestBuildItemCreate(t *testing.T) {
	out, err := BuildItemCreate(wireSpec(), Version{Major: 13})
	require.NoError(t, err)
	newGoldie(t).Assert(t, "item_create_hierarchical", []byte(out))
}

func TestBuildItemCreate_FlatNameOmitsOptionalFields(t *testing.T) {
	spec := ItemSpec{
		RequestID:     "r1",
		FullName:      "POT-9",
		IncomeAccount: "Sales",
		COGSAccount:   "COGS",
		AssetAccount:  "Inventory Asset",
	}
	out, err := BuildItemCreate(spec, Version{Major: 13})
	require.NoError(t, err)

	assert.Contains(t, out, "<Name>POT-9</Name><IncomeAccountRef>")
	assert.NotContains(t, out, "ParentRef")
	assert.NotContains(t, out, "IsActive")
	assert.NotContains(t, out, "SalesPrice")
}

func TestItemSpec_Validate(t *testing.T) {
	t.Run("names every missing mapping", func(t *testing.T) {
		spec := ItemSpec{FullName: "Supplies:Moss", SKU: "MOSS-1", AssetAccount: "Inventory Asset"}
		err := spec.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrMissingAccountMapping)
		assert.Equal(t, "Cannot auto-create item MOSS-1: missing income account, COGS account mapping.", err.Error())
	})

	t.Run("segment too long", func(t *testing.T) {
		spec := wireSpec()
		spec.FullName = "Supplies:An extremely long bonsai wire name"
		assert.ErrorIs(t, spec.Validate(), shared.ErrInvalidEvent)
	})

	t.Run("bad price", func(t *testing.T) {
		spec := wireSpec()
		spec.SalesPrice = "cheap"
		_, err := BuildItemCreate(spec, Version{Major: 13})
		assert.ErrorIs(t, err, shared.ErrInvalidQuantity)
	})
}

func TestNewItemRequestID_Deterministic(t *testing.T) {
	a := NewItemRequestID("evt_300", "Supplies:Bonsai Wire", 0)
	b := NewItemRequestID("evt_300", "supplies:bonsai wire", 0)

	assert.Equal(t, "6f239263-f809-5215-a336-b6702d81ee03", a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, NewItemRequestID("evt_300", "Supplies:Bonsai Wire", 1))
	assert.NotEqual(t, a, NewItemRequestID("evt_301", "Supplies:Bonsai Wire", 0))
}
