package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_EmptyCart(t *testing.T) {
	summary := Empty("").Summarize()

	assert.Zero(t, summary.Subtotal)
	assert.Zero(t, summary.Tax)
	assert.Zero(t, summary.Shipping)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.ItemCount)
	assert.Empty(t, summary.PriceChangedItems)
}

func TestSummarize_FlatShippingBelowThreshold(t *testing.T) {
	cart := Cart{
		Items: []CartLine{
			{ID: "l1", ProductID: "p1", Quantity: 2, Price: 10},
			{ID: "l2", ProductID: "p2", Quantity: 3, Price: 10},
		},
	}

	summary := cart.Summarize()
	assert.Equal(t, 50.0, summary.Subtotal)
	assert.Equal(t, 5.0, summary.Tax)
	assert.Equal(t, 10.0, summary.Shipping)
	assert.Equal(t, 65.0, summary.Total)
	assert.Equal(t, 2, summary.ItemCount)
}

func TestSummarize_FreeShippingAboveThreshold(t *testing.T) {
	cart := Cart{
		Items: []CartLine{
			{ID: "l1", ProductID: "p1", Quantity: 3, Price: 50},
		},
	}

	summary := cart.Summarize()
	assert.Equal(t, 150.0, summary.Subtotal)
	assert.Equal(t, 0.0, summary.Shipping)
	assert.Equal(t, 165.0, summary.Total)
}

func TestSummarize_CollectsPriceChangedItems(t *testing.T) {
	cart := Cart{
		Items: []CartLine{
			{ID: "l1", ProductID: "p1", Quantity: 1, Price: 10, PriceChanged: true, PreviousPrice: 8},
			{ID: "l2", ProductID: "p2", Quantity: 1, Price: 5},
		},
	}

	summary := cart.Summarize()
	assert.Len(t, summary.PriceChangedItems, 1)
	assert.Equal(t, "l1", summary.PriceChangedItems[0].ID)
}

func TestHasUnacceptedPriceChanges(t *testing.T) {
	cart := Cart{Items: []CartLine{{ID: "l1", Price: 5}}}
	assert.False(t, cart.HasUnacceptedPriceChanges())

	cart.Items[0].PriceChanged = true
	assert.True(t, cart.HasUnacceptedPriceChanges())
}

func TestClone_IsolatesLines(t *testing.T) {
	cart := Cart{
		Items: []CartLine{
			{ID: "l1", Quantity: 1, Product: &ProductSnapshot{ID: "p1", Name: "Mug"}},
		},
	}

	clone := cart.Clone()
	clone.Items[0].Quantity = 99
	clone.Items[0].Product.Name = "changed"

	assert.Equal(t, 1, cart.Items[0].Quantity)
	assert.Equal(t, "Mug", cart.Items[0].Product.Name)
}

func TestLineLookups(t *testing.T) {
	cart := Cart{
		Items: []CartLine{
			{ID: "l1", ProductID: "p1"},
			{ID: "l2", ProductID: "p2"},
		},
	}

	assert.Equal(t, "p2", cart.LineByID("l2").ProductID)
	assert.Nil(t, cart.LineByID("missing"))
	assert.Equal(t, "l1", cart.LineByProductID("p1").ID)
	assert.Nil(t, cart.LineByProductID("missing"))
}
