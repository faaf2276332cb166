package domain

import "time"

// ProductSnapshot is the minimal denormalized product view kept on a cart
// line so the cart can render without re-fetching the catalog. Bulky fields
// (full image arrays) are intentionally excluded to bound storage size.
type ProductSnapshot struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Image        string  `json:"image,omitempty"`
	CurrentPrice float64 `json:"currentPrice"`
	Slug         string  `json:"slug"`
}

// CartLine is one product+quantity+price entry within a cart. A line with
// quantity <= 0 must be removed, never persisted at zero.
type CartLine struct {
	ID            string           `json:"id"`
	ProductID     string           `json:"productId"`
	Quantity      int              `json:"quantity"`
	Price         float64          `json:"price"`
	PriceChanged  bool             `json:"priceChanged"`
	PreviousPrice float64          `json:"previousPrice,omitempty"`
	Product       *ProductSnapshot `json:"product,omitempty"`
}

// Cart is either anonymous (empty UserID, tracked by a session id) or owned
// by exactly one authenticated user.
type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId,omitempty"`
	Items     []CartLine `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CartSummary is derived on every read, never persisted.
type CartSummary struct {
	Subtotal          float64    `json:"subtotal"`
	Tax               float64    `json:"tax"`
	Shipping          float64    `json:"shipping"`
	Total             float64    `json:"total"`
	ItemCount         int        `json:"itemCount"`
	PriceChangedItems []CartLine `json:"priceChangedItems"`
}

const (
	taxRate           = 0.10
	flatShipping      = 10
	freeShippingAbove = 100
)

// Empty returns a fresh cart owned by userID ("" for guests).
func Empty(userID string) Cart {
	now := time.Now()
	return Cart{
		UserID:    userID,
		Items:     []CartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep enough copy that callers can mutate lines without
// affecting the original.
func (c Cart) Clone() Cart {
	out := c
	out.Items = make([]CartLine, len(c.Items))
	copy(out.Items, c.Items)
	for i, line := range out.Items {
		if line.Product != nil {
			p := *line.Product
			out.Items[i].Product = &p
		}
	}
	return out
}

// LineByID returns the line with the given id, or nil.
func (c Cart) LineByID(id string) *CartLine {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return &c.Items[i]
		}
	}
	return nil
}

// LineByProductID returns the line holding productID, or nil.
func (c Cart) LineByProductID(productID string) *CartLine {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// Summarize recomputes totals from the current lines. Tax is a flat 10%,
// shipping is free above 100 (and on an empty cart).
func (c Cart) Summarize() CartSummary {
	var summary CartSummary
	for _, line := range c.Items {
		summary.Subtotal += line.Price * float64(line.Quantity)
		if line.PriceChanged {
			summary.PriceChangedItems = append(summary.PriceChangedItems, line)
		}
	}

	summary.Tax = summary.Subtotal * taxRate
	if summary.Subtotal > 0 && summary.Subtotal <= freeShippingAbove {
		summary.Shipping = flatShipping
	}
	summary.Total = summary.Subtotal + summary.Tax + summary.Shipping
	summary.ItemCount = len(c.Items)
	return summary
}

// HasUnacceptedPriceChanges reports whether any line still carries an
// unresolved price change. Checkout must not proceed while this is true.
func (c Cart) HasUnacceptedPriceChanges() bool {
	for _, line := range c.Items {
		if line.PriceChanged {
			return true
		}
	}
	return false
}
