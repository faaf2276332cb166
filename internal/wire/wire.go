// Package wire decodes the remote cart service's payloads into the canonical
// cart shape. The service wraps responses inconsistently and uses Mongo
// document conventions (_id, nested product docs), so every field is decoded
// defensively.
package wire

import (
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nileshop/cartsync/internal/domain"
)

var ErrInvalidCart = errors.New("invalid cart response from server")

// Envelope is the wrapper some endpoints use ({ success, message, cart })
// while others return the cart bare.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Cart    json.RawMessage `json:"cart"`
}

// DecodeCart unwraps a response body and transforms it into a domain cart.
// It accepts both the wrapped and the bare shape.
func DecodeCart(body []byte) (domain.Cart, error) {
	if len(body) == 0 {
		return domain.Cart{}, ErrInvalidCart
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err == nil && len(env.Cart) > 0 && string(env.Cart) != "null" {
		return decode(env.Cart)
	}
	return decode(body)
}

// IsCanonicalProductID reports whether id is in the format the remote
// service's storage layer can parse (a Mongo ObjectId hex string). Short
// demo/seed ids like "1" fail this check and must never hit the network.
func IsCanonicalProductID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

func decode(raw []byte) (domain.Cart, error) {
	var wc wireCart
	if err := json.Unmarshal(raw, &wc); err != nil {
		return domain.Cart{}, ErrInvalidCart
	}
	return wc.transform(), nil
}

type wireCart struct {
	MongoID   string     `json:"_id"`
	ID        string     `json:"id"`
	User      wireUser   `json:"user"`
	UserID    string     `json:"userId"`
	Items     []wireItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// wireUser is either a populated user document or a bare id string.
type wireUser struct {
	ID string
}

func (u *wireUser) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		u.ID = s
		return nil
	}
	var doc struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	u.ID = doc.ID
	return nil
}

type wireItem struct {
	ID            string       `json:"_id"`
	ProductID     string       `json:"productId"`
	Product       *wireProduct `json:"product"`
	Quantity      int          `json:"quantity"`
	Price         float64      `json:"price"`
	PriceChanged  bool         `json:"priceChanged"`
	OriginalPrice float64      `json:"originalPrice"`
}

// wireProduct is either a populated product document or a bare id string
// (when the backend did not populate the reference).
type wireProduct struct {
	ID     string
	Name   string
	Price  float64
	Image  string
	Images []wireImage
	Slug   string

	populated bool
}

func (p *wireProduct) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		p.ID = s
		return nil
	}
	var doc struct {
		ID     string      `json:"_id"`
		Name   string      `json:"name"`
		Price  float64     `json:"price"`
		Image  string      `json:"image"`
		Images []wireImage `json:"images"`
		Slug   string      `json:"slug"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	p.ID = doc.ID
	p.Name = doc.Name
	p.Price = doc.Price
	p.Image = doc.Image
	p.Images = doc.Images
	p.Slug = doc.Slug
	p.populated = true
	return nil
}

// wireImage is either a plain URL string or a { url } object.
type wireImage struct {
	URL string
}

func (i *wireImage) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		i.URL = s
		return nil
	}
	var doc struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	i.URL = doc.URL
	return nil
}

// image resolves the display image: direct image string, then the first
// images entry, then "".
func (p *wireProduct) image() string {
	if p.Image != "" {
		return p.Image
	}
	if len(p.Images) > 0 {
		return p.Images[0].URL
	}
	return ""
}

func (wc wireCart) transform() domain.Cart {
	cart := domain.Cart{
		ID:        firstNonEmpty(wc.MongoID, wc.ID),
		UserID:    firstNonEmpty(wc.User.ID, wc.UserID),
		CreatedAt: wc.CreatedAt,
		UpdatedAt: wc.UpdatedAt,
	}
	// A response with no items array at all (the clear endpoint's bare wrapper)
	// keeps Items nil so callers can tell it apart from an empty cart.
	if wc.Items != nil {
		cart.Items = make([]domain.CartLine, 0, len(wc.Items))
	}

	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = now
	}

	for _, item := range wc.Items {
		line := domain.CartLine{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			Price:         item.Price,
			PriceChanged:  item.PriceChanged,
			PreviousPrice: item.OriginalPrice,
		}
		if item.Product != nil {
			if line.ProductID == "" {
				line.ProductID = item.Product.ID
			}
			if line.ID == "" {
				line.ID = item.Product.ID
			}
			if item.Product.populated {
				line.Product = &domain.ProductSnapshot{
					ID:           item.Product.ID,
					Name:         item.Product.Name,
					Image:        item.Product.image(),
					CurrentPrice: item.Product.Price,
					Slug:         item.Product.Slug,
				}
			}
		}
		cart.Items = append(cart.Items, line)
	}
	return cart
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
