package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCart_WrappedEnvelope(t *testing.T) {
	body := []byte(`{
		"success": true,
		"message": "item added to cart",
		"cart": {
			"_id": "64a1f0000000000000000001",
			"user": {"_id": "64a1f0000000000000000002", "email": "ahmed@example.com"},
			"items": [{
				"_id": "64a1f0000000000000000003",
				"product": {
					"_id": "64a1f0000000000000000004",
					"name": "Ceramic Mug",
					"price": 14,
					"image": "/img/mug-1.jpg",
					"slug": "ceramic-mug"
				},
				"quantity": 2,
				"price": 14,
				"priceChanged": true,
				"originalPrice": 12.5
			}],
			"createdAt": "2024-01-02T03:04:05Z",
			"updatedAt": "2024-01-02T03:04:06Z"
		}
	}`)

	cart, err := DecodeCart(body)
	require.NoError(t, err)

	assert.Equal(t, "64a1f0000000000000000001", cart.ID)
	assert.Equal(t, "64a1f0000000000000000002", cart.UserID)
	require.Len(t, cart.Items, 1)

	line := cart.Items[0]
	assert.Equal(t, "64a1f0000000000000000003", line.ID)
	assert.Equal(t, "64a1f0000000000000000004", line.ProductID)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, 14.0, line.Price)
	assert.True(t, line.PriceChanged)
	assert.Equal(t, 12.5, line.PreviousPrice)

	require.NotNil(t, line.Product)
	assert.Equal(t, "Ceramic Mug", line.Product.Name)
	assert.Equal(t, "/img/mug-1.jpg", line.Product.Image)
	assert.Equal(t, 14.0, line.Product.CurrentPrice)
	assert.False(t, cart.CreatedAt.IsZero())
}

func TestDecodeCart_BareCart(t *testing.T) {
	body := []byte(`{"_id": "c1", "user": "u1", "items": []}`)

	cart, err := DecodeCart(body)
	require.NoError(t, err)
	assert.Equal(t, "c1", cart.ID)
	assert.Equal(t, "u1", cart.UserID)
	assert.Empty(t, cart.Items)
}

func TestDecodeCart_ZeroTimestampsDefaultToNow(t *testing.T) {
	cart, err := DecodeCart([]byte(`{"_id": "c1", "items": []}`))
	require.NoError(t, err)
	assert.False(t, cart.CreatedAt.IsZero())
	assert.False(t, cart.UpdatedAt.IsZero())
}

func TestDecodeCart_UnpopulatedProductReference(t *testing.T) {
	// The backend sometimes leaves the product reference as a bare id string.
	body := []byte(`{"_id": "c1", "items": [{"product": "p1", "quantity": 1, "price": 5}]}`)

	cart, err := DecodeCart(body)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	line := cart.Items[0]
	assert.Equal(t, "p1", line.ProductID)
	// Line id falls back to the product id when the server sends none.
	assert.Equal(t, "p1", line.ID)
	assert.Nil(t, line.Product)
}

func TestDecodeCart_ImageFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "direct image wins",
			body: `{"items":[{"product":{"_id":"p1","image":"/a.jpg","images":["/b.jpg"]},"quantity":1}]}`,
			want: "/a.jpg",
		},
		{
			name: "first images entry as string",
			body: `{"items":[{"product":{"_id":"p1","images":["/b.jpg","/c.jpg"]},"quantity":1}]}`,
			want: "/b.jpg",
		},
		{
			name: "first images entry as object",
			body: `{"items":[{"product":{"_id":"p1","images":[{"url":"/d.jpg"}]},"quantity":1}]}`,
			want: "/d.jpg",
		},
		{
			name: "no image at all",
			body: `{"items":[{"product":{"_id":"p1","name":"n"},"quantity":1}]}`,
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cart, err := DecodeCart([]byte(tc.body))
			require.NoError(t, err)
			require.Len(t, cart.Items, 1)
			require.NotNil(t, cart.Items[0].Product)
			assert.Equal(t, tc.want, cart.Items[0].Product.Image)
		})
	}
}

func TestDecodeCart_WrapperWithoutCartKeepsItemsNil(t *testing.T) {
	cart, err := DecodeCart([]byte(`{"success": true, "message": "cart cleared"}`))
	require.NoError(t, err)
	assert.Nil(t, cart.Items)
}

func TestDecodeCart_InvalidBody(t *testing.T) {
	_, err := DecodeCart(nil)
	assert.ErrorIs(t, err, ErrInvalidCart)

	_, err = DecodeCart([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidCart)
}

func TestIsCanonicalProductID(t *testing.T) {
	assert.True(t, IsCanonicalProductID("64a1f0000000000000000001"))
	assert.False(t, IsCanonicalProductID("1"))
	assert.False(t, IsCanonicalProductID("p1"))
	assert.False(t, IsCanonicalProductID(""))
	assert.False(t, IsCanonicalProductID("zzzzzzzzzzzzzzzzzzzzzzzz"))
}
