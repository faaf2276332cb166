package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nileshop/cartsync/internal/domain"
	"github.com/nileshop/cartsync/internal/storage"
)

// Storage keys owned by the cart core.
const (
	cartKey    = "cart"
	sessionKey = "sessionId"
)

const (
	// saveLimitKB is the hard ceiling for a serialized cart write.
	saveLimitKB = 1024
	// startupLimitKB triggers a proactive clear of an already-oversized entry
	// left behind by a previous version.
	startupLimitKB = 500
	// evictionKeep is how many lines survive a degrade-under-pressure write.
	evictionKeep = 5
)

// Adapter gives a cart best-effort durability in device-local storage.
// Storage is an advisory cache, never the durability-of-record for
// authenticated users; the server cart is authoritative whenever a user id is
// present. Storage and parse errors are absorbed here, logged and never
// propagated.
type Adapter struct {
	storage storage.Storage
	log     logrus.FieldLogger
}

func New(st storage.Storage, log logrus.FieldLogger) *Adapter {
	return &Adapter{storage: st, log: log}
}

// Save serializes a reduced cart and writes it under the cart key. Writes
// above saveLimitKB keep only the first evictionKeep lines: losing persisted
// cart contents is preferable to a quota error that could wedge the client.
func (a *Adapter) Save(ctx context.Context, cart domain.Cart) {
	reduced := reduce(cart)

	b, err := json.Marshal(reduced)
	if err != nil {
		a.log.WithError(err).Error("serialize cart failed, skipping save")
		return
	}

	if kb := SizeKB(b); kb > saveLimitKB {
		a.log.WithField("size_kb", fmt.Sprintf("%.2f", kb)).
			Warn("cart too large for storage, keeping first lines only")
		if len(reduced.Items) > evictionKeep {
			reduced.Items = reduced.Items[:evictionKeep]
		}
		b, err = json.Marshal(reduced)
		if err != nil {
			a.log.WithError(err).Error("serialize truncated cart failed, skipping save")
			return
		}
	}

	a.set(ctx, b)
}

func (a *Adapter) set(ctx context.Context, b []byte) {
	err := a.storage.Set(ctx, cartKey, string(b))
	if err == nil {
		return
	}
	if errors.Is(err, storage.ErrQuotaExceeded) {
		// A partially-written value is worse than no value. Reset everything
		// we own and carry on in-memory for the session.
		a.log.WithError(err).Error("storage quota exceeded, clearing cart and session keys")
		if rmErr := a.storage.Remove(ctx, cartKey); rmErr != nil {
			a.log.WithError(rmErr).Error("clearing cart key failed")
		}
		if rmErr := a.storage.Remove(ctx, sessionKey); rmErr != nil {
			a.log.WithError(rmErr).Error("clearing session key failed")
		}
		return
	}
	a.log.WithError(err).Error("save cart to storage failed")
}

// Load returns the stored cart, or nil when there is none or the value does
// not parse. Parse failures are logged, never surfaced.
func (a *Adapter) Load(ctx context.Context) *domain.Cart {
	raw, err := a.storage.Get(ctx, cartKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			a.log.WithError(err).Error("read cart from storage failed")
		}
		return nil
	}

	var cart domain.Cart
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		a.log.WithError(err).Error("stored cart is corrupt, ignoring it")
		return nil
	}
	return &cart
}

// CleanupStartup clears a stored cart that already exceeds startupLimitKB,
// before anything tries to load or append to it.
func (a *Adapter) CleanupStartup(ctx context.Context) {
	raw, err := a.storage.Get(ctx, cartKey)
	if err != nil {
		return
	}
	if kb := SizeKB([]byte(raw)); kb > startupLimitKB {
		a.log.WithField("size_kb", fmt.Sprintf("%.2f", kb)).
			Warn("stored cart is oversized, clearing it to prevent quota errors")
		if err := a.storage.Remove(ctx, cartKey); err != nil {
			a.log.WithError(err).Error("clearing oversized cart failed")
		}
	}
}

// ClearCart removes only the cart entry, keeping the session id.
func (a *Adapter) ClearCart(ctx context.Context) {
	if err := a.storage.Remove(ctx, cartKey); err != nil {
		a.log.WithError(err).Error("clearing cart key failed")
	}
}

// SessionID returns the stored guest session identifier, generating and
// persisting one on first use. Format: session-<unix-ms>-<random>.
func (a *Adapter) SessionID(ctx context.Context) string {
	if id, err := a.storage.Get(ctx, sessionKey); err == nil && id != "" {
		return id
	}

	id := fmt.Sprintf("session-%d-%06d", time.Now().UnixMilli(), rand.Intn(1000000))
	if err := a.storage.Set(ctx, sessionKey, id); err != nil {
		a.log.WithError(err).Error("persisting session id failed")
	}
	return id
}

// SizeKB is the byte-accurate size estimate shared by the save threshold and
// the startup check.
func SizeKB(b []byte) float64 {
	return float64(len(b)) / 1024
}

// reduce strips everything the cart does not need to survive a reload; in
// particular product images, which dominate payload size.
func reduce(cart domain.Cart) domain.Cart {
	out := cart
	out.Items = make([]domain.CartLine, len(cart.Items))
	for i, line := range cart.Items {
		reducedLine := domain.CartLine{
			ID:            line.ID,
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			Price:         line.Price,
			PriceChanged:  line.PriceChanged,
			PreviousPrice: line.PreviousPrice,
		}
		if line.Product != nil {
			reducedLine.Product = &domain.ProductSnapshot{
				ID:           line.Product.ID,
				Name:         line.Product.Name,
				CurrentPrice: line.Product.CurrentPrice,
				Slug:         line.Product.Slug,
			}
		}
		out.Items[i] = reducedLine
	}
	return out
}
