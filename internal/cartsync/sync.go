// Package cartsync routes every cart mutation to either the remote cart
// service (authenticated, or guest tracked by a session header) or local-only
// state, and keeps the cart store and device storage consistent with the
// outcome. The server cart is authoritative whenever a user id is present.
package cartsync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/nileshop/cartsync/internal/domain"
	"github.com/nileshop/cartsync/internal/identity"
	"github.com/nileshop/cartsync/internal/persist"
	"github.com/nileshop/cartsync/internal/remote"
	"github.com/nileshop/cartsync/internal/store"
	"github.com/nileshop/cartsync/internal/wire"
)

// RemoteService is the cart service surface the synchronizer consumes.
// Consumers define this interface, not the HTTP implementation.
type RemoteService interface {
	FetchCart(ctx context.Context, auth remote.Auth) (domain.Cart, error)
	AddLine(ctx context.Context, auth remote.Auth, productID string, quantity int) (domain.Cart, error)
	RemoveLine(ctx context.Context, auth remote.Auth, lineID string) (domain.Cart, error)
	UpdateQuantity(ctx context.Context, auth remote.Auth, lineID string, quantity int) (domain.Cart, error)
	Merge(ctx context.Context, auth remote.Auth, items []domain.CartLine) (domain.Cart, error)
	PriceAcceptance(ctx context.Context, auth remote.Auth, lineID string, accepted bool) (domain.Cart, error)
	Clear(ctx context.Context, auth remote.Auth) (domain.Cart, error)
}

type Synchronizer struct {
	store     *store.Store
	persist   *persist.Adapter
	remote    RemoteService
	identity  identity.Provider
	log       logrus.FieldLogger
	sfg       singleflight.Group // dedupes concurrent reloads
	sessionID string
}

// New wires the synchronizer and performs the startup sequence: session id
// init, oversized-storage cleanup, then the initial cart load (server first
// for authenticated users, device storage otherwise).
func New(ctx context.Context, st *store.Store, pa *persist.Adapter, rc RemoteService, idp identity.Provider, log logrus.FieldLogger) *Synchronizer {
	s := &Synchronizer{
		store:    st,
		persist:  pa,
		remote:   rc,
		identity: idp,
		log:      log,
	}
	s.sessionID = pa.SessionID(ctx)
	pa.CleanupStartup(ctx)
	s.load(ctx)
	return s
}

func (s *Synchronizer) auth() remote.Auth {
	return remote.Auth{Token: s.identity.Token(), SessionID: s.sessionID}
}

// SessionID exposes the generated guest session identifier.
func (s *Synchronizer) SessionID() string {
	return s.sessionID
}

// Cart returns the current snapshot.
func (s *Synchronizer) Cart() domain.Cart {
	return s.store.Cart()
}

// Summary recomputes totals from the current cart.
func (s *Synchronizer) Summary() domain.CartSummary {
	return s.store.Cart().Summarize()
}

// ItemCount returns the number of lines in the cart.
func (s *Synchronizer) ItemCount() int {
	return len(s.store.Cart().Items)
}

// Subscribe registers a listener for every cart replacement. The returned
// function deregisters it; callers must invoke it on teardown.
func (s *Synchronizer) Subscribe(fn func(domain.Cart)) func() {
	return s.store.Subscribe(fn)
}

func (s *Synchronizer) load(ctx context.Context) {
	userID := s.identity.CurrentUserID()
	if userID == "" {
		s.loadFromStorage(ctx)
		return
	}

	cart, err := s.remote.FetchCart(ctx, s.auth())
	if err != nil {
		s.log.WithError(err).Error("load cart from server failed, falling back to storage")
		s.loadFromStorage(ctx)
		return
	}
	s.store.Replace(normalize(cart, userID))
}

func (s *Synchronizer) loadFromStorage(ctx context.Context) {
	if cart := s.persist.Load(ctx); cart != nil {
		s.store.Replace(*cart)
	}
}

// Reload fetches a fresh cart, the designed recovery path for staleness.
// Concurrent reloads collapse into a single server round trip.
func (s *Synchronizer) Reload(ctx context.Context) error {
	_, err, _ := s.sfg.Do("reload", func() (interface{}, error) {
		userID := s.identity.CurrentUserID()
		if userID == "" {
			s.loadFromStorage(ctx)
			return nil, nil
		}

		cart, err := s.remote.FetchCart(ctx, s.auth())
		if err != nil {
			s.log.WithError(err).Error("reload cart from server failed, falling back to storage")
			s.loadFromStorage(ctx)
			return nil, err
		}

		cart = normalize(cart, userID)
		s.store.Replace(cart)
		s.persist.Save(ctx, cart)
		return nil, nil
	})
	return err
}

// AddToCart adds a line. Guests adding a product whose id the remote storage
// layer cannot parse never hit the network: the line is merged into the local
// cart (aggregating quantity per product) and persisted, so demo/seed data
// works without guaranteed round-trip errors.
func (s *Synchronizer) AddToCart(ctx context.Context, line domain.CartLine) (domain.Cart, error) {
	userID := s.identity.CurrentUserID()

	if userID == "" && !wire.IsCanonicalProductID(line.ProductID) {
		return s.addLocally(ctx, line), nil
	}

	base := s.store.Version()
	updated, err := s.remote.AddLine(ctx, s.auth(), line.ProductID, line.Quantity)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.commit(ctx, normalize(updated, userID), base), nil
}

func (s *Synchronizer) addLocally(ctx context.Context, line domain.CartLine) domain.Cart {
	cart := s.store.Cart()
	if existing := cart.LineByProductID(line.ProductID); existing != nil {
		existing.Quantity += line.Quantity
	} else {
		line.ID = "local-" + uuid.NewString()
		cart.Items = append(cart.Items, line)
	}
	cart.UpdatedAt = time.Now()

	s.store.Replace(cart)
	s.persist.Save(ctx, cart)
	return cart
}

// RemoveFromCart removes the line by id. Guests mutate locally; users go
// through the server.
func (s *Synchronizer) RemoveFromCart(ctx context.Context, lineID string) (domain.Cart, error) {
	userID := s.identity.CurrentUserID()
	if userID == "" {
		cart := s.store.Cart()
		kept := cart.Items[:0]
		for _, line := range cart.Items {
			if line.ID != lineID {
				kept = append(kept, line)
			}
		}
		cart.Items = kept
		cart.UpdatedAt = time.Now()

		s.store.Replace(cart)
		s.persist.Save(ctx, cart)
		return cart, nil
	}

	base := s.store.Version()
	updated, err := s.remote.RemoveLine(ctx, s.auth(), lineID)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.commit(ctx, normalize(updated, userID), base), nil
}

// UpdateQuantity changes a line's quantity. A quantity <= 0 is an alias for
// removal and short-circuits before any network call.
func (s *Synchronizer) UpdateQuantity(ctx context.Context, lineID string, quantity int) (domain.Cart, error) {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, lineID)
	}

	userID := s.identity.CurrentUserID()
	if userID == "" {
		cart := s.store.Cart()
		line := cart.LineByID(lineID)
		if line == nil {
			s.log.WithField("line_id", lineID).Warn("line not found in local cart")
			return cart, nil
		}
		line.Quantity = quantity
		cart.UpdatedAt = time.Now()

		s.store.Replace(cart)
		s.persist.Save(ctx, cart)
		return cart, nil
	}

	base := s.store.Version()
	updated, err := s.remote.UpdateQuantity(ctx, s.auth(), lineID, quantity)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.commit(ctx, normalize(updated, userID), base), nil
}

// Clear empties the cart. For users the server cart is cleared too; the
// stored local copy is always dropped.
func (s *Synchronizer) Clear(ctx context.Context) (domain.Cart, error) {
	userID := s.identity.CurrentUserID()
	empty := domain.Empty(userID)

	if userID == "" {
		s.store.Replace(empty)
		s.persist.ClearCart(ctx)
		return empty, nil
	}

	cleared, err := s.remote.Clear(ctx, s.auth())
	if err != nil {
		return domain.Cart{}, err
	}
	if cleared.Items == nil {
		// Some endpoints reply with a bare wrapper and no cart.
		cleared = empty
	} else {
		cleared = normalize(cleared, userID)
	}

	s.store.Replace(cleared)
	s.persist.ClearCart(ctx)
	return cleared, nil
}

// MergeAfterLogin transfers the pre-login cart into the freshly authenticated
// one. The full local line list goes up in one request and the response is
// the new authoritative cart; merge semantics (dedup, aggregation) belong to
// the server.
func (s *Synchronizer) MergeAfterLogin(ctx context.Context, userID string) (domain.Cart, error) {
	local := s.store.Cart()

	merged, err := s.remote.Merge(ctx, s.auth(), local.Items)
	if err != nil {
		return domain.Cart{}, err
	}

	merged = normalize(merged, userID)
	s.store.Replace(merged)
	s.persist.Save(ctx, merged)
	return merged, nil
}

// AcceptPriceChange confirms a line's new price; the server reprices the line
// and clears its flag.
func (s *Synchronizer) AcceptPriceChange(ctx context.Context, lineID string) (domain.Cart, error) {
	return s.resolvePriceChange(ctx, lineID, true)
}

// RejectPriceChange removes the line entirely: a customer who does not accept
// the new price cannot keep the old one, it is no longer valid for
// fulfillment.
func (s *Synchronizer) RejectPriceChange(ctx context.Context, lineID string) (domain.Cart, error) {
	return s.resolvePriceChange(ctx, lineID, false)
}

func (s *Synchronizer) resolvePriceChange(ctx context.Context, lineID string, accepted bool) (domain.Cart, error) {
	userID := s.identity.CurrentUserID()
	if userID == "" {
		return domain.Cart{}, ErrNotAuthenticated
	}

	base := s.store.Version()
	updated, err := s.remote.PriceAcceptance(ctx, s.auth(), lineID, accepted)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.commit(ctx, normalize(updated, userID), base), nil
}

// HasUnacceptedPriceChanges reports whether checkout must stay blocked.
func (s *Synchronizer) HasUnacceptedPriceChanges() bool {
	return s.store.Cart().HasUnacceptedPriceChanges()
}

// ValidateCheckout returns ErrUnresolvedPriceChanges while any line has a
// pending price change. This is a user-visible validation, not a fault.
func (s *Synchronizer) ValidateCheckout() error {
	if s.HasUnacceptedPriceChanges() {
		return ErrUnresolvedPriceChanges
	}
	return nil
}

// ResetAfterLogout drops the local cache only. Server-side cart state
// survives a logout; the session id stays, it belongs to the device.
func (s *Synchronizer) ResetAfterLogout(ctx context.Context) {
	s.store.Replace(domain.Empty(""))
	s.persist.ClearCart(ctx)
}

// commit publishes a successful server response unless a newer snapshot was
// committed while the call was in flight, in which case the stale response is
// dropped and the current cart returned.
func (s *Synchronizer) commit(ctx context.Context, cart domain.Cart, base uint64) domain.Cart {
	if _, ok := s.store.CompareAndReplace(cart, base); !ok {
		s.log.Warn("dropping stale cart response, a newer snapshot was committed")
		return s.store.Cart()
	}
	s.persist.Save(ctx, cart)
	return cart
}

// normalize fills the fields a server response may legitimately omit.
func normalize(cart domain.Cart, userID string) domain.Cart {
	if cart.UserID == "" {
		cart.UserID = userID
	}
	if cart.Items == nil {
		cart.Items = []domain.CartLine{}
	}
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = now
	}
	return cart
}
