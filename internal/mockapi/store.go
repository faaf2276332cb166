package mockapi

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrLineNotFound       = errors.New("item not found in cart")
	ErrProductNotFound    = errors.New("product not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
)

type Product struct {
	ID     string
	Name   string
	Price  float64
	Images []string
	Slug   string
}

type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	password  string
}

type cartLine struct {
	ID            string
	ProductID     string
	Quantity      int
	Price         float64
	PriceChanged  bool
	OriginalPrice float64
}

type cartRecord struct {
	ID        string
	UserID    string
	Lines     []*cartLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CartSnapshot is an immutable copy handed to handlers, safe to render after
// the lock is released.
type CartSnapshot struct {
	ID        string
	UserID    string
	Lines     []LineSnapshot
	CreatedAt time.Time
	UpdatedAt time.Time
}

type LineSnapshot struct {
	ID            string
	ProductID     string
	Quantity      int
	Price         float64
	PriceChanged  bool
	OriginalPrice float64
	Product       Product
}

// MergeItem is one line of a pre-login cart sent up for merging.
type MergeItem struct {
	ProductID string
	Quantity  int
}

// Store holds all mock state in memory behind a single lock. Everything here
// is throwaway: it exists so the cart client has something to talk to during
// development and tests.
type Store struct {
	mu       sync.RWMutex
	products []*Product
	byID     map[string]*Product
	carts    map[string]*cartRecord
	tokens   map[string]string
	users    map[string]*User
}

func NewStore() *Store {
	s := &Store{
		byID:   make(map[string]*Product),
		carts:  make(map[string]*cartRecord),
		tokens: make(map[string]string),
		users:  make(map[string]*User),
	}
	s.seed()
	return s
}

func (s *Store) seed() {
	seedProducts := []*Product{
		{Name: "Ceramic Mug", Price: 12.5, Slug: "ceramic-mug", Images: []string{"/img/mug-1.jpg", "/img/mug-2.jpg"}},
		{Name: "Linen Tote Bag", Price: 24, Slug: "linen-tote-bag", Images: []string{"/img/tote.jpg"}},
		{Name: "Desk Lamp", Price: 59.99, Slug: "desk-lamp", Images: []string{"/img/lamp.jpg"}},
		{Name: "Notebook Set", Price: 9.75, Slug: "notebook-set", Images: nil},
	}
	for _, p := range seedProducts {
		p.ID = primitive.NewObjectID().Hex()
		s.products = append(s.products, p)
		s.byID[p.ID] = p
	}

	seedUser := &User{
		ID:        primitive.NewObjectID().Hex(),
		FirstName: "Ahmed",
		LastName:  "Mohamed",
		Email:     "ahmed@example.com",
		password:  "password123",
	}
	s.users[seedUser.Email] = seedUser
}

func (s *Store) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out
}

func (s *Store) Product(id string) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

// SetProductPrice changes the catalog price; existing cart lines pick it up
// as a pending price change on the next read.
func (s *Store) SetProductPrice(id string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Price = price
	return nil
}

func (s *Store) Register(firstName, lastName, email, password string) (User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return User{}, "", ErrEmailTaken
	}
	u := &User{
		ID:        primitive.NewObjectID().Hex(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		password:  password,
	}
	s.users[email] = u
	token := uuid.NewString()
	s.tokens[token] = u.ID
	return *u, token, nil
}

func (s *Store) Login(email, password string) (User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok || u.password != password {
		return User{}, "", ErrInvalidCredentials
	}
	token := uuid.NewString()
	s.tokens[token] = u.ID
	return *u, token, nil
}

func (s *Store) UserForToken(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	return id, ok
}

// Cart returns the cart for owner, creating an empty one on first access,
// with pending price changes marked against the current catalog.
func (s *Store) Cart(owner, userID string) CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartLocked(owner, userID)
	s.markPriceChangesLocked(cart)
	return s.snapshotLocked(cart)
}

func (s *Store) AddLine(owner, userID, productID string, quantity int) (CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[productID]
	if !ok {
		return CartSnapshot{}, ErrProductNotFound
	}

	cart := s.cartLocked(owner, userID)
	found := false
	for _, line := range cart.Lines {
		if line.ProductID == productID {
			line.Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		cart.Lines = append(cart.Lines, &cartLine{
			ID:        primitive.NewObjectID().Hex(),
			ProductID: productID,
			Quantity:  quantity,
			Price:     p.Price,
		})
	}
	cart.UpdatedAt = time.Now()
	return s.snapshotLocked(cart), nil
}

func (s *Store) RemoveLine(owner, lineID string) (CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[owner]
	if !ok {
		return CartSnapshot{}, ErrCartNotFound
	}
	for i, line := range cart.Lines {
		if line.ID == lineID {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
			cart.UpdatedAt = time.Now()
			return s.snapshotLocked(cart), nil
		}
	}
	return CartSnapshot{}, ErrLineNotFound
}

func (s *Store) UpdateQuantity(owner, lineID string, quantity int) (CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[owner]
	if !ok {
		return CartSnapshot{}, ErrCartNotFound
	}
	for _, line := range cart.Lines {
		if line.ID == lineID {
			line.Quantity = quantity
			cart.UpdatedAt = time.Now()
			return s.snapshotLocked(cart), nil
		}
	}
	return CartSnapshot{}, ErrLineNotFound
}

// Merge folds a guest cart into the owner's cart, aggregating quantities per
// product. Unknown products are skipped rather than failing the whole merge.
func (s *Store) Merge(owner, userID string, items []MergeItem) CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartLocked(owner, userID)
	for _, item := range items {
		p, ok := s.byID[item.ProductID]
		if !ok || item.Quantity <= 0 {
			continue
		}

		merged := false
		for _, line := range cart.Lines {
			if line.ProductID == item.ProductID {
				line.Quantity += item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			cart.Lines = append(cart.Lines, &cartLine{
				ID:        primitive.NewObjectID().Hex(),
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     p.Price,
			})
		}
	}
	cart.UpdatedAt = time.Now()
	return s.snapshotLocked(cart)
}

func (s *Store) Clear(owner, userID string) CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cart := &cartRecord{
		ID:        primitive.NewObjectID().Hex(),
		UserID:    userID,
		Lines:     []*cartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.carts[owner] = cart
	return s.snapshotLocked(cart)
}

// PriceAcceptance records the customer's resolution of a flagged line:
// accepted keeps the new price and clears the flag, rejected removes the line
// outright.
func (s *Store) PriceAcceptance(owner, lineID string, accepted bool) (CartSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[owner]
	if !ok {
		return CartSnapshot{}, ErrCartNotFound
	}
	for i, line := range cart.Lines {
		if line.ID != lineID {
			continue
		}
		if accepted {
			line.PriceChanged = false
			line.OriginalPrice = 0
		} else {
			cart.Lines = append(cart.Lines[:i], cart.Lines[i+1:]...)
		}
		cart.UpdatedAt = time.Now()
		return s.snapshotLocked(cart), nil
	}
	return CartSnapshot{}, ErrLineNotFound
}

func (s *Store) cartLocked(owner, userID string) *cartRecord {
	if cart, ok := s.carts[owner]; ok {
		return cart
	}
	now := time.Now()
	cart := &cartRecord{
		ID:        primitive.NewObjectID().Hex(),
		UserID:    userID,
		Lines:     []*cartLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.carts[owner] = cart
	return cart
}

// markPriceChangesLocked flags lines whose add-time price diverged from the
// catalog: the line is repriced and the old price kept for the customer to
// accept or reject.
func (s *Store) markPriceChangesLocked(cart *cartRecord) {
	for _, line := range cart.Lines {
		p, ok := s.byID[line.ProductID]
		if !ok || line.PriceChanged {
			continue
		}
		if p.Price != line.Price {
			line.OriginalPrice = line.Price
			line.Price = p.Price
			line.PriceChanged = true
		}
	}
}

func (s *Store) snapshotLocked(cart *cartRecord) CartSnapshot {
	snap := CartSnapshot{
		ID:        cart.ID,
		UserID:    cart.UserID,
		Lines:     make([]LineSnapshot, 0, len(cart.Lines)),
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, line := range cart.Lines {
		ls := LineSnapshot{
			ID:            line.ID,
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			Price:         line.Price,
			PriceChanged:  line.PriceChanged,
			OriginalPrice: line.OriginalPrice,
		}
		if p, ok := s.byID[line.ProductID]; ok {
			ls.Product = *p
		}
		snap.Lines = append(snap.Lines, ls)
	}
	return snap
}
