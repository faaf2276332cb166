// Package mockapi is a throwaway in-memory stand-in for the real cart
// backend, speaking the same wire contract (Mongo-style documents, the
// { success, cart } envelope on most endpoints, bare carts on others).
package mockapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Server struct {
	store *Store
	log   logrus.FieldLogger
}

func NewServer(store *Store, log logrus.FieldLogger) *Server {
	return &Server{store: store, log: log}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)

		r.Post("/auth/login", s.login)
		r.Post("/auth/register", s.register)

		r.Get("/products", s.listProducts)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.getCart)
			r.Post("/add", s.addToCart)
			r.Post("/merge", s.mergeCart)
			r.Post("/price-acceptance", s.priceAcceptance)
			r.Delete("/", s.clearCart)
			r.Put("/{itemId}", s.updateQuantity)
			r.Delete("/{itemId}", s.removeItem)
		})
	})
	return r
}

// Wire shapes. The real backend serves Mongo documents, so ids are _id and
// the user reference is a nested document.

type wireUser struct {
	ID string `json:"_id"`
}

type wireProduct struct {
	ID     string   `json:"_id"`
	Name   string   `json:"name"`
	Price  float64  `json:"price"`
	Images []string `json:"images"`
	Slug   string   `json:"slug"`
}

type wireItem struct {
	ID            string      `json:"_id"`
	Product       wireProduct `json:"product"`
	Quantity      int         `json:"quantity"`
	Price         float64     `json:"price"`
	PriceChanged  bool        `json:"priceChanged"`
	OriginalPrice float64     `json:"originalPrice,omitempty"`
}

type wireCart struct {
	ID        string     `json:"_id"`
	User      *wireUser  `json:"user,omitempty"`
	Items     []wireItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func renderCart(snap CartSnapshot) wireCart {
	out := wireCart{
		ID:        snap.ID,
		Items:     make([]wireItem, 0, len(snap.Lines)),
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
	if snap.UserID != "" {
		out.User = &wireUser{ID: snap.UserID}
	}
	for _, line := range snap.Lines {
		out.Items = append(out.Items, wireItem{
			ID: line.ID,
			Product: wireProduct{
				ID:     line.Product.ID,
				Name:   line.Product.Name,
				Price:  line.Product.Price,
				Images: line.Product.Images,
				Slug:   line.Product.Slug,
			},
			Quantity:      line.Quantity,
			Price:         line.Price,
			PriceChanged:  line.PriceChanged,
			OriginalPrice: line.OriginalPrice,
		})
	}
	return out
}

// owner identifies whose cart a request operates on: the authenticated user,
// or the guest session from the X-Session-ID header.
type owner struct {
	key    string
	userID string
}

func (s *Server) resolveOwner(r *http.Request) (owner, bool) {
	if userID, ok := s.bearerUser(r); ok {
		return owner{key: "user:" + userID, userID: userID}, true
	}
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		return owner{key: "session:" + sid}, true
	}
	return owner{}, false
}

func (s *Server) bearerUser(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return s.store.UserForToken(token)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, token, err := s.store.Login(req.Email, req.Password)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  renderUser(user),
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		s.respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, token, err := s.store.Register(req.FirstName, req.LastName, req.Email, req.Password)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"token": token,
		"user":  renderUser(user),
	})
}

func renderUser(u User) map[string]any {
	return map[string]any{
		"_id":       u.ID,
		"firstName": u.FirstName,
		"lastName":  u.LastName,
		"email":     u.Email,
	}
}

func (s *Server) listProducts(w http.ResponseWriter, _ *http.Request) {
	products := s.store.Products()
	out := make([]wireProduct, 0, len(products))
	for _, p := range products {
		out = append(out, wireProduct{ID: p.ID, Name: p.Name, Price: p.Price, Images: p.Images, Slug: p.Slug})
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "products": out})
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	own, ok := s.resolveOwner(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "missing credentials or session")
		return
	}
	snap := s.store.Cart(own.key, own.userID)
	s.respondCart(w, http.StatusOK, "cart fetched", snap)
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	own, ok := s.resolveOwner(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "missing credentials or session")
		return
	}

	var req struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// The real backend casts productId to an ObjectId and errors out on
	// malformed ids; reproduce that so clients exercise the same failure.
	if _, err := primitive.ObjectIDFromHex(req.ProductID); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if req.Quantity < 1 {
		s.respondError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	snap, err := s.store.AddLine(own.key, own.userID, req.ProductID, req.Quantity)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondCart(w, http.StatusOK, "item added to cart", snap)
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bearerUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	snap, err := s.store.RemoveLine("user:"+userID, chi.URLParam(r, "itemId"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondCart(w, http.StatusOK, "item removed from cart", snap)
}

func (s *Server) updateQuantity(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bearerUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Quantity < 1 {
		s.respondError(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	snap, err := s.store.UpdateQuantity("user:"+userID, chi.URLParam(r, "itemId"), req.Quantity)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondCart(w, http.StatusOK, "quantity updated", snap)
}

func (s *Server) mergeCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bearerUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	var req struct {
		Items []struct {
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	items := make([]MergeItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, MergeItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	snap := s.store.Merge("user:"+userID, userID, items)
	// Merge historically returns the cart bare, not wrapped. Kept that way so
	// clients keep handling both shapes.
	s.respondJSON(w, http.StatusOK, renderCart(snap))
}

func (s *Server) priceAcceptance(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bearerUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	var req struct {
		ItemID   string `json:"itemId"`
		Accepted bool   `json:"accepted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	snap, err := s.store.PriceAcceptance("user:"+userID, req.ItemID, req.Accepted)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondCart(w, http.StatusOK, "price change resolved", snap)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bearerUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "missing user authentication")
		return
	}

	s.store.Clear("user:"+userID, userID)
	// No cart in the reply; clients substitute an empty one.
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "cart cleared"})
}

func (s *Server) respondCart(w http.ResponseWriter, status int, message string, snap CartSnapshot) {
	s.respondJSON(w, status, map[string]any{
		"success": true,
		"message": message,
		"cart":    renderCart(snap),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]any{"success": false, "message": message})
}
