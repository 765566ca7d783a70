package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/GueYatma/koktek-front/internal/catalog"
	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/receipt"
	"github.com/GueYatma/koktek-front/internal/service"
)

// CatalogReader returns the current catalog.
type CatalogReader interface {
	Catalog(ctx context.Context) (*catalog.Catalog, error)
}

// Handler handles HTTP requests for the application.
type Handler struct {
	catalog  CatalogReader
	sessions *Sessions
	vendor   *service.Vendor
	ttl      time.Duration
	logger   *slog.Logger
}

func NewHandler(cat CatalogReader, sessions *Sessions, vendor *service.Vendor, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		catalog:  cat,
		sessions: sessions,
		vendor:   vendor,
		ttl:      sessions.ttl,
		logger:   logger,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.handleListProducts)
	mux.HandleFunc("GET /api/products/{slug}", h.handleGetProduct)
	mux.HandleFunc("GET /api/categories", h.handleListCategories)
	mux.HandleFunc("GET /api/brands", h.handleListBrands)

	mux.HandleFunc("GET /api/cart", h.withSession(h.handleGetCart))
	mux.HandleFunc("POST /api/cart/items", h.withSession(h.handleAddItem))
	mux.HandleFunc("PATCH /api/cart/items/{variantID}", h.withSession(h.handleUpdateItem))
	mux.HandleFunc("DELETE /api/cart/items/{variantID}", h.withSession(h.handleRemoveItem))
	mux.HandleFunc("DELETE /api/cart", h.withSession(h.handleClearCart))

	mux.HandleFunc("GET /api/checkout", h.withSession(h.handleCheckoutStatus))
	mux.HandleFunc("POST /api/checkout", h.withSession(h.handleSubmitCheckout))
	mux.HandleFunc("POST /api/checkout/payment/card", h.withSession(h.handleChooseCard))
	mux.HandleFunc("POST /api/checkout/payment/choice", h.withSession(h.handleBackToChoice))
	mux.HandleFunc("POST /api/checkout/payment/card/pay", h.withSession(h.handlePayByCard))
	mux.HandleFunc("POST /api/checkout/payment/cash", h.withSession(h.handlePayCash))
	mux.HandleFunc("POST /api/checkout/leave", h.withSession(h.handleLeaveCheckout))
	mux.HandleFunc("GET /api/checkout/ticket/{format}", h.withSession(h.handleTicket))

	mux.HandleFunc("GET /api/profile", h.withSession(h.handleGetProfile))
	mux.HandleFunc("POST /api/profile/login", h.withSession(h.handleLogin))
	mux.HandleFunc("POST /api/profile/register", h.withSession(h.handleRegister))
	mux.HandleFunc("POST /api/profile/logout", h.withSession(h.handleLogout))
	mux.HandleFunc("PATCH /api/profile", h.withSession(h.handleUpdateProfile))
	mux.HandleFunc("GET /api/profile/orders", h.withSession(h.handleProfileOrders))

	mux.HandleFunc("GET /api/vendor/orders", h.handleVendorLookup)
	mux.HandleFunc("POST /api/vendor/orders/{id}/cash", h.handleVendorConfirmCash)
}

// --- catalog ---

// currentCatalog never fails: an unavailable backend shows an empty catalog.
func (h *Handler) currentCatalog(ctx context.Context) *catalog.Catalog {
	c, err := h.catalog.Catalog(ctx)
	if err != nil {
		h.logger.Error("Failed to load catalog", "err", err)
		return &catalog.Catalog{}
	}
	return c
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products := h.currentCatalog(r.Context()).Filter(q.Get("category"), q.Get("brand"))
	if products == nil {
		products = []entity.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, ok := h.currentCatalog(r.Context()).ProductBySlug(r.PathValue("slug"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "Produit introuvable.")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.currentCatalog(r.Context()).Categories
	if categories == nil {
		categories = []entity.Category{}
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) handleListBrands(w http.ResponseWriter, r *http.Request) {
	brands := h.currentCatalog(r.Context()).Brands()
	if brands == nil {
		brands = []string{}
	}
	writeJSON(w, http.StatusOK, brands)
}

// --- cart ---

type AddItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request, s *Session) {
	writeJSON(w, http.StatusOK, s.Cart.Snapshot())
}

func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request, s *Session) {
	var req AddItemRequest
	if !decode(w, r, &req) {
		return
	}
	product, variant, ok := h.currentCatalog(r.Context()).VariantByID(req.VariantID)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Variante introuvable.")
		return
	}
	if err := s.Cart.AddItem(r.Context(), product, variant, req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Cart.Snapshot())
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request, s *Session) {
	var req UpdateItemRequest
	if !decode(w, r, &req) {
		return
	}
	s.Cart.UpdateQuantity(r.Context(), r.PathValue("variantID"), req.Quantity)
	writeJSON(w, http.StatusOK, s.Cart.Snapshot())
}

func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request, s *Session) {
	s.Cart.RemoveItem(r.Context(), r.PathValue("variantID"))
	writeJSON(w, http.StatusOK, s.Cart.Snapshot())
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request, s *Session) {
	s.Cart.Clear(r.Context())
	writeJSON(w, http.StatusOK, s.Cart.Snapshot())
}

// --- checkout ---

func (h *Handler) handleCheckoutStatus(w http.ResponseWriter, r *http.Request, s *Session) {
	writeJSON(w, http.StatusOK, s.Checkout.Status())
}

func (h *Handler) handleSubmitCheckout(w http.ResponseWriter, r *http.Request, s *Session) {
	var form service.CheckoutForm
	if !decode(w, r, &form) {
		return
	}
	if _, err := s.Checkout.Submit(r.Context(), form); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Checkout.Status())
}

func (h *Handler) handleChooseCard(w http.ResponseWriter, r *http.Request, s *Session) {
	h.respondStatus(w, s, s.Checkout.ChooseCard())
}

func (h *Handler) handleBackToChoice(w http.ResponseWriter, r *http.Request, s *Session) {
	h.respondStatus(w, s, s.Checkout.BackToChoice())
}

func (h *Handler) handlePayByCard(w http.ResponseWriter, r *http.Request, s *Session) {
	h.respondStatus(w, s, s.Checkout.PayByCard(r.Context()))
}

func (h *Handler) handlePayCash(w http.ResponseWriter, r *http.Request, s *Session) {
	h.respondStatus(w, s, s.Checkout.PayCash(r.Context()))
}

func (h *Handler) handleLeaveCheckout(w http.ResponseWriter, r *http.Request, s *Session) {
	cleared := s.Checkout.Leave(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"cleared":  cleared,
		"checkout": s.Checkout.Status(),
	})
}

func (h *Handler) respondStatus(w http.ResponseWriter, s *Session, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Checkout.Status())
}

func (h *Handler) handleTicket(w http.ResponseWriter, r *http.Request, s *Session) {
	ticket, err := s.Checkout.Ticket()
	if err != nil {
		h.writeError(w, err)
		return
	}

	format := r.PathValue("format")
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = receipt.RenderTicketPDF(ticket)
		contentType = "application/pdf"
	case "png":
		data, err = receipt.RenderTicketPNG(ticket)
		contentType = "image/png"
	default:
		writeMessage(w, http.StatusNotFound, "Format inconnu.")
		return
	}
	if err != nil {
		h.logger.Error("Failed to render ticket", "order_number", ticket.OrderNumber, "err", err)
		writeMessage(w, http.StatusInternalServerError, "Impossible de générer le bon de commande.")
		return
	}
	writeFile(w, contentType, receipt.TicketFilename(ticket.OrderNumber, format), data)
}

// --- profile ---

type EmailRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request, s *Session) {
	writeJSON(w, http.StatusOK, map[string]any{"user": s.Profile.Current(r.Context())})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request, s *Session) {
	h.handleIdentify(w, r, s.Profile.Login)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request, s *Session) {
	h.handleIdentify(w, r, s.Profile.Register)
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request, identify func(context.Context, string) (*entity.AuthUser, error)) {
	var req EmailRequest
	if !decode(w, r, &req) {
		return
	}
	user, err := identify(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request, s *Session) {
	if err := s.Profile.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request, s *Session) {
	var req service.ProfileUpdate
	if !decode(w, r, &req) {
		return
	}
	user, err := s.Profile.Update(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) handleProfileOrders(w http.ResponseWriter, r *http.Request, s *Session) {
	orders, err := s.Profile.Orders(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if orders == nil {
		orders = []entity.StoredOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// --- vendor ---

func (h *Handler) handleVendorLookup(w http.ResponseWriter, r *http.Request) {
	order, err := h.vendor.Lookup(r.Context(), r.URL.Query().Get("order"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleVendorConfirmCash(w http.ResponseWriter, r *http.Request) {
	paid, err := h.vendor.ConfirmCash(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeFile(w, "application/pdf", paid.Filename, paid.PDF)
}

// --- plumbing ---

// withSession resolves the caller's session and refreshes its cookie.
func (h *Handler) withSession(next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := sessionID(r)
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(h.ttl.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		w.Header().Set(SessionHeader, id)
		next(w, r, h.sessions.Get(r.Context(), id))
	}
}

// writeError maps service errors to a status and a short message for the
// shopper. Details only go to the log.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var fieldErr *service.FieldError
	switch {
	case errors.As(err, &fieldErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Champ manquant ou invalide.",
			"field": fieldErr.Field,
		})
		return
	case errors.Is(err, service.ErrInvalidEmail):
		writeMessage(w, http.StatusBadRequest, "Adresse e-mail invalide.")
	case errors.Is(err, service.ErrInvalidItem):
		writeMessage(w, http.StatusBadRequest, "Article invalide.")
	case errors.Is(err, service.ErrEmptyQuery):
		writeMessage(w, http.StatusBadRequest, "Saisissez un identifiant ou numéro de commande.")
	case errors.Is(err, service.ErrNotLoggedIn):
		writeMessage(w, http.StatusUnauthorized, "Aucun profil connecté.")
	case errors.Is(err, service.ErrOrderNotFound):
		writeMessage(w, http.StatusNotFound, "Commande introuvable.")
	case errors.Is(err, service.ErrEmptyCart):
		writeMessage(w, http.StatusConflict, "Votre panier est vide.")
	case errors.Is(err, service.ErrInvalidState):
		writeMessage(w, http.StatusConflict, "Action impossible à cette étape.")
	case errors.Is(err, service.ErrCardUnavailable):
		writeMessage(w, http.StatusNotImplemented, "Le paiement par carte n'est pas encore disponible.")
	case errors.Is(err, service.ErrCheckoutFailed):
		h.logger.Error("Checkout step failed", "err", err)
		writeMessage(w, http.StatusBadGateway, "Impossible d'enregistrer la commande pour l'instant.")
	case errors.Is(err, service.ErrReceiptFailed):
		h.logger.Error("Receipt generation failed", "err", err)
		writeMessage(w, http.StatusInternalServerError, "Paiement validé, mais le reçu n'a pas pu être généré.")
	default:
		h.logger.Error("Request failed", "err", err)
		writeMessage(w, http.StatusBadGateway, "Service momentanément indisponible.")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// EnableCORS is a middleware to allow the storefront frontend to connect.
func EnableCORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{"Content-Type", SessionHeader}, ", "))
		w.Header().Set("Access-Control-Expose-Headers", strings.Join([]string{SessionHeader, "Content-Disposition"}, ", "))
		if origin != "*" {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
