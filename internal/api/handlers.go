package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/soletrade/marketplace/internal/auth"
	"github.com/soletrade/marketplace/internal/book"
	"github.com/soletrade/marketplace/internal/catalog"
	"github.com/soletrade/marketplace/internal/db"
	"github.com/soletrade/marketplace/internal/engine"
	"github.com/soletrade/marketplace/internal/models"
	"github.com/soletrade/marketplace/internal/shipping"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type contextKey string

const userIDKey contextKey = "user_id"

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB          *db.DB
	Book        *book.Book
	Engine      *engine.Engine
	Catalog     *catalog.Catalog
	Shipping    *shipping.Resolver
	AuthService *auth.AuthService
	Validate    *validator.Validate
	Log         *logrus.Logger
}

// NewHandler creates a new handler
func NewHandler(database *db.DB, b *book.Book, eng *engine.Engine, cat *catalog.Catalog, resolver *shipping.Resolver, authService *auth.AuthService, log *logrus.Logger) *Handler {
	return &Handler{
		DB:          database,
		Book:        b,
		Engine:      eng,
		Catalog:     cat,
		Shipping:    resolver,
		AuthService: authService,
		Validate:    validator.New(),
		Log:         log,
	}
}

// writeMessage renders the flat {"message": CODE} body the clients consume.
func writeMessage(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		switch engErr.Kind {
		case engine.KindValidation:
			writeMessage(w, http.StatusBadRequest, engErr.Code)
		case engine.KindNotFound:
			writeMessage(w, http.StatusNotFound, engErr.Code)
		case engine.KindConflict:
			writeMessage(w, http.StatusConflict, engErr.Code)
		default:
			h.Log.WithError(err).Error("engine failure")
			writeMessage(w, http.StatusInternalServerError, engErr.Code)
		}
		return
	}
	h.Log.WithError(err).Error("unexpected failure")
	writeMessage(w, http.StatusInternalServerError, "INTERNAL_ERROR")
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Name, req.Password)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "REGISTRATION_FAILED")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "INVALID_CREDENTIALS")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access_token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeMessage(w, http.StatusUnauthorized, "LOGIN_REQUIRED")
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "INVALID_TOKEN")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) (int, bool) {
	id, ok := r.Context().Value(userIDKey).(int)
	return id, ok
}

// orderRequest is the submission payload shared by the buy and sell routes.
// The isBid/isAsk flag is inherited from the existing clients: '1' means a
// standing offer, '0' an immediate execution.
type orderRequest struct {
	IsBid            string `json:"isBid"`
	IsAsk            string `json:"isAsk"`
	Price            string `json:"price" validate:"required"`
	Name             string `json:"name" validate:"required"`
	Country          string `json:"country" validate:"required"`
	PrimaryAddress   string `json:"primaryAddress" validate:"required"`
	SecondaryAddress string `json:"secondaryAddress"`
	City             string `json:"city" validate:"required"`
	State            string `json:"state"`
	PostalCode       string `json:"postalCode" validate:"required"`
	PhoneNumber      string `json:"phoneNumber" validate:"required"`
	ExpirationDate   int    `json:"expirationDate"`
	TotalPrice       string `json:"totalPrice"`
}

func (req *orderRequest) fields() shipping.Fields {
	return shipping.Fields{
		Name:             req.Name,
		Country:          req.Country,
		PrimaryAddress:   req.PrimaryAddress,
		SecondaryAddress: req.SecondaryAddress,
		City:             req.City,
		State:            req.State,
		PostalCode:       req.PostalCode,
		PhoneNumber:      req.PhoneNumber,
	}
}

// listingParams pulls the product id route param and size query param.
func listingParams(r *http.Request) (productID, sizeID int, ok bool) {
	productID, err := strconv.Atoi(chi.URLParam(r, "productID"))
	if err != nil {
		return 0, 0, false
	}
	sizeID, err = strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		return 0, 0, false
	}
	return productID, sizeID, true
}

// submitOrder is the shared buy/sell submission flow.
func (h *Handler) submitOrder(w http.ResponseWriter, r *http.Request, side models.Side) {
	uid, ok := userID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "LOGIN_REQUIRED")
		return
	}

	productID, sizeID, ok := listingParams(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "PRODUCT_SIZE_DOES_NOT_EXIST")
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}

	flag := req.IsBid
	if side == models.SideAsk {
		flag = req.IsAsk
	}
	if flag == "" {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}
	if flag != "0" && flag != "1" {
		writeMessage(w, http.StatusBadRequest, "INVALID_VALUE")
		return
	}
	// '1' is a standing offer, '0' an immediate execution.
	standing := flag == "1"

	if err := h.Validate.Struct(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "INVALID_VALUE")
		return
	}

	sub := engine.Submission{
		Price:    price,
		Shipping: req.fields(),
	}

	var order *models.Order
	if standing {
		sub.ExpirationDays = req.ExpirationDate
		order, err = h.Engine.SubmitStanding(r.Context(), side, productID, sizeID, uid, sub)
	} else {
		if req.TotalPrice == "" {
			writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
			return
		}
		sub.TotalPrice, err = decimal.NewFromString(req.TotalPrice)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "INVALID_VALUE")
			return
		}
		order, err = h.Engine.SubmitImmediate(r.Context(), side, productID, sizeID, uid, sub)
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "SUCCESS",
		"order_id": order.ID,
	})
}

// SubmitBid handles POST /listings/{productID}/buy
func (h *Handler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	h.submitOrder(w, r, models.SideBid)
}

// SubmitAsk handles POST /listings/{productID}/sell
func (h *Handler) SubmitAsk(w http.ResponseWriter, r *http.Request) {
	h.submitOrder(w, r, models.SideAsk)
}

// GetListingView serves the buy/sell page prefill: the listing's book
// snapshot plus the user's most recent shipping profile.
func (h *Handler) GetListingView(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "LOGIN_REQUIRED")
		return
	}

	productID, sizeID, ok := listingParams(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "PRODUCT_SIZE_DOES_NOT_EXIST")
		return
	}

	listing, err := h.DB.GetListing(r.Context(), productID, sizeID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "PRODUCT_SIZE_DOES_NOT_EXIST")
			return
		}
		h.writeEngineError(w, err)
		return
	}

	snap, err := h.Book.GetSnapshot(r.Context(), listing.ID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	product, err := h.Catalog.GetProduct(r.Context(), productID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	var shippingInfo *models.ShippingInformation
	info, err := h.Shipping.Latest(r.Context(), h.DB.Pool, uid)
	if err == nil {
		shippingInfo = info
	} else if !errors.Is(err, db.ErrNotFound) {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"product": map[string]interface{}{
				"id":         listing.ID,
				"name":       product.Name,
				"highestBid": snap.HighestBid,
				"lowestAsk":  snap.LowestAsk,
				"image":      product.ImageURL,
			},
			"shippingInfo": shippingInfo,
		},
	})
}

// GetOrderBook handles GET /orderbook?product=&size=
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.Atoi(r.URL.Query().Get("product"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}
	sizeID, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}

	listing, err := h.DB.GetListing(r.Context(), productID, sizeID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "PRODUCT_SIZE_DOES_NOT_EXIST")
			return
		}
		h.writeEngineError(w, err)
		return
	}

	snap, err := h.Book.GetSnapshot(r.Context(), listing.ID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type statusEntry struct {
	db.UserOrderSummary
	Expires      string `json:"expires,omitempty"`
	PurchaseDate string `json:"purchaseDate,omitempty"`
}

func statusEntries(summaries []db.UserOrderSummary, pending bool) []statusEntry {
	entries := make([]statusEntry, 0, len(summaries))
	for _, s := range summaries {
		e := statusEntry{UserOrderSummary: s}
		if !pending && s.Expires != nil {
			e.Expires = s.Expires.Format("2006/01/02")
		}
		if pending && s.MatchedAt != nil {
			e.PurchaseDate = s.MatchedAt.Format("2006/01/02")
		}
		entries = append(entries, e)
	}
	return entries
}

// getUserStatus serves the "my buying"/"my selling" views: current orders
// with book context and pending orders with their numbers.
func (h *Handler) getUserStatus(w http.ResponseWriter, r *http.Request, side models.Side, key string) {
	uid, ok := userID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "LOGIN_REQUIRED")
		return
	}

	current, err := h.DB.GetUserOrders(r.Context(), uid, side, models.StatusCurrent)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	pending, err := h.DB.GetUserOrders(r.Context(), uid, side, models.StatusPending)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		key: map[string]interface{}{
			"current": statusEntries(current, false),
			"pending": statusEntries(pending, true),
		},
	})
}

// GetBuyingStatus handles GET /orders/buying
func (h *Handler) GetBuyingStatus(w http.ResponseWriter, r *http.Request) {
	h.getUserStatus(w, r, models.SideBid, "buying")
}

// GetSellingStatus handles GET /orders/selling
func (h *Handler) GetSellingStatus(w http.ResponseWriter, r *http.Request) {
	h.getUserStatus(w, r, models.SideAsk, "selling")
}

// ListProducts handles GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.ListFilter{}

	if v := q.Get("lowest"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "INVALID_VALUE")
			return
		}
		filter.LowestPrice = &d
	}
	if v := q.Get("highest"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "INVALID_VALUE")
			return
		}
		filter.HighestPrice = &d
	}
	filter.SizeID, _ = strconv.Atoi(q.Get("size"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	products, err := h.Catalog.ListProducts(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	sizes, err := h.Catalog.ListSizes(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"products":        products,
		"size_categories": sizes,
	})
}

// GetProduct handles GET /products/{productID}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.Atoi(chi.URLParam(r, "productID"))
	if err != nil {
		writeMessage(w, http.StatusNotFound, "PRODUCT_DOES_NOT_EXIST")
		return
	}

	detail, err := h.Catalog.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "PRODUCT_DOES_NOT_EXIST")
			return
		}
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": detail})
}

// AddPortfolio handles POST /portfolio
func (h *Handler) AddPortfolio(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "LOGIN_REQUIRED")
		return
	}

	var req struct {
		ProductID     int    `json:"product_id" validate:"required"`
		SizeID        int    `json:"size_id" validate:"required"`
		Month         int    `json:"month" validate:"required,min=1,max=12"`
		Year          int    `json:"year" validate:"required"`
		PurchasePrice string `json:"purchase_price" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}
	if err := h.Validate.Struct(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "KEY_ERROR")
		return
	}

	price, err := decimal.NewFromString(req.PurchasePrice)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "INVALID_VALUE")
		return
	}

	_, err = h.Catalog.AddPortfolio(r.Context(), uid, req.ProductID, req.SizeID, req.Year, time.Month(req.Month), price)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "PRODUCT_SIZE_DOES_NOT_EXIST")
			return
		}
		h.writeEngineError(w, err)
		return
	}
	writeMessage(w, http.StatusCreated, "SUCCESS")
}

// GetPortfolio handles GET /portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "LOGIN_REQUIRED")
		return
	}

	items, err := h.Catalog.GetPortfolio(r.Context(), uid)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"portfolio": items})
}

// Routes mounts every handler on a router. Shared by cmd/server and the
// handler tests.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/products", h.ListProducts)
	r.Get("/products/{productID}", h.GetProduct)
	r.Get("/orderbook", h.GetOrderBook)

	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Get("/listings/{productID}/buy", h.GetListingView)
		r.Post("/listings/{productID}/buy", h.SubmitBid)
		r.Get("/listings/{productID}/sell", h.GetListingView)
		r.Post("/listings/{productID}/sell", h.SubmitAsk)
		r.Get("/orders/buying", h.GetBuyingStatus)
		r.Get("/orders/selling", h.GetSellingStatus)
		r.Post("/portfolio", h.AddPortfolio)
		r.Get("/portfolio", h.GetPortfolio)
	})
}
