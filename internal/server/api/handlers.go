package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/server/catalog"
	"storefront/internal/server/database"
	"storefront/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the storefront API.
type Handler struct {
	svc     *service.TokenService
	orders  database.OrderStore
	tokens  database.TokenStore
	catalog *catalog.Catalog
	db      *database.DB // nil when running on the memory store
}

// NewHandler creates a new handler. db may be nil when the server runs
// on the in-memory store.
func NewHandler(svc *service.TokenService, orders database.OrderStore, tokens database.TokenStore, cat *catalog.Catalog, db *database.DB) *Handler {
	return &Handler{svc: svc, orders: orders, tokens: tokens, catalog: cat, db: db}
}

type fulfillRequest struct {
	OrderID    string `json:"orderId"`
	TTLMinutes int    `json:"ttlMinutes"`
	MaxUses    int    `json:"maxUses"`
}

// HandleFulfill handles POST /api/fulfill.
// Mints download links for every eligible digital item on the order.
func (h *Handler) HandleFulfill(c echo.Context) error {
	var req fulfillRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.OrderID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing orderId"})
	}

	links, err := h.svc.Fulfill(c.Request().Context(), req.OrderID, service.FulfillOptions{
		TTL:     time.Duration(req.TTLMinutes) * time.Minute,
		MaxUses: req.MaxUses,
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fulfill order"})
	}

	return c.JSON(http.StatusOK, echo.Map{"links": links})
}

// HandleDownload handles GET /api/download?token=...
// Consumes one use and redirects to the asset. The remaining-use count
// rides along in a response header for "N downloads left" messaging.
func (h *Handler) HandleDownload(c echo.Context) error {
	token := c.QueryParam("token")

	result, err := h.svc.Redeem(c.Request().Context(), token)
	if err != nil {
		return mapRedeemError(c, err)
	}

	c.Response().Header().Set("X-Downloads-Remaining", strconv.Itoa(result.Remaining))
	return c.Redirect(http.StatusFound, result.FilePath)
}

type orderItemRequest struct {
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Qty       int     `json:"qty"`
	Type      string  `json:"type"`
}

type orderCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type orderRequest struct {
	Items        []orderItemRequest `json:"items"`
	Subtotal     float64            `json:"subtotal"`
	ShippingZone string             `json:"shippingZone"`
	ShippingFee  float64            `json:"shippingFee"`
	Total        float64            `json:"total"`
	Customer     orderCustomer      `json:"customer"`
	Notes        string             `json:"notes"`
}

// HandleCreateOrder handles POST /api/orders.
// Persists a checkout submission and returns the new order id.
func (h *Handler) HandleCreateOrder(c echo.Context) error {
	var req orderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	order := &database.Order{
		Subtotal:      req.Subtotal,
		ShippingZone:  req.ShippingZone,
		ShippingFee:   req.ShippingFee,
		Total:         req.Total,
		CustomerName:  req.Customer.Name,
		CustomerEmail: req.Customer.Email,
		CustomerPhone: req.Customer.Phone,
		Notes:         req.Notes,
	}
	for _, item := range req.Items {
		qty := item.Qty
		if qty <= 0 {
			qty = 1
		}
		order.Items = append(order.Items, database.OrderItem{
			ProductID: item.ProductID,
			Title:     item.Title,
			Price:     item.Price,
			Qty:       qty,
			Type:      item.Type,
		})
	}

	if err := h.orders.CreateOrder(c.Request().Context(), order); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create order"})
	}

	return c.JSON(http.StatusCreated, echo.Map{"orderId": order.ID})
}

type orderResponse struct {
	ID           string              `json:"id"`
	CreatedAt    time.Time           `json:"createdAt"`
	Subtotal     float64             `json:"subtotal"`
	ShippingZone string              `json:"shippingZone"`
	ShippingFee  float64             `json:"shippingFee"`
	Total        float64             `json:"total"`
	Customer     orderCustomer       `json:"customer"`
	Notes        string              `json:"notes"`
	Items        []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Qty       int     `json:"qty"`
	Type      string  `json:"type"`
}

// HandleListOrders handles GET /api/orders. Admin-gated.
func (h *Handler) HandleListOrders(c echo.Context) error {
	orders, err := h.orders.ListOrders(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list orders"})
	}

	payload := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp := orderResponse{
			ID:           order.ID,
			CreatedAt:    order.CreatedAt,
			Subtotal:     order.Subtotal,
			ShippingZone: order.ShippingZone,
			ShippingFee:  order.ShippingFee,
			Total:        order.Total,
			Customer: orderCustomer{
				Name:  order.CustomerName,
				Email: order.CustomerEmail,
				Phone: order.CustomerPhone,
			},
			Notes: order.Notes,
			Items: make([]orderItemResponse, 0, len(order.Items)),
		}
		for _, item := range order.Items {
			resp.Items = append(resp.Items, orderItemResponse{
				ProductID: item.ProductID,
				Title:     item.Title,
				Price:     item.Price,
				Qty:       item.Qty,
				Type:      item.Type,
			})
		}
		payload = append(payload, resp)
	}

	return c.JSON(http.StatusOK, payload)
}

// HandleProducts handles GET /api/products.
// Returns the read-only seeded catalog.
func (h *Handler) HandleProducts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.Products())
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "memory"

	if h.db != nil {
		dbStatus = "connected"
		if err := h.db.HealthCheck(c.Request().Context()); err != nil {
			status = "degraded"
			dbStatus = fmt.Sprintf("error: %v", err)
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// HandleStats handles GET /api/stats. Admin-gated.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.tokens.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve stats"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total_orders":     stats.TotalOrders,
		"total_tokens":     stats.TotalTokens,
		"active_tokens":    stats.ActiveTokens,
		"exhausted_tokens": stats.ExhaustedTokens,
		"expired_tokens":   stats.ExpiredTokens,
	})
}

// mapRedeemError translates redemption failures into the HTTP statuses
// the redemption contract promises: 400 missing, 404 unknown, 410 for
// both expired and exhausted (permanent, never retryable), 403 blocked.
func mapRedeemError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing token"})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "token not found"})
	case errors.Is(err, service.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "token expired"})
	case errors.Is(err, service.ErrExhausted):
		return c.JSON(http.StatusGone, echo.Map{"error": "download limit reached"})
	case errors.Is(err, service.ErrInvalidPath):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "file not available"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
