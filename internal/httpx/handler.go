package httpx

import (
	"context"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/reconcile"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"log/slog"
)

// StatusCache is the Redis read model for order status.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.StatusEntry, bool, error)
	Set(ctx context.Context, orderID string, e redisx.StatusEntry) error
	Delete(ctx context.Context, orderID string) error
}

type Handler struct {
	Log        *slog.Logger
	Store      orders.Reader
	Cart       *cart.Service
	Checkout   *checkout.Service
	Engine     *reconcile.Engine
	Admin      *reconcile.Admin
	Status     StatusCache // optional
	AdminToken string
}

func (h *Handler) Register(r *chi.Mux) {
	r.Post("/webhooks/razorpay", h.webhook)

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.Get("/cart", h.getCart)
		r.Post("/cart/items", h.addCartItem)
		r.Patch("/cart/items", h.updateCartItem)
		r.Delete("/cart/items", h.removeCartItem)
		r.Delete("/cart", h.clearCart)

		r.Post("/orders/online", h.placeOnline)
		r.Post("/orders/cod", h.placeCOD)
		r.Post("/orders/verify-payment", h.verifyPayment)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{id}", h.getOrder)
		r.Get("/orders/{id}/status", h.getOrderStatus)
		r.Get("/orders/{id}/payment", h.getOrderPayment)
		r.Post("/orders/{id}/cancel", h.cancelOrder)
		r.Delete("/orders/{id}", h.deleteOrder)
		r.Get("/payments", h.listPayments)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin(h.AdminToken))
		r.Put("/orders/{id}/status", h.adminSetStatus)
		r.Post("/orders/cleanup", h.adminCleanup)
		r.Post("/orders/{id}/refund", h.adminRefund)
		r.Delete("/orders/{id}", h.adminDelete)
		r.Put("/products/stock", h.adminBulkStock)
		r.Put("/products/{id}/stock", h.adminUpdateStock)
		r.Get("/inventory/alerts", h.adminStockAlerts)
	})
}
