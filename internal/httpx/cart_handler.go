package httpx

import (
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"net/http"
)

type cartItemReq struct {
	ProductID string      `json:"product_id"`
	Quantity  int         `json:"quantity"`
	Size      orders.Size `json:"size"`
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.Cart.Read(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.ProductID == "" {
		writeFail(w, http.StatusBadRequest, "validation", "product_id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	v, err := h.Cart.AddItem(r.Context(), userID(r), req.ProductID, req.Quantity, req.Size)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	v, err := h.Cart.UpdateQuantity(r.Context(), userID(r), req.ProductID, req.Size, req.Quantity)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v, err := h.Cart.RemoveItem(r.Context(), userID(r), q.Get("product_id"), orders.Size(q.Get("size")))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.Cart.Clear(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
