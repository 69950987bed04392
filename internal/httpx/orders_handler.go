package httpx

import (
	"errors"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/reconcile"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"net/http"
)

type placeOrderReq struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	Address     orders.Address  `json:"address"`
}

type verifyPaymentReq struct {
	OrderID           string `json:"order_id"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

type orderResp struct {
	Order   orders.Order    `json:"order"`
	Payment *orders.Payment `json:"payment,omitempty"`
}

func (h *Handler) checkoutReq(w http.ResponseWriter, r *http.Request) (checkout.Request, bool) {
	var req placeOrderReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return checkout.Request{}, false
	}
	return checkout.Request{
		UserID:      userID(r),
		TotalAmount: req.TotalAmount,
		Address:     req.Address,
		TraceID:     traceID(r),
	}, true
}

func (h *Handler) placeCOD(w http.ResponseWriter, r *http.Request) {
	req, ok := h.checkoutReq(w, r)
	if !ok {
		return
	}
	o, err := h.Checkout.PlaceCOD(r.Context(), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResp{Order: o})
}

func (h *Handler) placeOnline(w http.ResponseWriter, r *http.Request) {
	req, ok := h.checkoutReq(w, r)
	if !ok {
		return
	}
	res, err := h.Checkout.PlaceOnline(r.Context(), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	res, err := h.Engine.VerifyPayment(r.Context(), reconcile.VerifyRequest{
		UserID:           userID(r),
		OrderID:          req.OrderID,
		GatewayOrderID:   req.RazorpayOrderID,
		GatewayPaymentID: req.RazorpayPaymentID,
		Signature:        req.RazorpaySignature,
		TraceID:          traceID(r),
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: res.Order, Payment: res.Payment})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	f := orders.OrderFilter{UserID: userID(r)}
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, err := orders.ParseOrderStatus(s)
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		f.Status = st
	}
	if m := q.Get("method"); m != "" {
		pm, err := orders.ParsePaymentMethod(m)
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		f.Method = pm
	}
	list, err := h.Store.ListOrders(r.Context(), f)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ownOrder loads an order the caller owns; someone else's order is
// reported as missing.
func (h *Handler) ownOrder(w http.ResponseWriter, r *http.Request) (orders.Order, bool) {
	id := chi.URLParam(r, "id")
	o, err := h.Store.GetOrder(r.Context(), id)
	if err == nil && o.UserID != userID(r) {
		err = orders.NotFoundf("order %s", id)
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return orders.Order{}, false
	}
	return o, true
}

func (h *Handler) paymentOf(r *http.Request, o orders.Order) (*orders.Payment, error) {
	if o.PaymentMethod != orders.MethodOnline {
		return nil, nil
	}
	p, err := h.Store.GetPaymentByOrder(r.Context(), o.ID)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.ownOrder(w, r)
	if !ok {
		return
	}
	p, err := h.paymentOf(r, o)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: o, Payment: p})
}

func (h *Handler) getOrderPayment(w http.ResponseWriter, r *http.Request) {
	o, ok := h.ownOrder(w, r)
	if !ok {
		return
	}
	p, err := h.paymentOf(r, o)
	if err == nil && p == nil {
		err = orders.NotFoundf("payment for order %s", o.ID)
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	// 1) coba cache
	if h.Status != nil {
		e, ok, err := h.Status.Get(ctx, id)
		if err != nil {
			h.Log.Warn("status cache get", "order_id", id, "err", err)
		}
		if ok && e.UserID == userID(r) {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}

	// 2) fallback DB
	o, ok := h.ownOrder(w, r)
	if !ok {
		return
	}
	e := redisx.StatusEntry{UserID: o.UserID, Status: o.Status, UpdatedAt: o.UpdatedAt}
	if p, err := h.paymentOf(r, o); err == nil && p != nil {
		e.PaymentStatus = p.Status
	}
	if h.Status != nil {
		if err := h.Status.Set(ctx, id, e); err != nil {
			h.Log.Warn("status cache set", "order_id", id, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.Engine.Cancel(r.Context(), userID(r), chi.URLParam(r, "id"), traceID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: res.Order, Payment: res.Payment})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Engine.DeleteOrder(r.Context(), userID(r), id); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.evictStatus(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// evictStatus drops the cached status of a deleted order.
func (h *Handler) evictStatus(r *http.Request, id string) {
	if h.Status == nil {
		return
	}
	if err := h.Status.Delete(r.Context(), id); err != nil {
		h.Log.Warn("status cache delete", "order_id", id, "err", err)
	}
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListPaymentsByUser(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if list == nil {
		list = []orders.Payment{}
	}
	writeJSON(w, http.StatusOK, list)
}
