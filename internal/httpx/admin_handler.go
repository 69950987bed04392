package httpx

import (
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"net/http"
	"strconv"
)

type setStatusReq struct {
	Status string `json:"status"`
}

type stockReq struct {
	Stock     *int              `json:"stock"`
	Operation inventory.StockOp `json:"operation"`
}

type bulkStockReq struct {
	Updates []inventory.StockUpdate `json:"updates"`
}

type refundReq struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

func (h *Handler) adminSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	res, err := h.Admin.SetOrderStatus(r.Context(), chi.URLParam(r, "id"), req.Status, traceID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: res.Order, Payment: res.Payment})
}

func (h *Handler) adminCleanup(w http.ResponseWriter, r *http.Request) {
	n, err := h.Admin.CleanupAbandoned(r.Context())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": n})
}

func (h *Handler) adminRefund(w http.ResponseWriter, r *http.Request) {
	var req refundReq
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
	}
	res, err := h.Admin.RefundOrder(r.Context(), chi.URLParam(r, "id"), req.Amount, traceID(r))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusAccepted, orderResp{Order: res.Order, Payment: res.Payment})
}

func (h *Handler) adminDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Engine.DeleteOrder(r.Context(), "", id); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.evictStatus(r, id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adminUpdateStock(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Stock == nil {
		writeError(w, r, h.Log, orders.Validationf("stock is required"))
		return
	}
	ch, err := h.Admin.UpdateStock(r.Context(), inventory.StockUpdate{
		ProductID: chi.URLParam(r, "id"),
		Stock:     *req.Stock,
		Operation: req.Operation,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (h *Handler) adminBulkStock(w http.ResponseWriter, r *http.Request) {
	var req bulkStockReq
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	res, err := h.Admin.BulkUpdateStock(r.Context(), req.Updates)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) adminStockAlerts(w http.ResponseWriter, r *http.Request) {
	threshold := 0
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, h.Log, orders.Validationf("threshold must be a number"))
			return
		}
		threshold = n
	}
	res, err := h.Admin.StockAlerts(r.Context(), threshold)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
