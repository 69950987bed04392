package httpx

import (
	"io"
	"net/http"
)

const maxWebhookBody = 1 << 20

// webhook must see the body byte for byte: the signature is over the raw
// payload, so it is read once and never re-encoded.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeFail(w, http.StatusBadRequest, "validation", "unreadable body")
		return
	}
	res, err := h.Engine.HandleWebhook(r.Context(), body,
		r.Header.Get("X-Razorpay-Signature"), r.Header.Get("X-Razorpay-Event-Id"))
	if err != nil {
		// non-2xx makes the gateway redeliver
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
