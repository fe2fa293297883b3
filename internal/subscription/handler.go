package subscription

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/pos-billing/internal/transport"
)

// Handler serves the admin subscription endpoints. Authentication is
// handled upstream by the service-token middleware.
type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(nil),
		Service:     service,
	}
}

func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.subscriptionID(w, r)
	if !ok {
		return
	}

	sub, err := h.Service.GetSubscription(id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toSubscriptionDTO(sub))
}

func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := h.subscriptionID(w, r)
	if !ok {
		return
	}

	var dto CancelSubscriptionDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.Service.Cancel(r.Context(), id, dto.Reason); err != nil {
		h.HandleError(w, err)
		return
	}

	sub, err := h.Service.GetSubscription(id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.Logger.Info("CancelSubscription: cancelled via admin API",
		"subscription_id", id,
		"reason", dto.Reason)

	h.WriteJSON(w, http.StatusOK, toSubscriptionDTO(sub))
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.subscriptionID(w, r)
	if !ok {
		return
	}

	// 404 for unknown subscriptions rather than an empty list.
	if _, err := h.Service.GetSubscription(id); err != nil {
		h.HandleError(w, err)
		return
	}

	payments, err := h.Service.ListPayments(id)
	if err != nil {
		h.HandleError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"payments": toPaymentDTOs(payments),
	})
}

func (h *Handler) subscriptionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid subscription ID")
		return 0, false
	}
	return id, true
}
