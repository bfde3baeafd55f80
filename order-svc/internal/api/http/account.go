package httpapi

import (
	"net/http"

	"koikhabo/order-svc/internal/session"
)

func (h *Handler) getInstitution(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	inst, err := h.Orders.Institution(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*session.Institution{"institution": inst})
}

func (h *Handler) selectInstitution(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	var inst session.Institution
	if !decode(w, r, &inst) {
		return
	}
	if inst.ID == 0 {
		writeMessage(w, http.StatusBadRequest, "Please select an institution")
		return
	}
	if err := h.Orders.SelectInstitution(r.Context(), sid, inst); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]session.Institution{"institution": inst})
}

func (h *Handler) getOrderHistory(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	orders, err := h.Orders.OrderHistory(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	order, err := h.Orders.Reorder(r.Context(), sid, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) getBookings(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	bookings, err := h.Orders.Bookings(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) cancelBooking(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	if err := h.Orders.CancelBooking(r.Context(), sid, id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getDashboard passes the backend's dashboard payload through unchanged.
func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	raw, err := h.Orders.AdminDashboard(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(raw)
}
