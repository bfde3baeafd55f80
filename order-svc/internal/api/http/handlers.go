package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"koikhabo/internal/domain"
	"koikhabo/internal/storage"
	"koikhabo/order-svc/internal/apiclient"
	"koikhabo/order-svc/internal/checkout"
	"koikhabo/order-svc/internal/payment"
	"koikhabo/order-svc/internal/seating"
	"koikhabo/order-svc/internal/service"
	"koikhabo/order-svc/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const SessionHeader = "X-Session-ID"

// BackendHealth reports the last known state of the restaurant backend.
type BackendHealth interface {
	Healthy() bool
}

type Handler struct {
	Orders  service.OrderServiceInterface
	Backend BackendHealth
	Logger  *zap.Logger
}

func NewHandler(orderSvc service.OrderServiceInterface, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Orders: orderSvc, Logger: logger}
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.healthCheck).Methods("GET")

	r.HandleFunc("/api/session", h.getSession).Methods("GET")
	r.HandleFunc("/api/session", h.logout).Methods("DELETE")
	r.HandleFunc("/api/session/login", h.loginUser).Methods("POST")
	r.HandleFunc("/api/session/guest", h.startGuest).Methods("POST")
	r.HandleFunc("/api/session/admin", h.loginAdmin).Methods("POST")
	r.HandleFunc("/api/session/institution", h.getInstitution).Methods("GET")
	r.HandleFunc("/api/session/institution", h.selectInstitution).Methods("PUT")

	r.HandleFunc("/api/cart", h.getCart).Methods("GET")
	r.HandleFunc("/api/cart", h.clearCart).Methods("DELETE")
	r.HandleFunc("/api/cart/items", h.addCartItem).Methods("POST")
	r.HandleFunc("/api/cart/items/{restaurantId}/{itemId}", h.setCartQuantity).Methods("PUT")
	r.HandleFunc("/api/cart/items/{restaurantId}/{itemId}", h.removeCartItem).Methods("DELETE")

	r.HandleFunc("/api/checkout", h.getCheckout).Methods("GET")
	r.HandleFunc("/api/checkout/details", h.setDetails).Methods("PUT")
	r.HandleFunc("/api/checkout/submit", h.submit).Methods("POST")
	r.HandleFunc("/api/checkout/{action:open|continue|back|done}", h.step).Methods("POST")

	r.HandleFunc("/api/restaurants/{id}/seats", h.getSeats).Methods("GET")
	r.HandleFunc("/api/restaurants/{id}/seats/book", h.bookSeats).Methods("POST")

	r.HandleFunc("/api/orders", h.getOrders).Methods("GET")
	r.HandleFunc("/api/orders/history", h.getOrderHistory).Methods("GET")
	r.HandleFunc("/api/orders/{id}/qrcode", h.getOrderQRCode).Methods("GET")
	r.HandleFunc("/api/orders/{id}/reorder", h.reorder).Methods("POST")
	r.HandleFunc("/api/reservations", h.getReservations).Methods("GET")
	r.HandleFunc("/api/reservations/bookings", h.getBookings).Methods("GET")
	r.HandleFunc("/api/reservations/bookings/{id}/cancel", h.cancelBooking).Methods("POST")

	r.HandleFunc("/api/tracking/orders", h.getTrackedOrders).Methods("GET")
	r.HandleFunc("/api/tracker/open", h.openTracker).Methods("POST")
	r.HandleFunc("/api/tracker/close", h.closeTracker).Methods("POST")
	r.HandleFunc("/api/notifications", h.getNotifications).Methods("GET")

	r.HandleFunc("/api/admin/orders/{id}/status", h.updateStatus).Methods("PUT")
	r.HandleFunc("/api/admin/dashboard", h.getDashboard).Methods("GET")
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":    "healthy",
		"service":   "order-svc",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.Backend != nil {
		body["backend"] = "down"
		if h.Backend.Healthy() {
			body["backend"] = "up"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps service errors onto HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	var apiErr *apiclient.APIError

	switch {
	case errors.As(err, &verr):
		writeMessage(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrSubmitInProgress),
		errors.Is(err, service.ErrStatusTransition):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrOrderNotFound):
		writeMessage(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, service.ErrLoginRequired), errors.Is(err, session.ErrNoSession):
		writeMessage(w, http.StatusUnauthorized, service.ErrLoginRequired.Error())
	case errors.Is(err, service.ErrForbidden):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status == 0 {
			status = http.StatusBadGateway
		}
		writeMessage(w, status, apiclient.UserMessage(err))
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// sessionID reads the caller's session. Routes that start a session pass
// issue=true and get a fresh id when none was sent.
func sessionID(w http.ResponseWriter, r *http.Request, issue bool) (string, bool) {
	id := r.Header.Get(SessionHeader)
	if id == "" && issue {
		id = uuid.NewString()
	}
	if id == "" {
		writeMessage(w, http.StatusUnauthorized, "Missing "+SessionHeader+" header")
		return "", false
	}
	w.Header().Set(SessionHeader, id)
	return id, true
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return n, true
}

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	Actor     session.Actor `json:"actor"`
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	actor, err := h.Orders.Session(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sid, Actor: actor})
}

func (h *Handler) loginUser(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, true)
	if !ok {
		return
	}
	var body struct {
		Email    string `json:"email"`
		FullName string `json:"full_name"`
	}
	if !decode(w, r, &body) {
		return
	}
	actor, err := h.Orders.LoginUser(r.Context(), sid, body.Email, body.FullName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sid, Actor: actor})
}

func (h *Handler) startGuest(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, true)
	if !ok {
		return
	}
	actor, err := h.Orders.StartGuest(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sid, Actor: actor})
}

func (h *Handler) loginAdmin(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, true)
	if !ok {
		return
	}
	var body struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}
	actor, err := h.Orders.LoginAdmin(r.Context(), sid, body.Name, body.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: sid, Actor: actor})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	if err := h.Orders.Logout(r.Context(), sid); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Orders.Cart(sid))
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Orders.ClearCart(sid))
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	var item domain.CartItem
	if !decode(w, r, &item) {
		return
	}
	if item.ID == 0 || item.RestaurantID == 0 || item.Price.IsNegative() {
		writeMessage(w, http.StatusBadRequest, "Invalid cart item")
		return
	}
	writeJSON(w, http.StatusOK, h.Orders.AddToCart(sid, item))
}

func (h *Handler) setCartQuantity(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	restaurantID, ok := pathInt(w, r, "restaurantId")
	if !ok {
		return
	}
	itemID, ok := pathInt(w, r, "itemId")
	if !ok {
		return
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if !decode(w, r, &body) {
		return
	}
	writeJSON(w, http.StatusOK, h.Orders.SetQuantity(sid, restaurantID, itemID, body.Quantity))
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	restaurantID, ok := pathInt(w, r, "restaurantId")
	if !ok {
		return
	}
	itemID, ok := pathInt(w, r, "itemId")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Orders.RemoveFromCart(sid, restaurantID, itemID))
}

func (h *Handler) getCheckout(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Orders.Checkout(sid))
}

func (h *Handler) step(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	state, err := h.Orders.Step(sid, service.Action(mux.Vars(r)["action"]))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) setDetails(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	var details checkout.Details
	if !decode(w, r, &details) {
		return
	}
	state, err := h.Orders.SetDetails(sid, details)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	var in payment.Input
	if !decode(w, r, &in) {
		return
	}
	orders, err := h.Orders.Submit(r.Context(), sid, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, orders)
}

func (h *Handler) getSeats(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Orders.Seats(id))
}

func (h *Handler) bookSeats(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	id, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var in seating.BookingInput
	if !decode(w, r, &in) {
		return
	}
	conf, err := h.Orders.BookSeats(r.Context(), sid, id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conf)
}

func (h *Handler) getOrders(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	orders, err := h.Orders.Orders(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// getTrackedOrders lists the session's orders filtered by ?status=a,b.
func (h *Handler) getTrackedOrders(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	var statuses []domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.OrderStatus(strings.TrimSpace(part))
			if !status.Valid() {
				writeMessage(w, http.StatusBadRequest, "Unknown order status: "+string(status))
				return
			}
			statuses = append(statuses, status)
		}
	}
	orders, err := h.Orders.TrackedOrders(r.Context(), sid, statuses...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrderQRCode(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid id")
		return
	}
	png, err := h.Orders.OrderQRCode(r.Context(), sid, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (h *Handler) getReservations(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	reservations, err := h.Orders.Reservations(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}

func (h *Handler) openTracker(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	running, err := h.Orders.OpenTracker(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"tracking": running})
}

func (h *Handler) closeTracker(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	if err := h.Orders.CloseTracker(r.Context(), sid); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"tracking": false})
}

func (h *Handler) getNotifications(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	notes, err := h.Orders.Notifications(r.Context(), sid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	sid, ok := sessionID(w, r, false)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid id")
		return
	}
	var body struct {
		OwnerID string             `json:"owner_id"`
		Status  domain.OrderStatus `json:"status"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.OwnerID == "" {
		writeMessage(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	order, err := h.Orders.UpdateStatus(r.Context(), sid, body.OwnerID, id, body.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
