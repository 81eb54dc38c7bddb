// Package handlers holds the HTTP handlers of the order desk.
package handlers

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"github.com/wellywell/orderdesk/internal/order"
	"github.com/wellywell/orderdesk/internal/store"
	"github.com/wellywell/orderdesk/internal/types"
	"github.com/wellywell/orderdesk/internal/validate"
)

//go:embed templates/admin.html
var templates embed.FS

type Desk interface {
	Submit(ctx context.Context, sub *validate.Submission) (*types.Order, error)
	Check(ctx context.Context, id string) (order.StatusView, error)
	Act(ctx context.Context, id string, act types.Action) (bool, error)
	AdminList(ctx context.Context) ([]order.AdminOrder, error)
}

type HandlerSet struct {
	desk  Desk
	admin *template.Template
}

type submitResponse struct {
	OK      bool   `json:"ok"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

const (
	errInvalid  = "invalid"
	errStorage  = "storage"
	errTooLarge = "too_large"
	errCorrupt  = "corrupt"
)

func NewHandlerSet(desk Desk) *HandlerSet {
	admin := template.Must(template.New("admin.html").Funcs(template.FuncMap{
		"modeLabel": modeLabel,
		"money":     func(d decimal.Decimal) string { return d.StringFixed(2) },
	}).ParseFS(templates, "templates/admin.html"))

	return &HandlerSet{
		desk:  desk,
		admin: admin,
	}
}

func modeLabel(m types.Mode) string {
	if m == types.DeliveryMode {
		return "توصيل"
	}
	return "استلام"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Could not write response: %s", err)
	}
}

func (h *HandlerSet) HandleSubmit(w http.ResponseWriter, req *http.Request) {

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, submitResponse{Error: errTooLarge})
			return
		}
		writeJSON(w, http.StatusBadRequest, submitResponse{Error: errInvalid})
		return
	}

	var sub validate.Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		logger.Debugf("Could not parse submission: %s", err)
		writeJSON(w, http.StatusBadRequest, submitResponse{Error: errInvalid})
		return
	}

	o, err := h.desk.Submit(req.Context(), &sub)
	if err != nil {
		if errors.Is(err, validate.ErrInvalidInput) {
			logger.Infof("Rejected submission: %s", err)
			writeJSON(w, http.StatusBadRequest, submitResponse{Error: errInvalid})
			return
		}
		logger.Errorf("Could not store order: %s", err)
		writeJSON(w, http.StatusInternalServerError, submitResponse{Error: errStorage})
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{OK: true, OrderID: o.ID})
}

func (h *HandlerSet) HandleCheck(w http.ResponseWriter, req *http.Request) {

	id := req.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusOK, order.ProjectStatus(nil))
		return
	}

	view, err := h.desk.Check(req.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			logger.Errorf("Order %q is unreadable: %s", id, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": errCorrupt})
			return
		}
		logger.Errorf("Could not check order %q: %s", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": errStorage})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleAdminAction always lands the operator back on the list unless the
// write itself failed.
func (h *HandlerSet) HandleAdminAction(w http.ResponseWriter, req *http.Request) {

	id := req.URL.Query().Get("id")
	act, ok := types.ParseAction(req.URL.Query().Get("act"))
	if !ok || id == "" {
		http.Redirect(w, req, "/admin", http.StatusFound)
		return
	}

	if _, err := h.desk.Act(req.Context(), id, act); err != nil {
		if errors.Is(err, store.ErrCorrupt) {
			// unreadable records are left alone and stay out of the list
			logger.Errorf("Cannot %s unreadable order %q: %s", act, id, err)
			http.Redirect(w, req, "/admin", http.StatusFound)
			return
		}
		logger.Errorf("Could not %s order %q: %s", act, id, err)
		http.Error(w, "Something went wrong", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, req, "/admin", http.StatusFound)
}

type adminPage struct {
	Orders  []order.AdminOrder
	Pending int
}

func (h *HandlerSet) HandleAdminList(w http.ResponseWriter, req *http.Request) {

	orders, err := h.desk.AdminList(req.Context())
	if err != nil {
		logger.Errorf("Could not list orders: %s", err)
		http.Error(w, "Something went wrong", http.StatusInternalServerError)
		return
	}

	page := adminPage{Orders: orders}
	for _, o := range orders {
		if o.Pending() {
			page.Pending++
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.admin.Execute(w, page); err != nil {
		logger.Errorf("Could not render admin page: %s", err)
	}
}

func (h *HandlerSet) HandleAdminOrders(w http.ResponseWriter, req *http.Request) {

	orders, err := h.desk.AdminList(req.Context())
	if err != nil {
		logger.Errorf("Could not list orders: %s", err)
		http.Error(w, "Something went wrong", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *HandlerSet) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *HandlerSet) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}
