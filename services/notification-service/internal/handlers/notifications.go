package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicops/libs/auth"
	"github.com/md-rashed-zaman/clinicops/libs/httpx"
	"github.com/md-rashed-zaman/clinicops/services/notification-service/internal/storage"
)

type Store interface {
	List(ctx context.Context, recipientID string, opts storage.ListOptions) ([]storage.Notification, int, error)
	MarkRead(ctx context.Context, recipientID string, ids []string, at time.Time) (int64, error)
}

type NotificationHandler struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewNotificationHandler(store Store, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, logger: logger, now: time.Now}
}

func (h *NotificationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/notifications", h.List)
	mux.HandleFunc("/api/v1/notifications/read", h.MarkRead)
}

type notificationResponse struct {
	ID            string `json:"id"`
	AppointmentID string `json:"appointment_id"`
	RecipientKind string `json:"recipient_kind"`
	Category      string `json:"category"`
	Event         string `json:"event"`
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	OccurredAt    string `json:"occurred_at"`
	Read          bool   `json:"read"`
	ReadAt        string `json:"read_at,omitempty"`
}

type listResponse struct {
	Items  []notificationResponse `json:"items"`
	Unread int                    `json:"unread"`
}

type markReadRequest struct {
	IDs []string `json:"ids"`
}

type markReadResponse struct {
	Updated int64 `json:"updated"`
}

// List returns the caller's notifications. Query: unread=true, limit=N.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	opts := storage.ListOptions{UnreadOnly: r.URL.Query().Get("unread") == "true"}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > storage.MaxLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		opts.Limit = limit
	}

	items, unread, err := h.store.List(r.Context(), p.Subject, opts)
	if err != nil {
		h.logger.Error("list notifications failed", "err", err, "recipient_id", p.Subject)
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	resp := listResponse{Items: make([]notificationResponse, 0, len(items)), Unread: unread}
	for _, n := range items {
		item := notificationResponse{
			ID:            n.ID,
			AppointmentID: n.AppointmentID,
			RecipientKind: n.RecipientKind,
			Category:      n.Category,
			Event:         n.Event,
			Title:         n.Title,
			Summary:       n.Summary,
			OccurredAt:    n.OccurredAt.UTC().Format(time.RFC3339),
			Read:          n.ReadAt != nil,
		}
		if n.ReadAt != nil {
			item.ReadAt = n.ReadAt.UTC().Format(time.RFC3339)
		}
		resp.Items = append(resp.Items, item)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// MarkRead marks the listed notifications as read; an empty list marks all.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req markReadRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	for _, id := range req.IDs {
		if _, err := uuid.Parse(id); err != nil {
			http.Error(w, "invalid notification id", http.StatusBadRequest)
			return
		}
	}

	updated, err := h.store.MarkRead(r.Context(), p.Subject, req.IDs, h.now().UTC())
	if err != nil {
		h.logger.Error("mark read failed", "err", err, "recipient_id", p.Subject)
		http.Error(w, "failed to mark notifications", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, markReadResponse{Updated: updated})
}
