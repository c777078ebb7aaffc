package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"testpulse/internal/core"
	"testpulse/internal/store"
	"testpulse/internal/types"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryReader lists delivery records, newest first.
type HistoryReader interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]types.NotificationHistory, error)
	ListByEventType(ctx context.Context, eventType types.EventType, limit int) ([]types.NotificationHistory, error)
}

var _ HistoryReader = (*store.HistoryRepository)(nil)

// HistoryEntry is one delivery record with its stored body expanded.
type HistoryEntry struct {
	NotificationID string            `json:"notificationId"`
	UserID         string            `json:"userId"`
	EventType      types.EventType   `json:"eventType"`
	Channel        types.ChannelType `json:"channel"`
	Success        bool              `json:"success"`
	MessageID      string            `json:"messageId,omitempty"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	Body           string            `json:"body,omitempty"`
	SentAt         time.Time         `json:"sentAt"`
	ExpiresAt      time.Time         `json:"expiresAt"`
}

type HistoryHandler struct {
	reader HistoryReader
	logger *slog.Logger
}

func NewHistoryHandler(reader HistoryReader, l *slog.Logger) *HistoryHandler {
	if l == nil {
		l = slog.Default()
	}
	return &HistoryHandler{reader: reader, logger: l}
}

func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/history", h.List)
}

// List handles GET /v1/history?userId= or GET /v1/history?eventType=.
// Exactly one filter is required. limit defaults to 50 and is capped at 200.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	eventType := types.EventType(q.Get("eventType"))

	if (userID == "") == (eventType == "") {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"exactly one of userId or eventType is required", nil))
		return
	}
	if eventType != "" && !eventType.Valid() {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBody,
			"unknown eventType", nil, map[string]any{"eventType": string(eventType)}))
		return
	}

	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidBody,
				"limit must be a positive integer", err, map[string]any{"limit": raw}))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var (
		records []types.NotificationHistory
		err     error
	)
	if userID != "" {
		records, err = h.reader.ListByUser(r.Context(), userID, limit)
	} else {
		records, err = h.reader.ListByEventType(r.Context(), eventType, limit)
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		body, err := store.DecompressBody(rec.Body)
		if err != nil {
			// Keep the record; only its body is unreadable.
			h.logger.WarnContext(r.Context(), "history body unreadable",
				"notification_id", rec.NotificationID,
				"error", err,
			)
		}
		entries = append(entries, HistoryEntry{
			NotificationID: rec.NotificationID,
			UserID:         rec.UserID,
			EventType:      rec.EventType,
			Channel:        rec.Channel,
			Success:        rec.Success,
			MessageID:      rec.MessageID,
			ErrorMessage:   rec.ErrorMessage,
			Body:           body,
			SentAt:         rec.SentAt,
			ExpiresAt:      time.Unix(rec.TTL, 0).UTC(),
		})
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: entries})
}
