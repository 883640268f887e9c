package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/message"
	"github.com/rx3lixir/echonet/pkg/httputil"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Service is the room engine behind the REST handlers
type Service interface {
	CreateRoom(ctx context.Context, id auth.Identity, req CreateRoomRequest) (*Room, error)
	GetRoom(ctx context.Context, key string) (*Room, error)
	MessageCount(ctx context.Context, key string) (int, error)
	History(ctx context.Context, key string, limit int) ([]*message.Message, error)

	ExtendTimer(ctx context.Context, key, userID string, minutes int) (*Room, error)
	AnnounceTimer(r *Room, minutes int)
	DeleteRoom(ctx context.Context, key, userID string) error
	AnnounceDeleted(key string)

	CreatedRooms(ctx context.Context, userID string) ([]CreatedSummary, error)
	JoinedRooms(ctx context.Context, userID string) ([]JoinedSummary, error)
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", httputil.Handler(h.HandleCreateRoom, h.log))
	r.Get("/created", httputil.Handler(h.HandleCreatedRooms, h.log))
	r.Get("/joined", httputil.Handler(h.HandleJoinedRooms, h.log))
	r.Get("/{key}", httputil.Handler(h.HandleGetRoom, h.log))
	r.Get("/{key}/messages", httputil.Handler(h.HandleGetMessages, h.log))
	r.Delete("/{key}", httputil.Handler(h.HandleDeleteRoom, h.log))
	r.Patch("/{key}/extend-timer", httputil.Handler(h.HandleExtendTimer, h.log))
}

// KeyParam reads and validates the {key} URL parameter
func KeyParam(r *http.Request) (string, error) {
	key := NormalizeKey(chi.URLParam(r, "key"))
	if !ValidKey(key) {
		return "", httputil.BadRequest("Invalid room key format", map[string]string{
			"expected": "XXXX-XXXX-XXXX",
		})
	}
	return key, nil
}

// HTTPError maps room engine errors onto HTTP responses
func HTTPError(err error) error {
	switch {
	case errors.Is(err, ErrExpired):
		return httputil.Gone("Room has expired")
	case errors.Is(err, ErrNotFound):
		return httputil.NotFound("Room not found or expired")
	case errors.Is(err, ErrFull):
		return httputil.Conflict("Room is full")
	case errors.Is(err, ErrForbidden):
		return httputil.Forbidden("Only the room creator can do this")
	case errors.Is(err, ErrInvalidInput):
		return httputil.BadRequest(err.Error())
	case errors.Is(err, ErrRateLimited):
		return httputil.TooManyRequests("Slow down")
	case errors.Is(err, ErrStoreUnavailable):
		return httputil.Unavailable(err)
	default:
		return httputil.Internal(err)
	}
}

// ErrorCode is the stable code sent to websocket clients
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "room_expired"
	case errors.Is(err, ErrNotFound):
		return "room_not_found"
	case errors.Is(err, ErrFull):
		return "room_full"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "internal"
	}
}

func identity(r *http.Request) (auth.Identity, error) {
	id, ok := auth.GetIdentity(r.Context())
	if !ok {
		return auth.Identity{}, httputil.Unauthorized("Unauthorized")
	}
	return id, nil
}

// HandleCreateRoom creates a room owned by the caller
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	req := new(CreateRoomRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	h.log.Debug("room creation request received",
		"creator_id", id.UserID,
		"room_type", req.Type,
		"time_limit", req.TimeLimit)

	room, err := h.svc.CreateRoom(r.Context(), id, *req)
	if err != nil {
		return HTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusCreated, CreateRoomResponse{
		AccessKey: room.AccessKey,
		Room:      room,
	})
}

// HandleGetRoom returns room details with counts
func (h *Handler) HandleGetRoom(w http.ResponseWriter, r *http.Request) error {
	key, err := KeyParam(r)
	if err != nil {
		return err
	}

	room, err := h.svc.GetRoom(r.Context(), key)
	if err != nil {
		return HTTPError(err)
	}

	count, err := h.svc.MessageCount(r.Context(), key)
	if err != nil {
		return HTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, RoomResponse{
		Room:                room,
		CurrentParticipants: len(room.Participants),
		MessageCount:        count,
	})
}

// HandleGetMessages returns the latest messages, oldest first
func (h *Handler) HandleGetMessages(w http.ResponseWriter, r *http.Request) error {
	key, err := KeyParam(r)
	if err != nil {
		return err
	}

	limit := httputil.QueryInt(r, "limit", defaultHistoryLimit, maxHistoryLimit)

	msgs, err := h.svc.History(r.Context(), key, limit)
	if err != nil {
		return HTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, message.MessagesResponse{
		Messages: msgs,
		Count:    len(msgs),
	})
}

// HandleDeleteRoom deletes the room and its messages, creator only
func (h *Handler) HandleDeleteRoom(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}
	key, err := KeyParam(r)
	if err != nil {
		return err
	}

	if err := h.svc.DeleteRoom(r.Context(), key, id.UserID); err != nil {
		return HTTPError(err)
	}
	h.svc.AnnounceDeleted(key)

	h.log.Info("room deleted", "room_key", key, "user_id", id.UserID)

	return httputil.RespondJSON(w, http.StatusOK, map[string]string{
		"message":  "Room and all associated messages deleted successfully",
		"room_key": key,
	})
}

// HandleExtendTimer moves the room deadline, creator only
func (h *Handler) HandleExtendTimer(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}
	key, err := KeyParam(r)
	if err != nil {
		return err
	}

	req := new(ExtendTimerRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}
	if req.AdditionalMinutes <= 0 {
		return httputil.BadRequest("Invalid time extension value")
	}

	room, err := h.svc.ExtendTimer(r.Context(), key, id.UserID, req.AdditionalMinutes)
	if err != nil {
		return HTTPError(err)
	}
	h.svc.AnnounceTimer(room, req.AdditionalMinutes)

	return httputil.RespondJSON(w, http.StatusOK, ExtendTimerResponse{
		Message:   fmt.Sprintf("Room timer extended by %d minutes", req.AdditionalMinutes),
		ExpiresAt: room.ExpiresAt,
		TimeLimit: room.TimeLimit,
	})
}

func (h *Handler) HandleCreatedRooms(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	rooms, err := h.svc.CreatedRooms(r.Context(), id.UserID)
	if err != nil {
		return HTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, RoomsResponse[CreatedSummary]{Rooms: rooms, Count: len(rooms)})
}

func (h *Handler) HandleJoinedRooms(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	rooms, err := h.svc.JoinedRooms(r.Context(), id.UserID)
	if err != nil {
		return HTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, RoomsResponse[JoinedSummary]{Rooms: rooms, Count: len(rooms)})
}
