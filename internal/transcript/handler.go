package transcript

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/echonet/internal/auth"
	"github.com/rx3lixir/echonet/internal/room"
	"github.com/rx3lixir/echonet/pkg/httputil"
)

type Handler struct {
	exporter *Exporter
	log      *slog.Logger
}

func NewHandler(exporter *Exporter, log *slog.Logger) *Handler {
	return &Handler{exporter: exporter, log: log}
}

// RegisterRoutes mounts under the rooms router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/{key}/transcript", httputil.Handler(h.HandleExport, h.log))
}

// HandleExport exports the room transcript, creator only
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) error {
	id, ok := auth.GetIdentity(r.Context())
	if !ok {
		return httputil.Unauthorized("Unauthorized")
	}
	key, err := room.KeyParam(r)
	if err != nil {
		return err
	}

	res, err := h.exporter.Export(r.Context(), key, id.UserID)
	if err != nil {
		return room.HTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusCreated, res)
}
