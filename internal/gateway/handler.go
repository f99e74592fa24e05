// Package gateway exposes the actions router over HTTP.
package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-cms/odyssey-cms/internal/actions"
	"github.com/odyssey-cms/odyssey-cms/internal/broker"
	"github.com/odyssey-cms/odyssey-cms/internal/entity"
	"github.com/odyssey-cms/odyssey-cms/internal/platform/httpx"
	"github.com/odyssey-cms/odyssey-cms/internal/shared"
)

// listParams are copied from the query string into list shaped calls.
var listParams = []string{"page", "pageSize", "sort", "query", "populate", "queryByPopulation", "limit", "offset"}

// Handler translates HTTP requests into actions router calls.
type Handler struct {
	broker *broker.Broker
	logger *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(b *broker.Broker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{broker: b, logger: logger}
}

// MountRoutes registers the collection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{collectionName}", func(r chi.Router) {
		r.Get("/", h.handle(entity.ActionList, false))
		r.Post("/", h.handle(entity.ActionCreate, true))
		r.Get("/count", h.handle(entity.ActionCount, false))
		r.Get("/{id}", h.handle(entity.ActionGet, false))
		r.Put("/{id}", h.handle(entity.ActionUpdate, true))
		r.Delete("/{id}", h.handle(entity.ActionRemove, false))
	})
}

func (h *Handler) handle(action string, withBody bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := map[string]any{}
		if withBody {
			if err := httpx.DecodeJSON(r, &params); err != nil && !errors.Is(err, io.EOF) {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "body must be a JSON object")
				return
			}
			if params == nil {
				params = map[string]any{}
			}
		}
		query := r.URL.Query()
		for _, key := range listParams {
			if v := query.Get(key); v != "" {
				params[key] = v
			}
		}
		params["collectionName"] = chi.URLParam(r, "collectionName")
		if lang := query.Get("language"); lang != "" {
			params["language"] = lang
		}
		if id := chi.URLParam(r, "id"); id != "" {
			params["id"] = id
		}

		meta := &broker.Meta{
			CalledByAPI:  true,
			DecodedToken: shared.ClaimsFromContext(r.Context()),
		}
		res, err := h.broker.Call(r.Context(), actions.ServiceName+"."+action, params, meta)
		if err != nil {
			h.logger.Info("action failed",
				slog.String("action", action),
				slog.String("collection", chi.URLParam(r, "collectionName")),
				slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		status := http.StatusOK
		if action == entity.ActionCreate {
			status = http.StatusCreated
		}
		httpx.JSON(w, status, res)
	}
}
