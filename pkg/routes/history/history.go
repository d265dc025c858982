package history

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/history"
)

type Handler struct {
	consolidate *history.ConsolidateSyncHistoryService
	clean       *history.CleanConsolidatedSyncHistoryService
	query       *history.SyncHistoryQueryService
}

func NewHandler(consolidate *history.ConsolidateSyncHistoryService, clean *history.CleanConsolidatedSyncHistoryService, query *history.SyncHistoryQueryService) *Handler {
	return &Handler{consolidate: consolidate, clean: clean, query: query}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/consolidate", h.Consolidate)
	g.POST("/clean", h.Clean)
	g.GET("/:apiKey", h.List)
}

// List returns the consolidated history of an account, optionally for
// some target ids only
// GET /history/:apiKey?target_id=1&target_id=2
func (h *Handler) List(c echo.Context) error {
	var targetIDs []int64
	if err := echo.QueryParamsBinder(c).Int64s("target_id", &targetIDs).BindError(); err != nil {
		return apperrors.NewInvalidParameterError("target_id", c.QueryParams()["target_id"])
	}

	records, err := h.query.Execute(c.Request().Context(), c.Param("apiKey"), targetIDs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

// Consolidate folds the sync history into one row per record and day
// POST /history/consolidate
func (h *Handler) Consolidate(c echo.Context) error {
	summary, err := h.consolidate.Execute(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

// Clean removes consolidated history past the retention period
// POST /history/clean
func (h *Handler) Clean(c echo.Context) error {
	summary, err := h.clean.Execute(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
