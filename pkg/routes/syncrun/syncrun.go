package syncrun

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/indexsync"
)

// Handler runs sync orchestrations on demand.
type Handler struct {
	entities   indexsync.Runner
	attributes indexsync.Runner
	logger     ectologger.Logger
}

func NewHandler(entities, attributes indexsync.Runner, logger ectologger.Logger) *Handler {
	return &Handler{entities: entities, attributes: attributes, logger: logger}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/entities", h.SyncEntities)
	g.POST("/attributes", h.SyncAttributes)
}

// SyncEntities pushes pending entity rows
// POST /sync/entities
func (h *Handler) SyncEntities(c echo.Context) error {
	return h.run(c, "entity", h.entities)
}

// SyncAttributes pushes pending attribute rows
// POST /sync/attributes
func (h *Handler) SyncAttributes(c echo.Context) error {
	return h.run(c, "attribute", h.attributes)
}

func (h *Handler) run(c echo.Context, kind string, runner indexsync.Runner) error {
	ctx := c.Request().Context()

	var req indexsync.SyncRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return apperrors.NewBadRequestError("invalid request body")
		}
	}

	report := indexsync.Collect(runner.Execute(ctx, req))
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":    kind,
		"batches": len(report.Batches),
		"totals":  report.Totals,
	}).Info("Sync finished")
	return c.JSON(http.StatusOK, report)
}
