package discovery

import (
	"net/http"
	"slices"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/klevu/module-m2-indexing-sub002/pkg/discovery"
	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

// EntityOrchestratorFactory builds an orchestrator over the given providers.
type EntityOrchestratorFactory func(providers []discovery.EntityProvider) (*discovery.EntityOrchestrator, error)

type AttributeOrchestratorFactory func(providers []discovery.AttributeProvider) (*discovery.AttributeOrchestrator, error)

// Handler runs discovery passes over snapshots pushed in the request body.
type Handler struct {
	newEntity    EntityOrchestratorFactory
	newAttribute AttributeOrchestratorFactory
	logger       ectologger.Logger
}

func NewHandler(newEntity EntityOrchestratorFactory, newAttribute AttributeOrchestratorFactory, logger ectologger.Logger) *Handler {
	return &Handler{newEntity: newEntity, newAttribute: newAttribute, logger: logger}
}

func (h *Handler) Register(g *echo.Group) {
	g.POST("/entities", h.DiscoverEntities)
	g.POST("/attributes", h.DiscoverAttributes)
}

// EntityDiscoveryRequest carries one snapshot per entity type. An account
// listed with no entities, or named in api_keys but missing from a
// snapshot, has no source entities.
type EntityDiscoveryRequest struct {
	discovery.Request
	Snapshots map[string]models.EntitySnapshot `json:"snapshots"`
}

type AttributeDiscoveryRequest struct {
	discovery.Request
	Snapshots map[string]models.AttributeSnapshot `json:"snapshots"`
}

// DiscoverEntities reconciles the entity mirror with the pushed snapshots
// POST /discovery/entities
func (h *Handler) DiscoverEntities(c echo.Context) error {
	ctx := c.Request().Context()

	var req EntityDiscoveryRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.NewBadRequestError("invalid request body")
	}
	if len(req.Snapshots) == 0 {
		return apperrors.NewBadRequestError("at least one entity snapshot is required")
	}

	providers := make([]discovery.EntityProvider, 0, len(req.Snapshots))
	for _, entityType := range sortedKeys(req.Snapshots) {
		providers = append(providers, discovery.NewSnapshotEntityProvider(entityType, req.Snapshots[entityType]))
	}
	o, err := h.newEntity(providers)
	if err != nil {
		return apperrors.NewBadRequestError("%s", err.Error())
	}

	result := o.Execute(ctx, req.Request)
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"is_success": result.IsSuccess,
		"processed":  len(result.ProcessedIDs),
	}).Info("Entity discovery finished")
	return c.JSON(statusOf(result), result)
}

// DiscoverAttributes reconciles the attribute mirror with the pushed
// snapshots
// POST /discovery/attributes
func (h *Handler) DiscoverAttributes(c echo.Context) error {
	ctx := c.Request().Context()

	var req AttributeDiscoveryRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.NewBadRequestError("invalid request body")
	}
	if len(req.Snapshots) == 0 {
		return apperrors.NewBadRequestError("at least one attribute snapshot is required")
	}

	providers := make([]discovery.AttributeProvider, 0, len(req.Snapshots))
	for _, attributeType := range sortedKeys(req.Snapshots) {
		providers = append(providers, discovery.NewSnapshotAttributeProvider(attributeType, req.Snapshots[attributeType]))
	}
	o, err := h.newAttribute(providers)
	if err != nil {
		return apperrors.NewBadRequestError("%s", err.Error())
	}

	result := o.Execute(ctx, req.Request)
	h.logger.WithContext(ctx).WithFields(map[string]any{
		"is_success": result.IsSuccess,
		"processed":  len(result.ProcessedIDs),
	}).Info("Attribute discovery finished")
	return c.JSON(statusOf(result), result)
}

// statusOf answers 207 when the pass ran but reported failures.
func statusOf(result *models.DiscoveryResult) int {
	if result.IsSuccess {
		return http.StatusOK
	}
	return http.StatusMultiStatus
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
