package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/verdantworks/fieldsync/internal/auth"
	"github.com/verdantworks/fieldsync/internal/notify"
	"github.com/verdantworks/fieldsync/internal/sync"
	"github.com/verdantworks/fieldsync/internal/tenant"
)

const (
	tenantIDContextKey = "fieldsync_tenant_id"
	actorContextKey    = "fieldsync_actor"
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingTenantService = errors.New("tenant service dependency required")
	errMissingSyncService   = errors.New("sync service dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	Validate(token string) (auth.AccessClaims, error)
}

// MembershipResolver confirms the user's active membership in the tenant.
type MembershipResolver interface {
	Resolve(tenantID, userID string) (tenant.Membership, error)
}

// Dependencies wires the HTTP surface to its collaborators.
type Dependencies struct {
	TokenManager  TokenValidator
	TenantService MembershipResolver
	SyncService   *sync.Service
	Notifier      *notify.ConflictNotifier
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router serving the sync protocol.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.TenantService == nil {
		return nil, errMissingTenantService
	}
	if deps.SyncService == nil {
		return nil, errMissingSyncService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:      deps.TokenManager,
		memberships: deps.TenantService,
		syncService: deps.SyncService,
		notifier:    deps.Notifier,
		logger:      logger,
	}

	router.GET("/healthz", handler.handleHealthz)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/sync/push", handler.handleSyncPush)
	protected.GET("/sync/pull", handler.handleSyncPull)
	protected.GET("/conflicts", handler.handleConflicts)
	protected.GET("/audit", handler.handleAudit)

	return router, nil
}

type httpHandler struct {
	tokens      TokenValidator
	memberships MembershipResolver
	syncService *sync.Service
	notifier    *notify.ConflictNotifier
	logger      *zap.Logger
}

func (h *httpHandler) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorizeRequest validates the bearer token and confirms an active tenant
// membership before any protocol handler runs.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}

	claims, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	membership, err := h.memberships.Resolve(claims.TenantID, claims.Subject)
	if err != nil {
		if errors.Is(err, tenant.ErrNoActiveMembership) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "no_active_membership"})
			return
		}
		h.logger.Error("membership resolution failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "membership_lookup_failed"})
		return
	}

	displayName := claims.DisplayName
	if displayName == "" {
		displayName = membership.DisplayName
	}

	c.Set(tenantIDContextKey, claims.TenantID)
	c.Set(actorContextKey, sync.ResolveActor(displayName, claims.Subject))
	c.Next()
}

type pushChangePayload struct {
	Op              string         `json:"op"`
	Entity          string         `json:"entity"`
	EntityID        string         `json:"entityId"`
	ClientUpdatedAt string         `json:"clientUpdatedAt"`
	Payload         map[string]any `json:"payload"`
}

type pushRequestPayload struct {
	Changes []pushChangePayload `json:"changes"`
}

type conflictPayload struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entityId"`
	Summary  string `json:"summary"`
}

type pushResponsePayload struct {
	ServerTime string            `json:"serverTime"`
	Applied    []string          `json:"applied"`
	Conflicts  []conflictPayload `json:"conflicts"`
}

func (h *httpHandler) handleSyncPush(c *gin.Context) {
	tenantID, actor, ok := h.requestScope(c)
	if !ok {
		return
	}

	var request pushRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	// Malformed individual changes must not fail the batch: unparseable
	// ops or timestamps map to zero values the engine skips.
	changes := make([]sync.Change, 0, len(request.Changes))
	for _, payload := range request.Changes {
		op, _ := sync.ParseOperation(payload.Op)
		timestamp, _ := parseTimestamp(payload.ClientUpdatedAt)
		changes = append(changes, sync.Change{
			Op:        op,
			Kind:      payload.Entity,
			EntityID:  payload.EntityID,
			Timestamp: timestamp,
			Payload:   payload.Payload,
		})
	}

	result, err := h.syncService.Push(c.Request.Context(), tenantID, actor, changes)
	if err != nil {
		h.logger.Error("push failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "push_failed"})
		return
	}

	if h.notifier != nil && len(result.Conflicts) > 0 {
		h.notifier.NotifyConflicts(c.Request.Context(), tenantID.String(), result.Conflicts)
	}

	response := pushResponsePayload{
		ServerTime: formatTimestamp(result.ServerTime),
		Applied:    result.Applied,
		Conflicts:  make([]conflictPayload, 0, len(result.Conflicts)),
	}
	for _, conflict := range result.Conflicts {
		response.Conflicts = append(response.Conflicts, conflictPayload{
			Entity:   conflict.Kind,
			EntityID: conflict.EntityID,
			Summary:  conflict.Summary,
		})
	}

	c.JSON(http.StatusOK, response)
}

type pullChangePayload struct {
	Op        string         `json:"op"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entityId"`
	UpdatedAt string         `json:"updatedAt"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type pullResponsePayload struct {
	ServerTime string              `json:"serverTime"`
	Changes    []pullChangePayload `json:"changes"`
	NextCursor string              `json:"nextCursor"`
}

func (h *httpHandler) handleSyncPull(c *gin.Context) {
	tenantID, _, ok := h.requestScope(c)
	if !ok {
		return
	}

	since, err := parseTimestamp(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_since"})
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
	}

	result, err := h.syncService.Pull(c.Request.Context(), tenantID, since, limit)
	if err != nil {
		h.logger.Error("pull failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pull_failed"})
		return
	}

	response := pullResponsePayload{
		ServerTime: formatTimestamp(result.ServerTime),
		Changes:    make([]pullChangePayload, 0, len(result.Changes)),
		NextCursor: formatTimestamp(result.NextCursor),
	}
	for _, change := range result.Changes {
		response.Changes = append(response.Changes, pullChangePayload{
			Op:        string(change.Op),
			Entity:    change.Kind,
			EntityID:  change.EntityID,
			UpdatedAt: formatTimestamp(change.Timestamp),
			Payload:   change.Payload,
		})
	}

	c.JSON(http.StatusOK, response)
}

type conflictRecordPayload struct {
	Entity    string `json:"entity"`
	EntityID  string `json:"entityId"`
	Summary   string `json:"summary"`
	Fields    string `json:"fields,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func (h *httpHandler) handleConflicts(c *gin.Context) {
	tenantID, _, ok := h.requestScope(c)
	if !ok {
		return
	}

	since, limit, ok := h.historyWindow(c)
	if !ok {
		return
	}

	records, err := h.syncService.ListConflicts(c.Request.Context(), tenantID, since, limit)
	if err != nil {
		h.logger.Error("conflict listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "conflicts_failed"})
		return
	}

	payload := make([]conflictRecordPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, conflictRecordPayload{
			Entity:    record.Kind,
			EntityID:  record.EntityID,
			Summary:   record.Summary,
			Fields:    record.FieldsJSON,
			CreatedAt: formatTimestamp(time.UnixMilli(record.CreatedAtMs).UTC()),
		})
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": payload})
}

type auditRecordPayload struct {
	Entity    string `json:"entity"`
	EntityID  string `json:"entityId"`
	Action    string `json:"action"`
	Actor     string `json:"actor"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"createdAt"`
}

func (h *httpHandler) handleAudit(c *gin.Context) {
	tenantID, _, ok := h.requestScope(c)
	if !ok {
		return
	}

	since, limit, ok := h.historyWindow(c)
	if !ok {
		return
	}

	records, err := h.syncService.ListAudit(c.Request.Context(), tenantID, since, limit)
	if err != nil {
		h.logger.Error("audit listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "audit_failed"})
		return
	}

	payload := make([]auditRecordPayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, auditRecordPayload{
			Entity:    record.Kind,
			EntityID:  record.EntityID,
			Action:    string(record.Action),
			Actor:     record.Actor,
			Summary:   record.Summary,
			CreatedAt: formatTimestamp(time.UnixMilli(record.CreatedAtMs).UTC()),
		})
	}
	c.JSON(http.StatusOK, gin.H{"audit": payload})
}

// requestScope returns the tenant and actor resolved by the middleware.
func (h *httpHandler) requestScope(c *gin.Context) (sync.TenantID, string, bool) {
	tenantID, err := sync.NewTenantID(c.GetString(tenantIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", "", false
	}
	return tenantID, c.GetString(actorContextKey), true
}

func (h *httpHandler) historyWindow(c *gin.Context) (time.Time, int, bool) {
	since, err := parseTimestamp(c.Query("since"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_since"})
		return time.Time{}, 0, false
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return time.Time{}, 0, false
		}
	}
	return since, limit, true
}

// parseTimestamp accepts RFC3339 with or without sub-second precision. The
// empty string maps to the epoch so a first pull starts from the beginning.
func parseTimestamp(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func formatTimestamp(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}
