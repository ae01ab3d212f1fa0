package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/definitions"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/processmodels"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	subjectContextKey        = "bpmnstore_subject"
	defaultHeartbeatInterval = 15 * time.Second
	queryOverwrite           = "overwrite"
)

var (
	errMissingDefinitionStore   = errors.New("definition store dependency required")
	errMissingProcessModelStore = errors.New("process model store dependency required")
	errInvalidAuthorization     = errors.New("authorization header missing or invalid")
)

// DefinitionStore is the versioned definition repository exposed over HTTP.
type DefinitionStore interface {
	Persist(ctx context.Context, name definitions.Name, xml string, overwriteExisting bool) (definitions.PersistOutcome, error)
	GetCurrent(ctx context.Context, name definitions.Name) (definitions.ProcessDefinition, error)
	GetHistory(ctx context.Context, name definitions.Name) ([]definitions.ProcessDefinition, error)
	GetByHash(ctx context.Context, hash definitions.Hash) (definitions.ProcessDefinition, error)
	ListCurrent(ctx context.Context) ([]definitions.ProcessDefinition, error)
	DeleteByName(ctx context.Context, name definitions.Name) error
}

// ProcessModelStore is the process model repository exposed over HTTP.
type ProcessModelStore interface {
	Create(ctx context.Context, id processmodels.ID, xml string) (processmodels.Projection, error)
	Get(ctx context.Context, id processmodels.ID) (processmodels.Projection, error)
	List(ctx context.Context) ([]processmodels.Projection, error)
}

// TokenValidator authenticates bearer tokens on mutating routes.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP handler. Tokens is optional; without it mutating routes are open.
type Dependencies struct {
	Definitions       DefinitionStore
	ProcessModels     ProcessModelStore
	Tokens            TokenValidator
	Realtime          *RevisionDispatcher
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Definitions == nil {
		return nil, errMissingDefinitionStore
	}
	if deps.ProcessModels == nil {
		return nil, errMissingProcessModelStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRevisionDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		definitions:       deps.Definitions,
		processModels:     deps.ProcessModels,
		tokens:            deps.Tokens,
		realtime:          realtime,
		heartbeatInterval: heartbeat,
		clock:             clock,
		logger:            logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/definitions", handler.handleListDefinitions)
	router.GET("/definitions/:name", handler.handleGetDefinition)
	router.GET("/definitions/:name/history", handler.handleDefinitionHistory)
	router.GET("/definitions/:name/events", handler.handleDefinitionEvents)
	router.GET("/hashes/:hash", handler.handleGetByHash)
	router.GET("/process-models", handler.handleListProcessModels)
	router.GET("/process-models/:id", handler.handleGetProcessModel)

	protected := router.Group("/")
	if handler.tokens != nil {
		protected.Use(handler.authorizeRequest)
	}
	protected.PUT("/definitions/:name", handler.handlePersistDefinition)
	protected.DELETE("/definitions/:name", handler.handleDeleteDefinition)
	protected.POST("/process-models", handler.handleCreateProcessModel)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	})
}

type httpHandler struct {
	definitions       DefinitionStore
	processModels     ProcessModelStore
	tokens            TokenValidator
	realtime          *RevisionDispatcher
	heartbeatInterval time.Duration
	clock             func() time.Time
	logger            *zap.Logger
}

type persistResponsePayload struct {
	Result     string                        `json:"result"`
	Definition definitions.ProcessDefinition `json:"definition"`
}

type createProcessModelPayload struct {
	ID  string `json:"id"`
	XML string `json:"xml"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handlePersistDefinition(c *gin.Context) {
	name, ok := h.bindName(c)
	if !ok {
		return
	}
	overwrite := true
	if raw := c.Query(queryOverwrite); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(c, codeInvalidOverwrite, "overwrite must be a boolean")
			return
		}
		overwrite = parsed
	}
	body, err := c.GetRawData()
	if err != nil {
		writeBadRequest(c, codeInvalidBody, "request body unreadable")
		return
	}

	outcome, err := h.definitions.Persist(c.Request.Context(), name, string(body), overwrite)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.publish(RevisionMessage{
		Name:      name.String(),
		EventType: RealtimeEventDefinitionChanged,
		Action:    RevisionActionPersisted,
		Result:    string(outcome.Result),
		Hash:      outcome.Definition.Hash,
		Timestamp: h.clock().UTC(),
	})

	status := http.StatusCreated
	if outcome.Result == definitions.PersistResultUnchanged {
		status = http.StatusOK
	}
	c.JSON(status, persistResponsePayload{
		Result:     string(outcome.Result),
		Definition: outcome.Definition,
	})
}

func (h *httpHandler) handleListDefinitions(c *gin.Context) {
	current, err := h.definitions.ListCurrent(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

func (h *httpHandler) handleGetDefinition(c *gin.Context) {
	name, ok := h.bindName(c)
	if !ok {
		return
	}
	current, err := h.definitions.GetCurrent(c.Request.Context(), name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

func (h *httpHandler) handleDefinitionHistory(c *gin.Context) {
	name, ok := h.bindName(c)
	if !ok {
		return
	}
	history, err := h.definitions.GetHistory(c.Request.Context(), name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *httpHandler) handleGetByHash(c *gin.Context) {
	hash, err := definitions.NewHash(c.Param("hash"))
	if err != nil {
		writeBadRequest(c, codeInvalidHash, err.Error())
		return
	}
	match, err := h.definitions.GetByHash(c.Request.Context(), hash)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, match)
}

func (h *httpHandler) handleDeleteDefinition(c *gin.Context) {
	name, ok := h.bindName(c)
	if !ok {
		return
	}
	if err := h.definitions.DeleteByName(c.Request.Context(), name); err != nil {
		h.writeError(c, err)
		return
	}
	h.publish(RevisionMessage{
		Name:      name.String(),
		EventType: RealtimeEventDefinitionChanged,
		Action:    RevisionActionDeleted,
		Timestamp: h.clock().UTC(),
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleCreateProcessModel(c *gin.Context) {
	var request createProcessModelPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		writeBadRequest(c, codeInvalidBody, "invalid_request")
		return
	}
	id, err := processmodels.NewID(request.ID)
	if err != nil {
		writeBadRequest(c, codeInvalidProcessModelID, err.Error())
		return
	}
	created, err := h.processModels.Create(c.Request.Context(), id, request.XML)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleListProcessModels(c *gin.Context) {
	models, err := h.processModels.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models)
}

func (h *httpHandler) handleGetProcessModel(c *gin.Context) {
	id, err := processmodels.NewID(c.Param("id"))
	if err != nil {
		writeBadRequest(c, codeInvalidProcessModelID, err.Error())
		return
	}
	model, err := h.processModels.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model)
}

func (h *httpHandler) publish(message RevisionMessage) {
	if dropped := h.realtime.Publish(message); dropped > 0 {
		h.logger.Debug("revision event dropped for slow subscribers",
			zap.String("definition_name", message.Name),
			zap.Int("dropped", dropped))
	}
}

func (h *httpHandler) bindName(c *gin.Context) (definitions.Name, bool) {
	name, err := definitions.NewName(c.Param("name"))
	if err != nil {
		writeBadRequest(c, codeInvalidName, err.Error())
		return "", false
	}
	return name, true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error(), "code": codeUnauthorized})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error(), "code": codeUnauthorized})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": codeUnauthorized})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}
