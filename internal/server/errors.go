package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/definitions"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/processmodels"
	"github.com/MarcoPoloResearchLab/bpmnstore/backend/internal/serviceerror"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	codeInternal              = "internal"
	codeUnauthorized          = "http.unauthorized"
	codeInvalidName           = "http.invalid_name"
	codeInvalidHash           = "http.invalid_hash"
	codeInvalidBody           = "http.invalid_body"
	codeInvalidOverwrite      = "http.invalid_overwrite"
	codeInvalidProcessModelID = "http.invalid_process_model_id"
)

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, definitions.ErrNotFound), errors.Is(err, processmodels.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, definitions.ErrConflict), errors.Is(err, processmodels.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, definitions.ErrInvalidXML),
		errors.Is(err, definitions.ErrInvalidName),
		errors.Is(err, definitions.ErrInvalidHash),
		errors.Is(err, processmodels.ErrInvalidXML),
		errors.Is(err, processmodels.ErrInvalidID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps store errors onto HTTP statuses. Internal failures never expose their cause.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	status := statusForError(err)
	code, ok := serviceerror.CodeOf(err)
	if !ok {
		code = codeInternal
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
		c.JSON(status, errorPayload{Error: "internal error", Code: code})
		return
	}
	c.JSON(status, errorPayload{Error: err.Error(), Code: code})
}

func writeBadRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, errorPayload{Error: message, Code: code})
}
