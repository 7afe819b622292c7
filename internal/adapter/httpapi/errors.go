package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"myblog/internal/dbsession"
	"myblog/internal/shared"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// classify приводит ошибки слоя БД к видам shared.
func classify(err error) error {
	switch {
	case errors.Is(err, dbsession.ErrConnectFailed):
		return shared.MarkKind(err, shared.KindDependencyFailure)
	case errors.Is(err, dbsession.ErrCommitFailed), errors.Is(err, dbsession.ErrRollbackOnly):
		return shared.MarkKind(err, shared.KindInternal)
	default:
		return err
	}
}

// statusOf возвращает HTTP-статус для вида ошибки.
func statusOf(kind shared.Kind) int {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	case shared.KindDependencyFailure:
		return http.StatusServiceUnavailable
	case shared.KindCanceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает JSON-ошибкой. Текст внутренних ошибок клиенту не показывается.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	err = classify(err)
	kind := shared.KindOf(err)
	status := statusOf(kind)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()), slog.String("kind", kind.String()), slog.Any("err", err))
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, errorBody{Error: msg, Kind: kind.String()})
}
