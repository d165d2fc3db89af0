package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/overlay"
	"github.com/joeblew999/plat-survey/internal/service"
)

// toHumaError maps domain errors to HTTP problems.
func toHumaError(err error) error {
	var fe *overlay.FetchError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrPointNotFound),
		errors.Is(err, service.ErrSourceNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrInvalidTaskID),
		errors.Is(err, service.ErrInvalidSourceName):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, overlay.ErrSuperseded):
		return huma.Error409Conflict("a newer load replaced this one")
	case errors.Is(err, overlay.ErrNoFetcher):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.As(err, &fe):
		return huma.Error502BadGateway(err.Error(), &huma.ErrorDetail{
			Location: "body.url",
			Message:  "retryable",
			Value:    fe.Retryable(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	}
	if kind := kmz.ErrorKind(err); kind != "" {
		return huma.Error422UnprocessableEntity(err.Error(), &huma.ErrorDetail{
			Location: "body",
			Message:  kind,
		})
	}
	return huma.Error500InternalServerError(err.Error())
}
