// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/app/middleware"
	businessflow "github.com/covxx/pelattahub-sub002/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/sirupsen/logrus"
)

const defaultRequestTimeout = 30 * time.Second

func ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate runs struct validation and writes the 400 response itself. The returned
// bool is false when a response was already written.
func validate(c fiber.Ctx, v *validator.Validate, req any) (bool, error) {
	if err := v.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if !errors.As(err, &validationErrors) {
			return false, ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
		}
		details := make([]string, 0, len(validationErrors))
		for _, fe := range validationErrors {
			details = append(details, getValidationErrorMessage(fe))
		}
		return false, ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", details)
	}
	return true, nil
}

// flowErrorStatus maps a business flow error onto an HTTP status
func flowErrorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case businessflow.IsValidation(err), errors.Is(err, businessflow.ErrSpreadsheetFormat):
		return fiber.StatusBadRequest
	case businessflow.IsProductNotFound(err),
		businessflow.IsLotNotFound(err),
		businessflow.IsReceiptNotFound(err),
		errors.Is(err, businessflow.ErrUnknownSequenceKey):
		return fiber.StatusNotFound
	case errors.Is(err, businessflow.ErrProductInactive),
		errors.Is(err, businessflow.ErrProductNeedsGTIN):
		return fiber.StatusUnprocessableEntity
	case businessflow.IsRepairInProgress(err),
		errors.Is(err, businessflow.ErrRepairLockLost),
		businessflow.IsConcurrencyConflict(err),
		businessflow.IsExhaustedRetry(err),
		errors.Is(err, businessflow.ErrGTINAlreadyAssigned):
		return fiber.StatusConflict
	case businessflow.IsPrintQueueOffline(err):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, errors.ErrUnsupported):
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}

// flowError writes the response for a failed flow call. Business errors keep their
// code and message; anything else is reported with the fallback.
func flowError(c fiber.Ctx, logger logrus.FieldLogger, err error, fallbackMessage, fallbackCode string) error {
	status := flowErrorStatus(err)
	if status >= fiber.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"path":       c.Path(),
			"request_id": requestid.FromContext(c),
		}).Error(fallbackMessage)
	}

	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		if status == fiber.StatusInternalServerError {
			return ErrorResponse(c, status, be.Message, be.Code, nil)
		}
		return ErrorResponse(c, status, be.Message, be.Code, be.Error())
	}
	return ErrorResponse(c, status, fallbackMessage, fallbackCode, nil)
}

// clientMetadata collects the audit metadata of the current request
func clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if actor, ok := middleware.GetActorFromContext(c); ok {
		metadata.SetActor(actor)
	}
	if rid := requestid.FromContext(c); rid != "" {
		metadata.SetRequestID(rid)
	} else if rid := c.Get(businessflow.RequestIDKey); rid != "" {
		metadata.SetRequestID(rid)
	}
	return metadata
}

// pathParam copies a route parameter out of the request buffer, which fiber reuses
// once the handler returns
func pathParam(c fiber.Ctx, name string) string {
	return strings.Clone(c.Params(name))
}

func requestContext(c fiber.Ctx, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(c.Context(), timeout)
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "datetime":
		return fmt.Sprintf("%s must match the layout %s", err.Field(), err.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
