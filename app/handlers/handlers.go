// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/esim-fulfillment/app/dto"
	businessflow "github.com/amirphl/esim-fulfillment/business_flow"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
)

const defaultRequestTimeout = 30 * time.Second

// baseHandler carries the response envelope helpers shared by every handler
type baseHandler struct {
	validator *validator.Validate
}

func newBaseHandler() baseHandler {
	return baseHandler{validator: validator.New()}
}

// ErrorResponse standard JSON error
func (h *baseHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

// SuccessResponse standard JSON success
func (h *baseHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// validate reports whether req is valid. When it is not, a 400 has already been written
// and the returned error is the write error, if any.
func (h *baseHandler) validate(c fiber.Ctx, req any) (bool, error) {
	err := h.validator.Struct(req)
	if err == nil {
		return true, nil
	}
	var validationErrors []string
	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrors {
			validationErrors = append(validationErrors, getValidationErrorMessage(fe))
		}
	} else {
		validationErrors = append(validationErrors, err.Error())
	}
	return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
}

// createRequestContext builds the context passed to business flows. The caller must call cancel.
func (h *baseHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.createRequestContextWithTimeout(c, endpoint, defaultRequestTimeout)
}

func (h *baseHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestID(c))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	return ctx, cancel
}

// clientMetadata collects caller details for audit logs
func (h *baseHandler) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(requestID(c))
	if admin, ok := c.Locals(utils.AdminKey).(string); ok && admin != "" {
		metadata.SetActor("admin:" + admin)
	}
	return metadata
}

func requestID(c fiber.Ctx) string {
	if id := requestid.FromContext(c); id != "" {
		return id
	}
	return c.Get("X-Request-ID")
}

func parseIDParam(c fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return uint(id), nil
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "len":
		return err.Field() + " must be exactly " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
