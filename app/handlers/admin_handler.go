package handlers

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/app/services"
	businessflow "github.com/amirphl/esim-fulfillment/business_flow"
	"github.com/gofiber/fiber/v3"
)

// AdminHandlerInterface defines the contract for the operator API
type AdminHandlerInterface interface {
	Login(c fiber.Ctx) error
	ListOrders(c fiber.Ctx) error
	GetOrder(c fiber.Ctx) error
	RetryOrder(c fiber.Ctx) error
	ConfirmDelivery(c fiber.Ctx) error
	ExportOrders(c fiber.Ctx) error
	ListFailures(c fiber.Ctx) error
}

// AdminHandler implements AdminHandlerInterface
type AdminHandler struct {
	baseHandler
	authFlow  businessflow.AdminAuthFlow
	orderFlow businessflow.AdminOrderFlow
}

func NewAdminHandler(authFlow businessflow.AdminAuthFlow, orderFlow businessflow.AdminOrderFlow) *AdminHandler {
	return &AdminHandler{
		baseHandler: newBaseHandler(),
		authFlow:    authFlow,
		orderFlow:   orderFlow,
	}
}

// Login authenticates the operator
// @Summary Admin login
// @Tags Admin Authentication
// @Accept json
// @Produce json
// @Param request body dto.AdminLoginRequest true "Admin credentials"
// @Success 200 {object} dto.APIResponse{data=dto.AdminLoginResponse} "Login successful"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 401 {object} dto.APIResponse "Invalid credentials"
// @Failure 503 {object} dto.APIResponse "Admin account not configured"
// @Router /api/v1/admin/login [post]
func (h *AdminHandler) Login(c fiber.Ctx) error {
	var req dto.AdminLoginRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/login")
	defer cancel()

	result, err := h.authFlow.Login(ctx, &req, h.clientMetadata(c))
	if err != nil {
		if businessflow.IsInvalidCredentials(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid username or password", "INVALID_CREDENTIALS", nil)
		}
		if businessflow.IsAdminNotConfigured(err) {
			return h.ErrorResponse(c, fiber.StatusServiceUnavailable, "Admin login is disabled", "ADMIN_NOT_CONFIGURED", nil)
		}
		log.Println("Admin login failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Login failed", "LOGIN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Login successful", result)
}

// ListOrders lists local orders, newest first
// @Summary Admin list orders
// @Tags Admin Orders
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(50)
// @Param status query string false "received, processing, completed, failed or invalid"
// @Param product_ref query int false "Storefront product id"
// @Param external_order_id query string false "Storefront invoice id"
// @Param unconfirmed query bool false "Only completed orders without delivery confirmation"
// @Param start_date query string false "created_at >= start_date (RFC3339)"
// @Param end_date query string false "created_at <= end_date (RFC3339)"
// @Success 200 {object} dto.APIResponse{data=dto.ListOrdersResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 401 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/orders [get]
func (h *AdminHandler) ListOrders(c fiber.Ctx) error {
	page, limit, err := parsePaging(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}
	filter, err := parseOrderFilter(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/orders")
	defer cancel()

	res, err := h.orderFlow.ListOrders(ctx, dto.ListOrdersRequest{Page: page, Limit: limit, Filter: filter})
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list orders", "LIST_ORDERS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Orders retrieved successfully", res)
}

// GetOrder returns an order with its provider order, units and audit trail
// @Summary Admin get order
// @Tags Admin Orders
// @Produce json
// @Param id path int true "Local order id"
// @Success 200 {object} dto.APIResponse{data=dto.OrderDetailResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/admin/orders/{id} [get]
func (h *AdminHandler) GetOrder(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid order id", "VALIDATION_ERROR", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/orders/:id")
	defer cancel()

	res, err := h.orderFlow.GetOrder(ctx, id)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to load order", "GET_ORDER_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Order retrieved successfully", res)
}

// RetryOrder re-enqueues a failed or stuck order
// @Summary Admin retry order
// @Tags Admin Orders
// @Produce json
// @Param id path int true "Local order id"
// @Success 202 {object} dto.APIResponse{data=dto.RetryOrderResponse}
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Order is completed or invalid"
// @Router /api/v1/admin/orders/{id}/retry [post]
func (h *AdminHandler) RetryOrder(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid order id", "VALIDATION_ERROR", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/orders/:id/retry")
	defer cancel()

	res, err := h.orderFlow.RetryOrder(ctx, id, h.clientMetadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to retry order", "RETRY_ORDER_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusAccepted, "Order enqueued for provisioning", res)
}

// ConfirmDelivery re-runs the storefront delivery confirmation of a completed order
// @Summary Admin confirm delivery
// @Tags Admin Orders
// @Produce json
// @Param id path int true "Local order id"
// @Success 200 {object} dto.APIResponse{data=dto.ConfirmDeliveryResponse}
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse "Order is not completed"
// @Failure 502 {object} dto.APIResponse "Storefront rejected the confirmation"
// @Router /api/v1/admin/orders/{id}/confirm [post]
func (h *AdminHandler) ConfirmDelivery(c fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid order id", "VALIDATION_ERROR", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/orders/:id/confirm")
	defer cancel()

	res, err := h.orderFlow.ConfirmDelivery(ctx, id, h.clientMetadata(c))
	if err != nil {
		if isProviderError(err) {
			log.Println("Admin confirm delivery failed", err)
			return h.ErrorResponse(c, fiber.StatusBadGateway, "Storefront did not confirm the delivery", "CONFIRM_DELIVERY_FAILED", err.Error())
		}
		return h.businessErrorResponse(c, err, "Failed to confirm delivery", "CONFIRM_DELIVERY_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Delivery confirmed", res)
}

// ExportOrders downloads the filtered orders as a spreadsheet
// @Summary Admin export orders
// @Tags Admin Orders
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Order status"
// @Param start_date query string false "created_at >= start_date (RFC3339)"
// @Param end_date query string false "created_at <= end_date (RFC3339)"
// @Success 200 {file} file
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/admin/orders/export [get]
func (h *AdminHandler) ExportOrders(c fiber.Ctx) error {
	filter, err := parseOrderFilter(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}

	ctx, cancel := h.createRequestContextWithTimeout(c, "/api/v1/admin/orders/export", 2*time.Minute)
	defer cancel()

	res, err := h.orderFlow.ExportOrders(ctx, filter, h.clientMetadata(c))
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to export orders", "EXPORT_ORDERS_FAILED")
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+res.Filename)
	c.Set("X-Export-Rows", strconv.Itoa(res.Rows))
	return c.Send(res.Content)
}

// ListFailures lists recorded pipeline failures, newest first
// @Summary Admin list failures
// @Tags Admin Orders
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Page size" default(50)
// @Param source query string false "storefront, provisioner, executor or delivery"
// @Param local_order_id query int false "Local order id"
// @Success 200 {object} dto.APIResponse{data=dto.ListFailuresResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/admin/failures [get]
func (h *AdminHandler) ListFailures(c fiber.Ctx) error {
	page, limit, err := parsePaging(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}
	req := dto.ListFailuresRequest{Page: page, Limit: limit}
	if v := strings.TrimSpace(c.Query("source")); v != "" {
		req.Source = &v
	}
	if v := c.Query("local_order_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid local_order_id", "VALIDATION_ERROR", nil)
		}
		orderID := uint(id)
		req.LocalOrderID = &orderID
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/failures")
	defer cancel()

	res, err := h.orderFlow.ListFailures(ctx, req)
	if err != nil {
		return h.businessErrorResponse(c, err, "Failed to list failures", "LIST_FAILURES_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Failures retrieved successfully", res)
}

// businessErrorResponse maps flow errors to status codes
func (h *AdminHandler) businessErrorResponse(c fiber.Ctx, err error, fallbackMessage, fallbackCode string) error {
	switch {
	case businessflow.IsOrderNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Order not found", "ORDER_NOT_FOUND", nil)
	case businessflow.IsOrderNotRetryable(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Order cannot be retried", "ORDER_NOT_RETRYABLE", err.Error())
	case businessflow.IsOrderNotCompleted(err):
		return h.ErrorResponse(c, fiber.StatusConflict, "Order is not completed", "ORDER_NOT_COMPLETED", err.Error())
	case businessflow.IsValidationError(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, err.Error(), "VALIDATION_ERROR", nil)
	}

	log.Println(fallbackMessage, err)
	var be *businessflow.BusinessError
	if errors.As(err, &be) && be.Code != "" {
		return h.ErrorResponse(c, fiber.StatusInternalServerError, be.Message, be.Code, nil)
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, fallbackCode, nil)
}

func isProviderError(err error) bool {
	if _, ok := services.AsRemoteError(err); ok {
		return true
	}
	return services.IsTransportError(err) || services.IsAuthError(err) || services.IsMalformedResponse(err)
}

func parsePaging(c fiber.Ctx) (int, int, error) {
	page, limit := 1, 0
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, errors.New("invalid page")
		}
		page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, errors.New("invalid limit")
		}
		limit = n
	}
	return page, limit, nil
}

func parseOrderFilter(c fiber.Ctx) (dto.ListOrdersFilter, error) {
	var filter dto.ListOrdersFilter
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		filter.Status = &v
	}
	if v := c.Query("product_ref"); v != "" {
		ref, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("invalid product_ref")
		}
		filter.ProductRef = &ref
	}
	if v := strings.TrimSpace(c.Query("external_order_id")); v != "" {
		filter.ExternalOrderID = &v
	}
	if v := c.Query("unconfirmed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("invalid unconfirmed")
		}
		filter.Unconfirmed = &b
	}
	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid start_date format")
		}
		filter.StartDate = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid end_date format")
		}
		filter.EndDate = &t
	}
	return filter, nil
}
