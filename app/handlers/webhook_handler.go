package handlers

import (
	"log"

	"github.com/amirphl/esim-fulfillment/app/dto"
	businessflow "github.com/amirphl/esim-fulfillment/business_flow"
	"github.com/gofiber/fiber/v3"
)

// WebhookHandlerInterface defines the contract for storefront callbacks
type WebhookHandlerInterface interface {
	DigisellerNotification(c fiber.Ctx) error
}

// WebhookHandler receives storefront payment notifications
type WebhookHandler struct {
	baseHandler
	flow businessflow.WebhookIntakeFlow
}

func NewWebhookHandler(flow businessflow.WebhookIntakeFlow) *WebhookHandler {
	return &WebhookHandler{
		baseHandler: newBaseHandler(),
		flow:        flow,
	}
}

// DigisellerNotification materializes a local order from a sale notification.
// Ignored notifications are acknowledged with 200 so the storefront stops resending them;
// failures answer 500 so it retries.
// @Summary Storefront sale notification
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body dto.StorefrontNotificationRequest true "Notification"
// @Success 200 {object} dto.APIResponse{data=dto.StorefrontNotificationResponse} "Processed or ignored"
// @Failure 400 {object} dto.APIResponse "Malformed notification or bad signature"
// @Failure 500 {object} dto.APIResponse "Processing failed, retry later"
// @Router /api/v1/webhooks/digiseller [post]
func (h *WebhookHandler) DigisellerNotification(c fiber.Ctx) error {
	var req dto.StorefrontNotificationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/webhooks/digiseller")
	defer cancel()

	result, err := h.flow.HandleNotification(ctx, &req, h.clientMetadata(c))
	if err != nil {
		if businessflow.IsInvalidSignature(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid notification signature", "INVALID_SIGNATURE", nil)
		}
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid notification", "INVALID_NOTIFICATION", err.Error())
		}
		log.Printf("webhook: notification %s for product %s failed: %v", req.InvoiceID, req.ProductID, err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Notification processing failed", "NOTIFICATION_FAILED", nil)
	}

	resp := dto.StorefrontNotificationResponse{
		Status:  string(result.Outcome),
		Created: result.Created,
		Reason:  result.Reason,
	}
	if result.Order != nil {
		id := result.Order.ID
		resp.LocalOrderID = &id
		resp.OrderUUID = result.Order.UUID.String()
	}

	message := "Notification processed"
	if result.Outcome == businessflow.IntakeIgnored {
		message = "Notification ignored"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, resp)
}
