package handlers

import (
	"log"

	"github.com/amirphl/esim-fulfillment/app/dto"
	businessflow "github.com/amirphl/esim-fulfillment/business_flow"
	"github.com/gofiber/fiber/v3"
)

// DeliveryHandler serves the page a buyer is redirected to after paying
type DeliveryHandler struct {
	baseHandler
	flow businessflow.BuyerDeliveryFlow
}

func NewDeliveryHandler(flow businessflow.BuyerDeliveryFlow) *DeliveryHandler {
	return &DeliveryHandler{
		baseHandler: newBaseHandler(),
		flow:        flow,
	}
}

// Deliver returns the order status and, once provisioned, the SIM activation data
// @Summary Buyer delivery lookup
// @Tags Delivery
// @Produce json
// @Param uniquecode query string true "Storefront unique code"
// @Success 200 {object} dto.APIResponse{data=dto.BuyerDeliveryResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/digiseller/deliver [get]
func (h *DeliveryHandler) Deliver(c fiber.Ctx) error {
	req := dto.BuyerDeliveryRequest{UniqueCode: c.Query("uniquecode")}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/digiseller/deliver")
	defer cancel()

	res, err := h.flow.Lookup(ctx, req.UniqueCode)
	if err != nil {
		if businessflow.IsOrderNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Order not found", "ORDER_NOT_FOUND", nil)
		}
		if businessflow.IsValidationError(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid unique code", "VALIDATION_ERROR", nil)
		}
		log.Println("Buyer delivery lookup failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load order", "DELIVERY_LOOKUP_FAILED", nil)
	}

	message := "Your eSIM is being prepared"
	if res.Ready {
		message = "Your eSIM is ready"
	}
	return h.SuccessResponse(c, fiber.StatusOK, message, res)
}
