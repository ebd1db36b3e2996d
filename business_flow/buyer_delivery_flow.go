package businessflow

import (
	"context"
	"strings"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
)

// BuyerDeliveryFlow serves the page a buyer is redirected to after paying
type BuyerDeliveryFlow interface {
	Lookup(ctx context.Context, uniqueCode string) (*dto.BuyerDeliveryResponse, error)
}

type BuyerDeliveryFlowImpl struct {
	orderRepo repository.LocalOrderRepository
}

func NewBuyerDeliveryFlow(orderRepo repository.LocalOrderRepository) BuyerDeliveryFlow {
	return &BuyerDeliveryFlowImpl{orderRepo: orderRepo}
}

// Lookup finds the order by the storefront unique code. SIMs are listed only once provisioning completed.
func (f *BuyerDeliveryFlowImpl) Lookup(ctx context.Context, uniqueCode string) (*dto.BuyerDeliveryResponse, error) {
	code := strings.TrimSpace(uniqueCode)
	if code == "" {
		return nil, NewBusinessError("VALIDATION_ERROR", "uniquecode is required", ErrTransactionCodeRequired)
	}

	order, err := f.orderRepo.ByTransactionCode(ctx, code)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_LOOKUP_FAILED", "Failed to look up order", err)
	}
	if order == nil {
		return nil, NewBusinessError("ORDER_NOT_FOUND", "No order for this code", ErrOrderNotFound)
	}

	resp := &dto.BuyerDeliveryResponse{
		TransactionCode: order.TransactionCode,
		Status:          string(order.Status),
		PackageRef:      order.ResolvedPackageRef,
		Quantity:        order.Quantity,
		Sims:            []dto.ProvisionedUnitDTO{},
	}
	if order.Status != models.LocalOrderStatusCompleted || order.ProvisionerOrderID == nil {
		return resp, nil
	}

	detailed, err := f.orderRepo.ByIDWithDetails(ctx, order.ID)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_LOOKUP_FAILED", "Failed to load provisioned SIMs", err)
	}
	if detailed == nil || detailed.ProvisionerOrder == nil {
		return resp, nil
	}

	po := detailed.ProvisionerOrder
	resp.ManualInstallation = po.ManualInstallation
	resp.QRCodeInstallation = po.QRCodeInstallation
	for i := range po.Units {
		resp.Sims = append(resp.Sims, ToProvisionedUnitDTO(&po.Units[i]))
	}
	resp.Ready = len(resp.Sims) > 0
	return resp, nil
}
