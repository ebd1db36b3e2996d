package businessflow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/amirphl/esim-fulfillment/app/dto"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
	"github.com/amirphl/esim-fulfillment/utils"
	"github.com/xuri/excelize/v2"
)

const (
	maxExportRows  = 10000
	auditTrailSize = 100
)

// AdminOrderFlow exposes the pipeline's records to operators, plus the manual re-trigger paths
type AdminOrderFlow interface {
	ListOrders(ctx context.Context, req dto.ListOrdersRequest) (*dto.ListOrdersResponse, error)
	GetOrder(ctx context.Context, id uint) (*dto.OrderDetailResponse, error)
	RetryOrder(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.RetryOrderResponse, error)
	ConfirmDelivery(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.ConfirmDeliveryResponse, error)
	ExportOrders(ctx context.Context, filter dto.ListOrdersFilter, metadata *ClientMetadata) (*dto.ExportOrdersResponse, error)
	ListFailures(ctx context.Context, req dto.ListFailuresRequest) (*dto.ListFailuresResponse, error)
}

type AdminOrderFlowImpl struct {
	orderRepo repository.LocalOrderRepository
	delivery  DeliveryFlow
	enqueuer  ProvisioningEnqueuer
	recorder
}

func NewAdminOrderFlow(
	orderRepo repository.LocalOrderRepository,
	delivery DeliveryFlow,
	enqueuer ProvisioningEnqueuer,
	auditRepo repository.AuditLogRepository,
	failureRepo repository.FailureRecordRepository,
	logger *log.Logger,
) AdminOrderFlow {
	return &AdminOrderFlowImpl{
		orderRepo: orderRepo,
		delivery:  delivery,
		enqueuer:  enqueuer,
		recorder: recorder{
			auditRepo:   auditRepo,
			failureRepo: failureRepo,
			logger:      loggerOrDefault(logger, "admin"),
		},
	}
}

func (f *AdminOrderFlowImpl) ListOrders(ctx context.Context, req dto.ListOrdersRequest) (*dto.ListOrdersResponse, error) {
	page, limit, err := normalizePaging(req.Page, req.Limit)
	if err != nil {
		return nil, err
	}
	filter, err := toLocalOrderFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	total, err := f.orderRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_ORDERS_FAILED", "Failed to count orders", err)
	}
	rows, err := f.orderRepo.ByFilter(ctx, filter, "id DESC", limit, (page-1)*limit)
	if err != nil {
		return nil, NewBusinessError("LIST_ORDERS_FAILED", "Failed to list orders", err)
	}

	items := make([]dto.LocalOrderDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToLocalOrderDTO(row))
	}
	return &dto.ListOrdersResponse{Items: items, Pagination: pagination(total, page, limit)}, nil
}

func (f *AdminOrderFlowImpl) GetOrder(ctx context.Context, id uint) (*dto.OrderDetailResponse, error) {
	order, err := f.orderRepo.ByIDWithDetails(ctx, id)
	if err != nil {
		return nil, NewBusinessError("GET_ORDER_FAILED", "Failed to load order", err)
	}
	if order == nil {
		return nil, NewBusinessErrorf("ORDER_NOT_FOUND", "order %d", ErrOrderNotFound, id)
	}

	resp := &dto.OrderDetailResponse{
		Order:      ToLocalOrderDTO(order),
		Units:      []dto.ProvisionedUnitDTO{},
		AuditTrail: []dto.AuditLogDTO{},
	}
	if order.ProvisionerOrder != nil {
		resp.ProvisionerOrder = ToProvisionerOrderDTO(order.ProvisionerOrder)
		for i := range order.ProvisionerOrder.Units {
			resp.Units = append(resp.Units, ToProvisionedUnitDTO(&order.ProvisionerOrder.Units[i]))
		}
	}
	if f.auditRepo != nil {
		logs, err := f.auditRepo.ListByLocalOrder(ctx, order.ID, auditTrailSize, 0)
		if err != nil {
			f.logger.Printf("failed to load audit trail of order %d: %v", order.ID, err)
		}
		for _, l := range logs {
			resp.AuditTrail = append(resp.AuditTrail, ToAuditLogDTO(l))
		}
	}
	return resp, nil
}

// RetryOrder re-enqueues a failed or stuck order. The executor decides what happens next.
func (f *AdminOrderFlowImpl) RetryOrder(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.RetryOrderResponse, error) {
	order, err := f.orderRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("RETRY_ORDER_FAILED", "Failed to load order", err)
	}
	if order == nil {
		return nil, NewBusinessErrorf("ORDER_NOT_FOUND", "order %d", ErrOrderNotFound, id)
	}
	if !order.IsRetryable() {
		return nil, NewBusinessErrorf("ORDER_NOT_RETRYABLE", "order %d is %s", ErrOrderNotRetryable, id, order.Status)
	}
	if f.enqueuer == nil {
		return nil, NewBusinessError("RETRY_ORDER_FAILED", "Provisioning workers are disabled", ErrOrderNotRetryable)
	}

	if err := f.enqueuer.Enqueue(ctx, order.ID); err != nil {
		f.audit(ctx, &order.ID, models.AuditActionOrderRetryRequested, "Manual retry could not be enqueued", false, errString(err), metadata)
		return nil, NewBusinessError("RETRY_ORDER_FAILED", "Failed to enqueue order", err)
	}
	f.audit(ctx, &order.ID, models.AuditActionOrderRetryRequested,
		fmt.Sprintf("Manual retry requested from status %s", order.Status), true, nil, metadata)

	return &dto.RetryOrderResponse{OrderID: order.ID, Status: string(order.Status), Enqueued: true}, nil
}

func (f *AdminOrderFlowImpl) ConfirmDelivery(ctx context.Context, id uint, metadata *ClientMetadata) (*dto.ConfirmDeliveryResponse, error) {
	order, err := f.orderRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CONFIRM_DELIVERY_FAILED", "Failed to load order", err)
	}
	if order == nil {
		return nil, NewBusinessErrorf("ORDER_NOT_FOUND", "order %d", ErrOrderNotFound, id)
	}
	if order.Status != models.LocalOrderStatusCompleted {
		return nil, NewBusinessErrorf("ORDER_NOT_COMPLETED", "order %d is %s", ErrOrderNotCompleted, id, order.Status)
	}

	if err := f.delivery.ConfirmOrder(ctx, order); err != nil {
		return nil, NewBusinessError("CONFIRM_DELIVERY_FAILED", "Storefront rejected the delivery confirmation", err)
	}

	resp := &dto.ConfirmDeliveryResponse{OrderID: order.ID, TransactionCode: order.TransactionCode}
	if order.DeliveryConfirmedAt != nil {
		resp.ConfirmedAt = *order.DeliveryConfirmedAt
	}
	return resp, nil
}

func (f *AdminOrderFlowImpl) ExportOrders(ctx context.Context, filter dto.ListOrdersFilter, metadata *ClientMetadata) (*dto.ExportOrdersResponse, error) {
	orderFilter, err := toLocalOrderFilter(filter)
	if err != nil {
		return nil, err
	}
	rows, err := f.orderRepo.ByFilter(ctx, orderFilter, "id ASC", maxExportRows, 0)
	if err != nil {
		return nil, NewBusinessError("EXPORT_ORDERS_FAILED", "Failed to list orders", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "orders"
	xl.SetSheetName(xl.GetSheetName(0), sheet)
	header := []any{
		"id", "external_order_id", "transaction_code", "product_ref", "variant_ref", "package_ref",
		"quantity", "buyer_contact", "amount", "currency", "status", "attempts", "error",
		"provisioner_order_id", "delivery_confirmed_at", "created_at", "updated_at",
	}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	for i, o := range rows {
		record := []any{
			o.ID,
			o.ExternalOrderID,
			o.TransactionCode,
			o.ProductRef,
			o.VariantRef,
			o.ResolvedPackageRef,
			o.Quantity,
			o.BuyerContact,
			o.PurchaseAmount,
			o.PurchaseCurrency,
			string(o.Status),
			o.Attempts,
			derefString(o.ErrorDetail),
			derefUint(o.ProvisionerOrderID),
			formatTimePtr(o.DeliveryConfirmedAt),
			o.CreatedAt.UTC().Format(time.RFC3339),
			o.UpdatedAt.UTC().Format(time.RFC3339),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	f.audit(ctx, nil, models.AuditActionOrdersExported, fmt.Sprintf("Exported %d orders", len(rows)), true, nil, metadata)

	return &dto.ExportOrdersResponse{
		Filename: fmt.Sprintf("orders_%s.xlsx", utils.UTCNow().Format("20060102_150405")),
		Rows:     len(rows),
		Content:  buf.Bytes(),
	}, nil
}

func (f *AdminOrderFlowImpl) ListFailures(ctx context.Context, req dto.ListFailuresRequest) (*dto.ListFailuresResponse, error) {
	page, limit, err := normalizePaging(req.Page, req.Limit)
	if err != nil {
		return nil, err
	}
	filter := models.FailureRecordFilter{Source: req.Source, LocalOrderID: req.LocalOrderID}

	total, err := f.failureRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_FAILURES_FAILED", "Failed to count failure records", err)
	}
	rows, err := f.failureRepo.ByFilter(ctx, filter, "timestamp DESC, id DESC", limit, (page-1)*limit)
	if err != nil {
		return nil, NewBusinessError("LIST_FAILURES_FAILED", "Failed to list failure records", err)
	}

	items := make([]dto.FailureRecordDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToFailureRecordDTO(row))
	}
	return &dto.ListFailuresResponse{Items: items, Pagination: pagination(total, page, limit)}, nil
}

func normalizePaging(page, limit int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return 0, 0, NewBusinessError("VALIDATION_ERROR", "page must be at least 1", ErrInvalidPage)
	}
	if limit == 0 {
		limit = utils.DefaultPageSize
	}
	if limit < 1 || limit > utils.MaxPageSize {
		return 0, 0, NewBusinessErrorf("VALIDATION_ERROR", "limit must be between 1 and %d", ErrInvalidPageSize, utils.MaxPageSize)
	}
	return page, limit, nil
}

func pagination(total int64, page, limit int) dto.PaginationInfo {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return dto.PaginationInfo{Total: total, Page: page, Limit: limit, TotalPages: totalPages}
}

func toLocalOrderFilter(in dto.ListOrdersFilter) (models.LocalOrderFilter, error) {
	out := models.LocalOrderFilter{
		ProductRef:      in.ProductRef,
		ExternalOrderID: in.ExternalOrderID,
		Unconfirmed:     in.Unconfirmed,
		CreatedAfter:    in.StartDate,
	}
	if in.Status != nil && *in.Status != "" {
		status, err := ParseOrderStatus(*in.Status)
		if err != nil {
			return out, err
		}
		out.Status = &status
	}
	if in.StartDate != nil && in.EndDate != nil && in.StartDate.After(*in.EndDate) {
		return out, NewBusinessError("VALIDATION_ERROR", "start_date cannot be after end_date", ErrStartDateAfterEndDate)
	}
	if in.EndDate != nil {
		out.CreatedBefore = in.EndDate
	}
	return out, nil
}

// ParseOrderStatus validates an order status coming from a query string
func ParseOrderStatus(s string) (models.LocalOrderStatus, error) {
	switch status := models.LocalOrderStatus(s); status {
	case models.LocalOrderStatusReceived,
		models.LocalOrderStatusProcessing,
		models.LocalOrderStatusCompleted,
		models.LocalOrderStatusFailed,
		models.LocalOrderStatusInvalid:
		return status, nil
	}
	return "", NewBusinessErrorf("VALIDATION_ERROR", "unknown status %q", ErrInvalidStatus, s)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefUint(v *uint) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
