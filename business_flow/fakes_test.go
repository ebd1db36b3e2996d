package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/esim-fulfillment/app/services"
	"github.com/amirphl/esim-fulfillment/models"
	"github.com/amirphl/esim-fulfillment/repository"
)

// memTable stores value copies so that callers only see their writes after Save or Update
type memTable[T any] struct {
	mu     sync.Mutex
	rows   map[uint]T
	nextID uint
	idOf   func(*T) *uint
}

func newMemTable[T any](idOf func(*T) *uint) *memTable[T] {
	return &memTable[T]{rows: make(map[uint]T), idOf: idOf}
}

func (m *memTable[T]) insert(e *T) {
	m.nextID++
	*m.idOf(e) = m.nextID
	m.rows[m.nextID] = *e
}

func (m *memTable[T]) get(id uint) *T {
	v, ok := m.rows[id]
	if !ok {
		return nil
	}
	return &v
}

func (m *memTable[T]) list(match func(*T) bool, orderBy string, limit, offset int) []*T {
	ids := make([]uint, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if strings.Contains(orderBy, "DESC") {
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	}
	out := make([]*T, 0)
	for _, id := range ids {
		v := m.rows[id]
		if match == nil || match(&v) {
			out = append(out, &v)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return []*T{}
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (m *memTable[T]) ByID(_ context.Context, id uint) (*T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id), nil
}

func (m *memTable[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memTable[T]) all() []*T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list(nil, "", 0, 0)
}

// fakeOrderRepo enforces the unique keys of local_orders
type fakeOrderRepo struct {
	*memTable[models.LocalOrder]
	provOrders *fakeProvOrderRepo
	units      *fakeUnitRepo
	updates    int
	saveErr    error
	updateErr  error
}

func newFakeOrderRepo(provOrders *fakeProvOrderRepo, units *fakeUnitRepo) *fakeOrderRepo {
	return &fakeOrderRepo{
		memTable:   newMemTable(func(o *models.LocalOrder) *uint { return &o.ID }),
		provOrders: provOrders,
		units:      units,
	}
}

func matchOrder(f models.LocalOrderFilter) func(*models.LocalOrder) bool {
	return func(o *models.LocalOrder) bool {
		if f.ID != nil && o.ID != *f.ID {
			return false
		}
		if f.ExternalOrderID != nil && o.ExternalOrderID != *f.ExternalOrderID {
			return false
		}
		if f.TransactionCode != nil && o.TransactionCode != *f.TransactionCode {
			return false
		}
		if f.ProductRef != nil && o.ProductRef != *f.ProductRef {
			return false
		}
		if f.Status != nil && o.Status != *f.Status {
			return false
		}
		if f.Unconfirmed != nil && (o.DeliveryConfirmedAt == nil) != *f.Unconfirmed {
			return false
		}
		if f.CreatedAfter != nil && o.CreatedAt.Before(*f.CreatedAfter) {
			return false
		}
		if f.CreatedBefore != nil && !o.CreatedAt.Before(*f.CreatedBefore) {
			return false
		}
		if f.UpdatedBefore != nil && !o.UpdatedAt.Before(*f.UpdatedBefore) {
			return false
		}
		if f.MaxConfirmAttempts != nil && o.ConfirmAttempts >= *f.MaxConfirmAttempts {
			return false
		}
		return true
	}
}

func (r *fakeOrderRepo) ByFilter(_ context.Context, f models.LocalOrderFilter, orderBy string, limit, offset int) ([]*models.LocalOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(matchOrder(f), orderBy, limit, offset), nil
}

func (r *fakeOrderRepo) Count(ctx context.Context, f models.LocalOrderFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeOrderRepo) Exists(ctx context.Context, f models.LocalOrderFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r *fakeOrderRepo) Save(_ context.Context, o *models.LocalOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	for _, existing := range r.rows {
		if existing.ExternalOrderID == o.ExternalOrderID || existing.TransactionCode == o.TransactionCode {
			return fmt.Errorf("failed to save entity: %w", repository.ErrDuplicateKey)
		}
	}
	if o.Status == "" {
		o.Status = models.LocalOrderStatusReceived
	}
	r.insert(o)
	return nil
}

func (r *fakeOrderRepo) SaveBatch(ctx context.Context, rows []*models.LocalOrder) error {
	for _, o := range rows {
		if err := r.Save(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeOrderRepo) Update(_ context.Context, o *models.LocalOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.rows[o.ID]; !ok {
		return errors.New("order does not exist")
	}
	r.updates++
	r.rows[o.ID] = *o
	return nil
}

func (r *fakeOrderRepo) ByExternalOrderID(ctx context.Context, id string) (*models.LocalOrder, error) {
	rows, _ := r.ByFilter(ctx, models.LocalOrderFilter{ExternalOrderID: &id}, "", 1, 0)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *fakeOrderRepo) ByTransactionCode(ctx context.Context, code string) (*models.LocalOrder, error) {
	rows, _ := r.ByFilter(ctx, models.LocalOrderFilter{TransactionCode: &code}, "", 1, 0)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *fakeOrderRepo) ByIDWithDetails(ctx context.Context, id uint) (*models.LocalOrder, error) {
	order, _ := r.ByID(ctx, id)
	if order == nil || order.ProvisionerOrderID == nil || r.provOrders == nil {
		return order, nil
	}
	po, _ := r.provOrders.ByID(ctx, *order.ProvisionerOrderID)
	if po != nil && r.units != nil {
		units, _ := r.units.ListByProvisionerOrder(ctx, po.ID)
		for _, u := range units {
			po.Units = append(po.Units, *u)
		}
	}
	order.ProvisionerOrder = po
	return order, nil
}

func (r *fakeOrderRepo) ListStaleReceived(ctx context.Context, olderThan time.Time, limit int) ([]*models.LocalOrder, error) {
	status := models.LocalOrderStatusReceived
	return r.ByFilter(ctx, models.LocalOrderFilter{Status: &status, UpdatedBefore: &olderThan}, "id ASC", limit, 0)
}

func (r *fakeOrderRepo) ListUnconfirmed(ctx context.Context, olderThan time.Time, maxConfirmAttempts, limit int) ([]*models.LocalOrder, error) {
	status := models.LocalOrderStatusCompleted
	unconfirmed := true
	f := models.LocalOrderFilter{Status: &status, Unconfirmed: &unconfirmed, UpdatedBefore: &olderThan}
	if maxConfirmAttempts > 0 {
		f.MaxConfirmAttempts = &maxConfirmAttempts
	}
	rows, _ := r.ByFilter(ctx, f, "id ASC", 0, 0)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].LastConfirmAttemptAt, rows[j].LastConfirmAttemptAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *fakeOrderRepo) ClaimForProcessing(_ context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return false, r.updateErr
	}
	o, ok := r.rows[id]
	if !ok || !o.IsClaimable() {
		return false, nil
	}
	o.Status = models.LocalOrderStatusProcessing
	o.Attempts++
	o.ErrorDetail = nil
	o.UpdatedAt = time.Now().UTC()
	r.updates++
	r.rows[id] = o
	return true, nil
}

func (r *fakeOrderRepo) RecordConfirmFailure(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.rows[id]
	if !ok {
		return errors.New("order does not exist")
	}
	now := time.Now().UTC()
	o.ConfirmAttempts++
	o.LastConfirmAttemptAt = &now
	o.UpdatedAt = now
	r.rows[id] = o
	return nil
}

func (r *fakeOrderRepo) only(t interface{ Fatalf(string, ...any) }) *models.LocalOrder {
	rows := r.all()
	if len(rows) != 1 {
		t.Fatalf("expected exactly one local order, got %d", len(rows))
	}
	return rows[0]
}

type fakeProvOrderRepo struct {
	*memTable[models.ProvisionerOrder]
	saveErr error
}

func newFakeProvOrderRepo() *fakeProvOrderRepo {
	return &fakeProvOrderRepo{memTable: newMemTable(func(p *models.ProvisionerOrder) *uint { return &p.ID })}
}

func (r *fakeProvOrderRepo) ByFilter(_ context.Context, f models.ProvisionerOrderFilter, orderBy string, limit, offset int) ([]*models.ProvisionerOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(p *models.ProvisionerOrder) bool {
		return f.ProviderOrderID == nil || p.ProviderOrderID == *f.ProviderOrderID
	}, orderBy, limit, offset), nil
}

func (r *fakeProvOrderRepo) Count(ctx context.Context, f models.ProvisionerOrderFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeProvOrderRepo) Exists(ctx context.Context, f models.ProvisionerOrderFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r *fakeProvOrderRepo) Save(_ context.Context, p *models.ProvisionerOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	for _, existing := range r.rows {
		if existing.ProviderOrderID == p.ProviderOrderID {
			return fmt.Errorf("failed to save entity: %w", repository.ErrDuplicateKey)
		}
	}
	r.insert(p)
	return nil
}

func (r *fakeProvOrderRepo) SaveBatch(ctx context.Context, rows []*models.ProvisionerOrder) error {
	for _, p := range rows {
		if err := r.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeProvOrderRepo) ByProviderOrderID(ctx context.Context, id string) (*models.ProvisionerOrder, error) {
	rows, _ := r.ByFilter(ctx, models.ProvisionerOrderFilter{ProviderOrderID: &id}, "", 1, 0)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

type fakeUnitRepo struct {
	*memTable[models.ProvisionedUnit]
	saveErr error
}

func newFakeUnitRepo() *fakeUnitRepo {
	return &fakeUnitRepo{memTable: newMemTable(func(u *models.ProvisionedUnit) *uint { return &u.ID })}
}

func (r *fakeUnitRepo) ByFilter(_ context.Context, f models.ProvisionedUnitFilter, orderBy string, limit, offset int) ([]*models.ProvisionedUnit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(u *models.ProvisionedUnit) bool {
		if f.ProvisionerOrderID != nil && u.ProvisionerOrderID != *f.ProvisionerOrderID {
			return false
		}
		return f.ICCID == nil || u.ICCID == *f.ICCID
	}, orderBy, limit, offset), nil
}

func (r *fakeUnitRepo) Count(ctx context.Context, f models.ProvisionedUnitFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeUnitRepo) Exists(ctx context.Context, f models.ProvisionedUnitFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r *fakeUnitRepo) Save(ctx context.Context, u *models.ProvisionedUnit) error {
	return r.SaveBatch(ctx, []*models.ProvisionedUnit{u})
}

func (r *fakeUnitRepo) SaveBatch(_ context.Context, rows []*models.ProvisionedUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	for _, u := range rows {
		r.insert(u)
	}
	return nil
}

func (r *fakeUnitRepo) ListByProvisionerOrder(ctx context.Context, id uint) ([]*models.ProvisionedUnit, error) {
	return r.ByFilter(ctx, models.ProvisionedUnitFilter{ProvisionerOrderID: &id}, "id ASC", 0, 0)
}

type fakeProductRepo struct {
	*memTable[models.StorefrontProduct]
	err error
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{memTable: newMemTable(func(p *models.StorefrontProduct) *uint { return &p.ID })}
}

func (r *fakeProductRepo) add(idGoods int64, name string) *models.StorefrontProduct {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &models.StorefrontProduct{IDGoods: idGoods, NameGoods: name}
	r.insert(p)
	return p
}

func (r *fakeProductRepo) ByFilter(_ context.Context, f models.StorefrontProductFilter, orderBy string, limit, offset int) ([]*models.StorefrontProduct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(p *models.StorefrontProduct) bool {
		return f.IDGoods == nil || p.IDGoods == *f.IDGoods
	}, orderBy, limit, offset), nil
}

func (r *fakeProductRepo) Count(ctx context.Context, f models.StorefrontProductFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeProductRepo) Exists(ctx context.Context, f models.StorefrontProductFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r *fakeProductRepo) Save(_ context.Context, p *models.StorefrontProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(p)
	return nil
}

func (r *fakeProductRepo) SaveBatch(ctx context.Context, rows []*models.StorefrontProduct) error {
	for _, p := range rows {
		_ = r.Save(ctx, p)
	}
	return nil
}

func (r *fakeProductRepo) ByIDGoods(ctx context.Context, idGoods int64) (*models.StorefrontProduct, error) {
	if r.err != nil {
		return nil, r.err
	}
	rows, _ := r.ByFilter(ctx, models.StorefrontProductFilter{IDGoods: &idGoods}, "", 1, 0)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// fakeVariantRepo keys mappings by (id_goods, variant value)
type fakeVariantRepo struct {
	*memTable[models.VariantMapping]
	products *fakeProductRepo
	err      error
}

func newFakeVariantRepo(products *fakeProductRepo) *fakeVariantRepo {
	return &fakeVariantRepo{
		memTable: newMemTable(func(v *models.VariantMapping) *uint { return &v.ID }),
		products: products,
	}
}

// add maps a variant to packageRef; an empty packageRef leaves the variant unmapped
func (r *fakeVariantRepo) add(product *models.StorefrontProduct, value int64, packageRef string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := &models.VariantMapping{StorefrontProductID: product.ID, VariantValue: value, Visible: true}
	if packageRef != "" {
		pkgID := uint(len(r.rows) + 1)
		v.PackageID = &pkgID
		v.Package = &models.ProvisioningPackage{ID: pkgID, PackageID: packageRef}
	}
	r.insert(v)
}

func (r *fakeVariantRepo) ByFilter(_ context.Context, f models.VariantMappingFilter, orderBy string, limit, offset int) ([]*models.VariantMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(v *models.VariantMapping) bool {
		if f.StorefrontProductID != nil && v.StorefrontProductID != *f.StorefrontProductID {
			return false
		}
		return f.VariantValue == nil || v.VariantValue == *f.VariantValue
	}, orderBy, limit, offset), nil
}

func (r *fakeVariantRepo) Count(ctx context.Context, f models.VariantMappingFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeVariantRepo) Exists(ctx context.Context, f models.VariantMappingFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r *fakeVariantRepo) Save(_ context.Context, v *models.VariantMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(v)
	return nil
}

func (r *fakeVariantRepo) SaveBatch(ctx context.Context, rows []*models.VariantMapping) error {
	for _, v := range rows {
		_ = r.Save(ctx, v)
	}
	return nil
}

func (r *fakeVariantRepo) ByProductAndValue(ctx context.Context, productIDGoods, value int64) (*models.VariantMapping, error) {
	if r.err != nil {
		return nil, r.err
	}
	product, _ := r.products.ByIDGoods(ctx, productIDGoods)
	if product == nil {
		return nil, nil
	}
	rows, _ := r.ByFilter(ctx, models.VariantMappingFilter{StorefrontProductID: &product.ID, VariantValue: &value}, "", 1, 0)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

type fakeFailureRepo struct {
	*memTable[models.FailureRecord]
}

func newFakeFailureRepo() *fakeFailureRepo {
	return &fakeFailureRepo{memTable: newMemTable(func(f *models.FailureRecord) *uint { return &f.ID })}
}

func (r *fakeFailureRepo) ByFilter(_ context.Context, f models.FailureRecordFilter, orderBy string, limit, offset int) ([]*models.FailureRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(rec *models.FailureRecord) bool {
		if f.Source != nil && rec.Source != *f.Source {
			return false
		}
		if f.LocalOrderID != nil && (rec.LocalOrderID == nil || *rec.LocalOrderID != *f.LocalOrderID) {
			return false
		}
		return true
	}, orderBy, limit, offset), nil
}

func (r *fakeFailureRepo) Count(ctx context.Context, f models.FailureRecordFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeFailureRepo) Exists(ctx context.Context, f models.FailureRecordFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r *fakeFailureRepo) Save(_ context.Context, rec *models.FailureRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(rec)
	return nil
}

func (r *fakeFailureRepo) SaveBatch(ctx context.Context, rows []*models.FailureRecord) error {
	for _, rec := range rows {
		_ = r.Save(ctx, rec)
	}
	return nil
}

func (r *fakeFailureRepo) bySource(source string) []*models.FailureRecord {
	rows, _ := r.ByFilter(context.Background(), models.FailureRecordFilter{Source: &source}, "", 0, 0)
	return rows
}

type fakeAuditRepo struct {
	*memTable[models.AuditLog]
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{memTable: newMemTable(func(a *models.AuditLog) *uint { return &a.ID })}
}

func (r *fakeAuditRepo) ByFilter(_ context.Context, f models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(func(a *models.AuditLog) bool {
		if f.Action != nil && a.Action != *f.Action {
			return false
		}
		if f.LocalOrderID != nil && (a.LocalOrderID == nil || *a.LocalOrderID != *f.LocalOrderID) {
			return false
		}
		return true
	}, orderBy, limit, offset), nil
}

func (r *fakeAuditRepo) Count(ctx context.Context, f models.AuditLogFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, f, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeAuditRepo) Exists(ctx context.Context, f models.AuditLogFilter) (bool, error) {
	c, _ := r.Count(ctx, f)
	return c > 0, nil
}

func (r *fakeAuditRepo) Save(_ context.Context, a *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insert(a)
	return nil
}

func (r *fakeAuditRepo) SaveBatch(ctx context.Context, rows []*models.AuditLog) error {
	for _, a := range rows {
		_ = r.Save(ctx, a)
	}
	return nil
}

func (r *fakeAuditRepo) ListByLocalOrder(ctx context.Context, id uint, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{LocalOrderID: &id}, "id DESC", limit, offset)
}

func (r *fakeAuditRepo) actions() []string {
	var out []string
	for _, a := range r.all() {
		out = append(out, a.Action)
	}
	return out
}

// fakeTransactor runs the unit of work inline
type fakeTransactor struct {
	calls int
}

func (t *fakeTransactor) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeStorefront struct {
	mu            sync.Mutex
	purchases     map[string]*services.PurchaseInfo
	purchaseErr   error
	purchaseCalls int
	confirmErr    error
	confirmed     []string
}

func newFakeStorefront() *fakeStorefront {
	return &fakeStorefront{purchases: make(map[string]*services.PurchaseInfo)}
}

func (s *fakeStorefront) FetchPurchaseInfo(_ context.Context, orderID string) (*services.PurchaseInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchaseCalls++
	if s.purchaseErr != nil {
		return nil, s.purchaseErr
	}
	info, ok := s.purchases[orderID]
	if !ok {
		return nil, &services.RemoteError{Provider: services.ProviderStorefront, Status: 404, Body: "not found"}
	}
	return info, nil
}

func (s *fakeStorefront) ConfirmDelivery(_ context.Context, code string) (*services.ConfirmationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = append(s.confirmed, code)
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return &services.ConfirmationResult{TransactionCode: code}, nil
}

type fakeProvisioner struct {
	mu       sync.Mutex
	payload  *services.ProviderOrderPayload
	err      error
	delay    time.Duration
	requests []services.ProvisioningRequest
}

func (p *fakeProvisioner) CreateProvisioningOrder(_ context.Context, in services.ProvisioningRequest) (*services.ProviderOrderPayload, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, in)
	if p.err != nil {
		return nil, p.err
	}
	return p.payload, nil
}

func (p *fakeProvisioner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []uint
	err error
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, orderID uint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.ids = append(e.ids, orderID)
	return nil
}

func (e *fakeEnqueuer) enqueued() []uint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uint(nil), e.ids...)
}
