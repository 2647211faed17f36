package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/app/services"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/repository"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the database. Transactions are serialized and
// rolled back by restoring a snapshot, which is enough to observe both-or-neither writes.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID   uint
	products map[uint]models.Product
	lots     map[uint]models.Lot
	receipts map[uint]models.Receipt
	settings map[string]string
	counters map[string]int64
	audits   []models.AuditLog

	// failures injected by tests
	failLotSave   func(lot *models.Lot) error
	failAudit     error
	reconcileHits int
}

type memSnapshot struct {
	nextID   uint
	products map[uint]models.Product
	lots     map[uint]models.Lot
	receipts map[uint]models.Receipt
	settings map[string]string
	counters map[string]int64
	audits   []models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		products: map[uint]models.Product{},
		lots:     map[uint]models.Lot{},
		receipts: map[uint]models.Receipt{},
		settings: map[string]string{},
		counters: map[string]int64{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		nextID:   s.nextID,
		products: copyMap(s.products),
		lots:     copyMap(s.lots),
		receipts: copyMap(s.receipts),
		settings: copyMap(s.settings),
		counters: copyMap(s.counters),
		audits:   append([]models.AuditLog(nil), s.audits...),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.products = snap.products
	s.lots = snap.lots
	s.receipts = snap.receipts
	s.settings = snap.settings
	s.counters = snap.counters
	s.audits = snap.audits
}

func (s *memStore) runTx(ctx context.Context, fn func(context.Context) error) error {
	if repository.InTransaction(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	txCtx := context.WithValue(ctx, repository.TxContextKey, &gorm.DB{})
	if err := fn(txCtx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) addProduct(sku string, gtin *string) *models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.Product{
		ID:        s.id(),
		UUID:      uuid.New(),
		SKU:       sku,
		Name:      "Product " + sku,
		GTIN:      gtin,
		IsActive:  utils.ToPtr(true),
		CreatedAt: utils.UTCNow(),
		UpdatedAt: utils.UTCNow(),
	}
	s.products[p.ID] = p
	return &p
}

func (s *memStore) product(id uint) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *memStore) auditActions() []models.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditAction, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

func (s *memStore) lotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lots)
}

func (s *memStore) receiptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receipts)
}

func requireTx(ctx context.Context) error {
	if !repository.InTransaction(ctx) {
		return repository.ErrTransactionRequired
	}
	return nil
}

// ---- sequence counters ----

var (
	_ repository.SequenceCounterRepository = memCounterRepo{}
	_ repository.ProductRepository         = memProductRepo{}
	_ repository.LotRepository             = memLotRepo{}
	_ repository.ReceiptRepository         = memReceiptRepo{}
	_ repository.SystemSettingRepository   = memSettingRepo{}
	_ repository.AuditLogRepository        = memAuditRepo{}
)

type memCounterRepo struct{ s *memStore }

func (r memCounterRepo) LockOrCreate(ctx context.Context, key string) (int64, error) {
	if err := requireTx(ctx); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.counters[key]
	if !ok {
		v = 1
		r.s.counters[key] = v
	}
	return v, nil
}

func (r memCounterRepo) SetValue(ctx context.Context, key string, value int64) error {
	if err := requireTx(ctx); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[key] = value
	return nil
}

func (r memCounterRepo) ByKey(_ context.Context, key string) (*models.SequenceCounter, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.counters[key]
	if !ok {
		return nil, nil
	}
	return &models.SequenceCounter{Key: key, CurrentValue: v}, nil
}

// ---- products ----

type memProductRepo struct{ s *memStore }

func (r memProductRepo) ByID(_ context.Context, id uint) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memProductRepo) ByFilter(_ context.Context, filter models.ProductFilter, _ string, limit, offset int) ([]*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Product
	for _, id := range sortedKeys(r.s.products) {
		p := r.s.products[id]
		if filter.ID != nil && p.ID != *filter.ID {
			continue
		}
		if filter.SKU != nil && p.SKU != *filter.SKU {
			continue
		}
		if filter.GTIN != nil && utils.StringOrEmpty(p.GTIN) != *filter.GTIN {
			continue
		}
		out = append(out, &p)
	}
	return page(out, limit, offset), nil
}

func (r memProductRepo) Save(_ context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.products {
		if existing.SKU == p.SKU {
			return fmt.Errorf("failed to save product: %w", gorm.ErrDuplicatedKey)
		}
	}
	p.ID = r.s.id()
	r.s.products[p.ID] = *p
	return nil
}

func (r memProductRepo) Count(ctx context.Context, filter models.ProductFilter) (int64, error) {
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(items)), err
}

func (r memProductRepo) Exists(ctx context.Context, filter models.ProductFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r memProductRepo) BySKU(ctx context.Context, sku string) (*models.Product, error) {
	items, err := r.ByFilter(ctx, models.ProductFilter{SKU: &sku}, "", 1, 0)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r memProductRepo) ByIDForUpdate(ctx context.Context, id uint) (*models.Product, error) {
	if err := requireTx(ctx); err != nil {
		return nil, err
	}
	return r.ByID(ctx, id)
}

func (r memProductRepo) ExistsByGTIN(_ context.Context, gtin string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.products {
		if p.GTIN != nil && *p.GTIN == gtin {
			return true, nil
		}
	}
	return false, nil
}

func (r memProductRepo) UpdateGTIN(_ context.Context, id uint, gtin string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return fmt.Errorf("product %d not found", id)
	}
	for otherID, other := range r.s.products {
		if otherID != id && other.GTIN != nil && *other.GTIN == gtin {
			return fmt.Errorf("failed to update product gtin: %w", gorm.ErrDuplicatedKey)
		}
	}
	p.GTIN = &gtin
	p.UpdatedAt = utils.UTCNow()
	r.s.products[id] = p
	return nil
}

func (r memProductRepo) ListNeedingGTIN(_ context.Context, afterID uint, limit int) ([]*models.Product, uint, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Product
	last := afterID
	scanned := 0
	for _, id := range sortedKeys(r.s.products) {
		if id <= afterID {
			continue
		}
		if limit > 0 && scanned >= limit {
			break
		}
		p := r.s.products[id]
		if p.IsActive != nil && !*p.IsActive {
			continue
		}
		scanned++
		last = id
		if p.NeedsGTIN() {
			out = append(out, &p)
		}
	}
	return out, last, nil
}

// ---- lots ----

type memLotRepo struct{ s *memStore }

func (r memLotRepo) withProduct(l models.Lot) *models.Lot {
	if p, ok := r.s.products[l.ProductID]; ok {
		l.Product = &p
	}
	return &l
}

func (r memLotRepo) ByID(_ context.Context, id uint) (*models.Lot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.lots[id]
	if !ok {
		return nil, nil
	}
	return r.withProduct(l), nil
}

func (r memLotRepo) ByFilter(_ context.Context, filter models.LotFilter, _ string, limit, offset int) ([]*models.Lot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Lot
	for _, id := range sortedKeys(r.s.lots) {
		l := r.s.lots[id]
		if filter.LotNumber != nil && l.LotNumber != *filter.LotNumber {
			continue
		}
		if filter.ProductID != nil && l.ProductID != *filter.ProductID {
			continue
		}
		if filter.ReceiptID != nil && (l.ReceiptID == nil || *l.ReceiptID != *filter.ReceiptID) {
			continue
		}
		if filter.PackedAfter != nil && l.PackDate.Before(*filter.PackedAfter) {
			continue
		}
		if filter.PackedBefore != nil && l.PackDate.After(*filter.PackedBefore) {
			continue
		}
		out = append(out, r.withProduct(l))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PackDate.Before(out[j].PackDate) })
	return page(out, limit, offset), nil
}

func (r memLotRepo) Save(_ context.Context, l *models.Lot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failLotSave != nil {
		if err := r.s.failLotSave(l); err != nil {
			return err
		}
	}
	for _, existing := range r.s.lots {
		if existing.LotNumber == l.LotNumber {
			return fmt.Errorf("failed to save lot: %w", gorm.ErrDuplicatedKey)
		}
	}
	l.ID = r.s.id()
	l.UUID = uuid.New()
	l.CreatedAt = utils.UTCNow()
	stored := *l
	stored.Product, stored.Receipt = nil, nil
	r.s.lots[l.ID] = stored
	return nil
}

func (r memLotRepo) Count(ctx context.Context, filter models.LotFilter) (int64, error) {
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(items)), err
}

func (r memLotRepo) Exists(ctx context.Context, filter models.LotFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r memLotRepo) ByLotNumber(ctx context.Context, lotNumber string) (*models.Lot, error) {
	items, err := r.ByFilter(ctx, models.LotFilter{LotNumber: &lotNumber}, "", 1, 0)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

func (r memLotRepo) MaxLotSequence(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.reconcileHits++
	var max int64
	for _, l := range r.s.lots {
		if !strings.HasPrefix(l.LotNumber, models.LotNumberPrefix) {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimPrefix(l.LotNumber, models.LotNumberPrefix), 10, 64)
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max, nil
}

// ---- receipts ----

type memReceiptRepo struct{ s *memStore }

func (r memReceiptRepo) ByID(_ context.Context, id uint) (*models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rc, ok := r.s.receipts[id]
	if !ok {
		return nil, nil
	}
	return &rc, nil
}

func (r memReceiptRepo) ByFilter(_ context.Context, filter models.ReceiptFilter, _ string, limit, offset int) ([]*models.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Receipt
	for _, id := range sortedKeys(r.s.receipts) {
		rc := r.s.receipts[id]
		if filter.ReceiptNumber != nil && rc.ReceiptNumber != *filter.ReceiptNumber {
			continue
		}
		out = append(out, &rc)
	}
	return page(out, limit, offset), nil
}

func (r memReceiptRepo) Save(_ context.Context, rc *models.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.receipts {
		if existing.ReceiptNumber == rc.ReceiptNumber {
			return fmt.Errorf("failed to save receipt: %w", gorm.ErrDuplicatedKey)
		}
	}
	rc.ID = r.s.id()
	rc.UUID = uuid.New()
	rc.CreatedAt = utils.UTCNow()
	stored := *rc
	stored.Lots = nil
	r.s.receipts[rc.ID] = stored
	return nil
}

func (r memReceiptRepo) Count(ctx context.Context, filter models.ReceiptFilter) (int64, error) {
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(items)), err
}

func (r memReceiptRepo) Exists(ctx context.Context, filter models.ReceiptFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

func (r memReceiptRepo) ByNumber(ctx context.Context, number int64) (*models.Receipt, error) {
	items, err := r.ByFilter(ctx, models.ReceiptFilter{ReceiptNumber: &number}, "", 1, 0)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	rc := items[0]
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range sortedKeys(r.s.lots) {
		l := r.s.lots[id]
		if l.ReceiptID != nil && *l.ReceiptID == rc.ID {
			rc.Lots = append(rc.Lots, l)
		}
	}
	return rc, nil
}

func (r memReceiptRepo) MaxReceiptNumber(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var max int64
	for _, rc := range r.s.receipts {
		if rc.ReceiptNumber > max {
			max = rc.ReceiptNumber
		}
	}
	return max, nil
}

// ---- settings and audit ----

type memSettingRepo struct{ s *memStore }

func (r memSettingRepo) ByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.settings[key]
	if !ok {
		return nil, nil
	}
	return &models.SystemSetting{Key: key, Value: v}, nil
}

func (r memSettingRepo) Upsert(_ context.Context, key, value string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.settings[key] = value
	return nil
}

type memAuditRepo struct{ s *memStore }

func (r memAuditRepo) Record(_ context.Context, detail models.AuditDetail, actor, requestID *string) error {
	entry, err := models.NewAuditLog(detail, actor, requestID)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failAudit != nil {
		return r.s.failAudit
	}
	entry.ID = r.s.id()
	entry.CreatedAt = utils.UTCNow()
	r.s.audits = append(r.s.audits, *entry)
	return nil
}

func (r memAuditRepo) ListBySubject(ctx context.Context, subject string, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{Subject: &subject}, "", limit, offset)
}

func (r memAuditRepo) ByID(_ context.Context, id uint) (*models.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.audits {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, nil
}

func (r memAuditRepo) ByFilter(_ context.Context, filter models.AuditLogFilter, _ string, limit, offset int) ([]*models.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.AuditLog
	for i := len(r.s.audits) - 1; i >= 0; i-- {
		a := r.s.audits[i]
		if filter.Subject != nil && a.Subject != *filter.Subject {
			continue
		}
		if filter.Action != nil && a.Action != *filter.Action {
			continue
		}
		out = append(out, &a)
	}
	return page(out, limit, offset), nil
}

func (r memAuditRepo) Save(_ context.Context, a *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id()
	r.s.audits = append(r.s.audits, *a)
	return nil
}

func (r memAuditRepo) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	items, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(items)), err
}

func (r memAuditRepo) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	n, err := r.Count(ctx, filter)
	return n > 0, err
}

// ---- collaborators ----

type memPrefixCache struct {
	mu      sync.Mutex
	value   *dto.CompanyPrefixResponse
	deletes int
}

func (c *memPrefixCache) Get(context.Context) (*dto.CompanyPrefixResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil {
		return nil, nil
	}
	v := *c.value
	return &v, nil
}

func (c *memPrefixCache) Set(_ context.Context, value *dto.CompanyPrefixResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := *value
	c.value = &v
	return nil
}

func (c *memPrefixCache) Delete(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
	c.deletes++
	return nil
}

type memPrintQueue struct {
	mu   sync.Mutex
	jobs []dto.LabelPrintJob
	err  error
}

func (q *memPrintQueue) Publish(_ context.Context, job dto.LabelPrintJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memPrintQueue) Close() error { return nil }

type seqJobIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqJobIDs) NextID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("job-%d", g.n)
}

// ---- wiring ----

type testEnv struct {
	store       *memStore
	productRepo memProductRepo
	lotRepo     memLotRepo
	receiptRepo memReceiptRepo
	settingRepo memSettingRepo
	auditRepo   memAuditRepo
	cache       *memPrefixCache
	queue       *memPrintQueue

	prefixes    CompanyPrefixFlow
	sequences   *SequenceIssuerImpl
	gtins       GTINFlow
	lotFlow     LotFlow
	receiptFlow ReceiptFlow
	labelFlow   LabelFlow
}

func newTestEnv(defaultPrefix string) *testEnv {
	s := newMemStore()
	env := &testEnv{
		store:       s,
		productRepo: memProductRepo{s},
		lotRepo:     memLotRepo{s},
		receiptRepo: memReceiptRepo{s},
		settingRepo: memSettingRepo{s},
		auditRepo:   memAuditRepo{s},
		cache:       &memPrefixCache{},
		queue:       &memPrintQueue{},
	}
	env.prefixes = NewCompanyPrefixFlow(env.settingRepo, env.auditRepo, env.cache, s.runTx, defaultPrefix, nil)
	env.sequences = newSequenceIssuer(memCounterRepo{s}, s.runTx, map[string]Reconciler{
		models.SequenceKeyLot:     env.lotRepo.MaxLotSequence,
		models.SequenceKeyReceipt: env.receiptRepo.MaxReceiptNumber,
	}, nil)
	env.sequences.counterRepo = memCounterRepo{s}
	env.gtins = NewGTINFlow(env.productRepo, env.auditRepo, env.prefixes, nil, s.runTx, nil, GTINFlowOptions{RepairBatchSize: 2}, nil)
	env.lotFlow = NewLotFlow(env.productRepo, env.lotRepo, env.auditRepo, env.gtins, env.sequences, s.runTx, nil)
	env.receiptFlow = NewReceiptFlow(env.receiptRepo, env.auditRepo, env.lotFlow, env.sequences, s.runTx, nil)
	env.labelFlow = NewLabelFlow(env.lotRepo, env.auditRepo, services.NewSymbolRenderer(services.SymbolRendererOptions{}), env.queue, &seqJobIDs{}, nil)
	return env
}

func sortedKeys[V any](m map[uint]V) []uint {
	keys := make([]uint, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var errInjected = errors.New("injected failure")

func mustDate(s string) time.Time {
	t, err := utils.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}
