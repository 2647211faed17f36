package businessflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/gs1"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/repository"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	gtinRepairLockKey       = "gs1:gtin_repair"
	defaultRepairBatchSize  = 200
	defaultRepairLockTTL    = 10 * time.Minute
	gtinOriginAssign        = "assign"
	gtinOriginRepair        = "repair"
	gtinOriginImport        = "import"
	gtinOriginLotReceipt    = "lot_receipt"
	spreadsheetColumnSKU    = "sku"
	spreadsheetColumnGTIN   = "gtin"
	spreadsheetHeaderRowNum = 1
)

// GTINFlow assigns, repairs and validates product GTINs.
// A product keeps its GTIN once assigned; only a product without a GTIN, one whose
// check digit is wrong, or an explicit forced repair gets a new value.
type GTINFlow interface {
	Validate(ctx context.Context, req *dto.ValidateGTINRequest) (*dto.ValidateGTINResponse, error)
	Preview(ctx context.Context, req *dto.PreviewGTINRequest) (*dto.PreviewGTINResponse, error)
	AssignToProduct(ctx context.Context, productID uint, req *dto.AssignGTINRequest, metadata *ClientMetadata) (*dto.ProductGTINResponse, error)
	// EnsureGTIN makes sure product carries a valid GTIN, joining the transaction in ctx.
	EnsureGTIN(ctx context.Context, product *models.Product, metadata *ClientMetadata) (*models.Product, error)
	RepairAll(ctx context.Context, metadata *ClientMetadata) (*dto.GTINRepairResponse, error)
	ImportFromSpreadsheet(ctx context.Context, r io.Reader, metadata *ClientMetadata) (*dto.GTINImportResponse, error)
}

// GTINFlowOptions tunes the repair job.
type GTINFlowOptions struct {
	RepairBatchSize int
	RepairLockTTL   time.Duration
}

type GTINFlowImpl struct {
	productRepo repository.ProductRepository
	auditRepo   repository.AuditLogRepository
	prefixes    CompanyPrefixFlow
	generator   *gs1.Generator
	runTx       TxRunner
	locker      RepairLocker
	opts        GTINFlowOptions
	logger      logrus.FieldLogger
}

func NewGTINFlow(
	productRepo repository.ProductRepository,
	auditRepo repository.AuditLogRepository,
	prefixes CompanyPrefixFlow,
	generator *gs1.Generator,
	runTx TxRunner,
	locker RepairLocker,
	opts GTINFlowOptions,
	logger logrus.FieldLogger,
) GTINFlow {
	if generator == nil {
		generator = gs1.NewGenerator()
	}
	if locker == nil {
		locker = NewLocalRepairLocker()
	}
	if opts.RepairBatchSize <= 0 {
		opts.RepairBatchSize = defaultRepairBatchSize
	}
	if opts.RepairLockTTL <= 0 {
		opts.RepairLockTTL = defaultRepairLockTTL
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &GTINFlowImpl{
		productRepo: productRepo,
		auditRepo:   auditRepo,
		prefixes:    prefixes,
		generator:   generator,
		runTx:       runTx,
		locker:      locker,
		opts:        opts,
		logger:      logger,
	}
}

// Validate reports the length predicate and, separately, the check digit.
func (f *GTINFlowImpl) Validate(ctx context.Context, req *dto.ValidateGTINRequest) (*dto.ValidateGTINResponse, error) {
	if req == nil {
		return nil, NewBusinessError("GTIN_REQUIRED", "GTIN is required", ErrValidation)
	}

	resp := &dto.ValidateGTINResponse{
		Input: req.GTIN,
		Valid: gs1.IsValidGTIN(req.GTIN),
	}
	if !resp.Valid {
		resp.Reason = fmt.Sprintf("gtin must contain exactly %d digits", gs1.GTINLength)
		return resp, nil
	}

	normalized, err := gs1.NormalizeGTIN(req.GTIN)
	if err != nil {
		resp.Reason = err.Error()
		return resp, nil
	}
	resp.Normalized = normalized
	resp.CheckDigitValid = gs1.HasValidCheckDigit(normalized)
	if !resp.CheckDigitValid {
		resp.Reason = "check digit does not match"
	}
	return resp, nil
}

// Preview returns the GTIN a SKU holds, or the one it would get if assigned now.
func (f *GTINFlowImpl) Preview(ctx context.Context, req *dto.PreviewGTINRequest) (*dto.PreviewGTINResponse, error) {
	if req == nil || strings.TrimSpace(req.SKU) == "" {
		return nil, NewBusinessError("SKU_REQUIRED", "SKU is required", ErrValidation)
	}
	sku := strings.TrimSpace(req.SKU)

	prefix, err := f.prefixes.CompanyPrefix(ctx)
	if err != nil {
		return nil, err
	}

	product, err := f.productRepo.BySKU(ctx, sku)
	if err != nil {
		return nil, wrapStoreError("PRODUCT_LOOKUP_FAILED", "Failed to look up product", err)
	}
	if product != nil && !product.NeedsGTIN() {
		return &dto.PreviewGTINResponse{SKU: sku, CompanyPrefix: prefix, GTIN: *product.GTIN}, nil
	}

	gtin, err := f.generator.Generate(ctx, prefix, sku, f.productRepo.ExistsByGTIN)
	if err != nil {
		return nil, wrapGS1Error(err)
	}
	return &dto.PreviewGTINResponse{SKU: sku, CompanyPrefix: prefix, GTIN: gtin}, nil
}

func (f *GTINFlowImpl) AssignToProduct(ctx context.Context, productID uint, req *dto.AssignGTINRequest, metadata *ClientMetadata) (*dto.ProductGTINResponse, error) {
	force := req != nil && req.Force
	origin := gtinOriginAssign
	if force {
		origin = gtinOriginRepair
	}

	var resp *dto.ProductGTINResponse
	err := f.runTx(ctx, func(txCtx context.Context) error {
		product, err := f.lockActiveProduct(txCtx, productID)
		if err != nil {
			return err
		}
		resp, err = f.assign(txCtx, product, force, metadata)
		return err
	})
	if err != nil {
		f.countFailure(err)
		utils.LogError(f.logger, "GTINFlow", "AssignToProduct", "failed to assign gtin", productID, err)
		return nil, wrapGS1Error(err)
	}

	if resp.Changed {
		gtinGeneratedTotal.WithLabelValues(origin).Inc()
	}
	return resp, nil
}

func (f *GTINFlowImpl) EnsureGTIN(ctx context.Context, product *models.Product, metadata *ClientMetadata) (*models.Product, error) {
	if product == nil {
		return nil, NewBusinessError("PRODUCT_NOT_FOUND", "Product not found", ErrProductNotFound)
	}
	if !product.NeedsGTIN() {
		return product, nil
	}

	var updated *models.Product
	changed := false
	err := f.runTx(ctx, func(txCtx context.Context) error {
		// Re-read under lock; a concurrent receipt may have assigned one already.
		locked, err := f.lockActiveProduct(txCtx, product.ID)
		if err != nil {
			return err
		}
		item, err := f.assign(txCtx, locked, false, metadata)
		if err != nil {
			return err
		}
		updated, changed = locked, item.Changed
		return nil
	})
	if err != nil {
		f.countFailure(err)
		return nil, wrapGS1Error(err)
	}

	if changed {
		gtinGeneratedTotal.WithLabelValues(gtinOriginLotReceipt).Inc()
	}
	return updated, nil
}

// RepairAll walks the catalog and assigns GTINs to products that lack a valid one.
// Each product is repaired in its own transaction so one failure does not stop the run.
func (f *GTINFlowImpl) RepairAll(ctx context.Context, metadata *ClientMetadata) (*dto.GTINRepairResponse, error) {
	lease, err := f.locker.TryLock(ctx, gtinRepairLockKey, f.opts.RepairLockTTL)
	if err != nil {
		if errors.Is(err, ErrRepairInProgress) {
			return nil, NewBusinessError("GTIN_REPAIR_IN_PROGRESS", "A GTIN repair is already running", err)
		}
		return nil, NewBusinessError("GTIN_REPAIR_LOCK_FAILED", "Failed to acquire GTIN repair lock", err)
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			f.logger.WithError(err).Warn("failed to release gtin repair lock")
		}
	}()

	started := time.Now()
	resp := &dto.GTINRepairResponse{Items: []dto.ProductGTINResponse{}}

	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return resp, NewBusinessError("GTIN_REPAIR_CANCELLED", "GTIN repair was cancelled", err)
		}

		batch, lastID, err := f.productRepo.ListNeedingGTIN(ctx, afterID, f.opts.RepairBatchSize)
		if err != nil {
			return resp, wrapStoreError("GTIN_REPAIR_SCAN_FAILED", "Failed to scan products for GTIN repair", err)
		}
		if lastID == afterID {
			break
		}
		afterID = lastID

		for _, candidate := range batch {
			resp.Scanned++
			item, err := f.repairOne(ctx, candidate.ID, metadata)
			if err != nil {
				f.countFailure(err)
				utils.LogError(f.logger, "GTINFlow", "RepairAll", "failed to repair product gtin", candidate.SKU, err)
				resp.Failed++
				resp.Errors = append(resp.Errors, dto.GTINRepairFailure{
					ProductID: candidate.ID,
					SKU:       candidate.SKU,
					Error:     err.Error(),
				})
				continue
			}
			if item != nil && item.Changed {
				gtinGeneratedTotal.WithLabelValues(gtinOriginRepair).Inc()
				resp.Repaired++
				resp.Items = append(resp.Items, *item)
			}
		}

		if err := lease.Refresh(ctx); err != nil {
			if errors.Is(err, ErrRepairLockLost) {
				return resp, NewBusinessError("GTIN_REPAIR_LOCK_LOST", "GTIN repair lock expired before the run finished", err)
			}
			return resp, NewBusinessError("GTIN_REPAIR_LOCK_FAILED", "Failed to refresh GTIN repair lock", err)
		}
	}

	f.logger.WithFields(logrus.Fields{
		"scanned":  resp.Scanned,
		"repaired": resp.Repaired,
		"failed":   resp.Failed,
		"duration": time.Since(started).String(),
	}).Info("gtin repair finished")

	return resp, nil
}

func (f *GTINFlowImpl) repairOne(ctx context.Context, productID uint, metadata *ClientMetadata) (*dto.ProductGTINResponse, error) {
	var item *dto.ProductGTINResponse
	err := f.runTx(ctx, func(txCtx context.Context) error {
		product, err := f.productRepo.ByIDForUpdate(txCtx, productID)
		if err != nil {
			return err
		}
		if product == nil {
			return nil
		}
		item, err = f.assign(txCtx, product, false, metadata)
		return err
	})
	return item, err
}

// ImportFromSpreadsheet reads a workbook whose first sheet has a "sku" column and an
// optional "gtin" column. Rows with a GTIN store it after strict validation; rows
// without one get a generated GTIN if the product needs it.
func (f *GTINFlowImpl) ImportFromSpreadsheet(ctx context.Context, r io.Reader, metadata *ClientMetadata) (*dto.GTINImportResponse, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, NewBusinessError("SPREADSHEET_INVALID", "Failed to read spreadsheet", errors.Join(ErrSpreadsheetFormat, err))
	}
	defer func() { _ = xl.Close() }()

	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, NewBusinessError("SPREADSHEET_INVALID", "Spreadsheet has no sheets", ErrSpreadsheetFormat)
	}
	rows, err := xl.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, NewBusinessError("SPREADSHEET_INVALID", "Failed to read spreadsheet rows", errors.Join(ErrSpreadsheetFormat, err))
	}
	if len(rows) < spreadsheetHeaderRowNum {
		return nil, NewBusinessError("SPREADSHEET_INVALID", "Spreadsheet has no header row", ErrSpreadsheetFormat)
	}

	skuCol, gtinCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case spreadsheetColumnSKU:
			skuCol = i
		case spreadsheetColumnGTIN:
			gtinCol = i
		}
	}
	if skuCol < 0 {
		return nil, NewBusinessError("SPREADSHEET_INVALID", "Spreadsheet must have a sku column", ErrSpreadsheetFormat)
	}

	resp := &dto.GTINImportResponse{Results: []dto.GTINImportRowResult{}}
	for i, row := range rows[1:] {
		rowNum := i + spreadsheetHeaderRowNum + 1
		sku := cellAt(row, skuCol)
		gtin := cellAt(row, gtinCol)
		if sku == "" && gtin == "" {
			continue
		}

		resp.Rows++
		result := f.importRow(ctx, rowNum, sku, gtin, metadata)
		switch result.Status {
		case dto.GTINImportStatusAssigned:
			resp.Assigned++
			gtinGeneratedTotal.WithLabelValues(gtinOriginImport).Inc()
		case dto.GTINImportStatusFailed:
			resp.Failed++
		}
		resp.Results = append(resp.Results, result)
	}

	f.logger.WithFields(logrus.Fields{
		"rows":     resp.Rows,
		"assigned": resp.Assigned,
		"failed":   resp.Failed,
	}).Info("gtin import finished")

	return resp, nil
}

func (f *GTINFlowImpl) importRow(ctx context.Context, rowNum int, sku, rawGTIN string, metadata *ClientMetadata) dto.GTINImportRowResult {
	result := dto.GTINImportRowResult{Row: rowNum, SKU: sku}
	fail := func(err error) dto.GTINImportRowResult {
		result.Status = dto.GTINImportStatusFailed
		result.Error = err.Error()
		return result
	}

	if sku == "" {
		return fail(fmt.Errorf("%w: sku is required", ErrValidation))
	}

	var gtin string
	if rawGTIN != "" {
		normalized, err := gs1.NormalizeGTIN(rawGTIN)
		if err != nil {
			return fail(err)
		}
		if gtin, err = gs1.ValidateGTIN(normalized); err != nil {
			return fail(err)
		}
	}

	err := f.runTx(ctx, func(txCtx context.Context) error {
		found, err := f.productRepo.BySKU(txCtx, sku)
		if err != nil {
			return err
		}
		if found == nil {
			return ErrProductNotFound
		}
		product, err := f.productRepo.ByIDForUpdate(txCtx, found.ID)
		if err != nil {
			return err
		}
		if product == nil {
			return ErrProductNotFound
		}

		if gtin == "" {
			item, err := f.assign(txCtx, product, false, metadata)
			if err != nil {
				return err
			}
			result.GTIN = item.GTIN
			result.Status = dto.GTINImportStatusUnchanged
			if item.Changed {
				result.Status = dto.GTINImportStatusAssigned
			}
			return nil
		}

		result.GTIN = gtin
		if utils.StringOrEmpty(product.GTIN) == gtin {
			result.Status = dto.GTINImportStatusUnchanged
			return nil
		}
		taken, err := f.productRepo.ExistsByGTIN(txCtx, gtin)
		if err != nil {
			return err
		}
		if taken {
			return ErrGTINAlreadyAssigned
		}
		if err := f.productRepo.UpdateGTIN(txCtx, product.ID, gtin); err != nil {
			if repository.IsDuplicateKey(err) {
				return errors.Join(ErrGTINAlreadyAssigned, err)
			}
			return err
		}
		detail := models.GTINImported{SKU: product.SKU, Previous: product.GTIN, GTIN: gtin, Row: rowNum}
		if err := f.auditRepo.Record(txCtx, detail, metadata.actorPtr(), metadata.requestIDPtr()); err != nil {
			return err
		}
		result.Status = dto.GTINImportStatusAssigned
		return nil
	})
	if err != nil {
		return fail(err)
	}
	return result
}

// assign generates and stores a GTIN for a locked product. It must run inside a transaction.
func (f *GTINFlowImpl) assign(ctx context.Context, product *models.Product, force bool, metadata *ClientMetadata) (*dto.ProductGTINResponse, error) {
	previous := product.GTIN
	resp := &dto.ProductGTINResponse{
		ProductID: product.ID,
		SKU:       product.SKU,
		GTIN:      utils.StringOrEmpty(previous),
		Previous:  previous,
	}
	if !force && !product.NeedsGTIN() {
		return resp, nil
	}

	prefix, err := f.prefixes.CompanyPrefix(ctx)
	if err != nil {
		return nil, err
	}
	gtin, err := f.generator.Generate(ctx, prefix, product.SKU, f.productRepo.ExistsByGTIN)
	if err != nil {
		return nil, err
	}

	if err := f.productRepo.UpdateGTIN(ctx, product.ID, gtin); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, NewBusinessError("GTIN_CONFLICT", "GTIN was taken by a concurrent assignment", errors.Join(ErrConcurrencyConflict, err))
		}
		return nil, err
	}

	var detail models.AuditDetail = models.GTINAssigned{SKU: product.SKU, GTIN: gtin}
	if previous != nil {
		detail = models.GTINRepaired{SKU: product.SKU, Previous: previous, GTIN: gtin}
	}
	if err := f.auditRepo.Record(ctx, detail, metadata.actorPtr(), metadata.requestIDPtr()); err != nil {
		return nil, err
	}

	product.GTIN = &gtin
	resp.GTIN = gtin
	resp.Changed = true

	f.logger.WithFields(logrus.Fields{
		"sku":      product.SKU,
		"gtin":     gtin,
		"previous": utils.StringOrEmpty(previous),
	}).Info("gtin assigned")
	return resp, nil
}

func (f *GTINFlowImpl) lockActiveProduct(ctx context.Context, productID uint) (*models.Product, error) {
	product, err := f.productRepo.ByIDForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, NewBusinessError("PRODUCT_NOT_FOUND", "Product not found", ErrProductNotFound)
	}
	if product.IsActive != nil && !*product.IsActive {
		return nil, NewBusinessError("PRODUCT_INACTIVE", "Product is inactive", ErrProductInactive)
	}
	return product, nil
}

func (f *GTINFlowImpl) countFailure(err error) {
	reason := "store"
	switch {
	case errors.Is(err, ErrExhaustedRetry):
		reason = "exhausted"
	case errors.Is(err, ErrConfiguration):
		reason = "configuration"
	case errors.Is(err, ErrConcurrencyConflict):
		reason = "conflict"
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrProductInactive):
		reason = "product"
	}
	gtinFailuresTotal.WithLabelValues(reason).Inc()
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
