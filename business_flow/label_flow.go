package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/app/services"
	"github.com/covxx/pelattahub-sub002/gs1"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/repository"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const lotExportSheet = "Lots"

var lotExportHeader = []any{
	"Lot Number", "SKU", "Product", "GTIN", "Pack Date", "Expiry Date",
	"Quantity", "Unit", "Voice Pick", "Small", "Large", "Barcode", "Human Readable",
}

// LabelFlow produces everything printed on, or checked against, a lot label.
type LabelFlow interface {
	BuildLabel(ctx context.Context, lotNumber string) (*dto.LabelDTO, error)
	RenderLabelPNG(ctx context.Context, lotNumber, symbology string) ([]byte, error)
	VerifyPick(ctx context.Context, lotNumber string, req *dto.VerifyPickRequest) (*dto.VerifyPickResponse, error)
	ExportLots(ctx context.Context, req *dto.ExportLotsRequest) ([]byte, error)
	QueuePrint(ctx context.Context, lotNumber string, req *dto.PrintLabelRequest, metadata *ClientMetadata) (*dto.PrintLabelResponse, error)
}

type LabelFlowImpl struct {
	lotRepo   repository.LotRepository
	auditRepo repository.AuditLogRepository
	renderer  services.SymbolRenderer
	queue     services.PrintQueue
	jobIDs    services.JobIDGenerator
	logger    logrus.FieldLogger
}

// NewLabelFlow builds the label flow. queue may be nil when no print transport is
// configured; QueuePrint then fails with ErrPrintQueueOffline.
func NewLabelFlow(
	lotRepo repository.LotRepository,
	auditRepo repository.AuditLogRepository,
	renderer services.SymbolRenderer,
	queue services.PrintQueue,
	jobIDs services.JobIDGenerator,
	logger logrus.FieldLogger,
) LabelFlow {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &LabelFlowImpl{
		lotRepo:   lotRepo,
		auditRepo: auditRepo,
		renderer:  renderer,
		queue:     queue,
		jobIDs:    jobIDs,
		logger:    logger,
	}
}

func (f *LabelFlowImpl) BuildLabel(ctx context.Context, lotNumber string) (*dto.LabelDTO, error) {
	_, label, err := f.label(ctx, lotNumber)
	if err != nil {
		return nil, err
	}
	return label, nil
}

func (f *LabelFlowImpl) label(ctx context.Context, lotNumber string) (*models.Lot, *dto.LabelDTO, error) {
	lot, err := findLot(ctx, f.lotRepo, lotNumber)
	if err != nil {
		return nil, nil, err
	}
	if lot.Product.NeedsGTIN() {
		return nil, nil, NewBusinessError("PRODUCT_NEEDS_GTIN", "Product of this lot has no valid GTIN", ErrProductNeedsGTIN)
	}
	label, err := ToLabelDTO(*lot, *lot.Product)
	if err != nil {
		return nil, nil, wrapGS1Error(err)
	}
	return lot, &label, nil
}

func (f *LabelFlowImpl) RenderLabelPNG(ctx context.Context, lotNumber, symbology string) ([]byte, error) {
	sym, err := services.ParseSymbology(strings.ToLower(strings.TrimSpace(symbology)))
	if err != nil {
		return nil, NewBusinessError("SYMBOLOGY_UNSUPPORTED", "Unsupported symbology", errors.Join(ErrValidation, err))
	}

	lot, label, err := f.label(ctx, lotNumber)
	if err != nil {
		return nil, err
	}

	var expiry string
	if lot.ExpiryDate != nil {
		expiry = lot.ExpiryDate.UTC().Format(gs1.PackDateLayout)
	}
	payload, err := gs1.Assemble(label.GTIN, label.LotNumber, expiry)
	if err != nil {
		return nil, wrapGS1Error(err)
	}

	image, err := f.renderer.Render(ctx, payload, sym)
	if err != nil {
		utils.LogError(f.logger, "LabelFlow", "RenderLabelPNG", "failed to render symbol", lotNumber, err)
		return nil, NewBusinessError("LABEL_RENDER_FAILED", "Failed to render label", err)
	}
	return image, nil
}

// VerifyPick checks what a picker scanned or said against the lot label. A scanned
// barcode takes precedence over a spoken code when both are given. A mismatch is a
// normal result, not an error.
func (f *LabelFlowImpl) VerifyPick(ctx context.Context, lotNumber string, req *dto.VerifyPickRequest) (*dto.VerifyPickResponse, error) {
	var spoken, scanned *string
	if req != nil {
		spoken = utils.TrimToNil(utils.StringOrEmpty(req.SpokenCode))
		scanned = utils.TrimToNil(utils.StringOrEmpty(req.ScannedBarcode))
	}
	if spoken == nil && scanned == nil {
		return nil, NewBusinessError("PICK_INPUT_REQUIRED", "Spoken code or scanned barcode is required", errors.Join(ErrValidation, ErrPickInputRequired))
	}

	_, label, err := f.label(ctx, lotNumber)
	if err != nil {
		return nil, err
	}

	resp := &dto.VerifyPickResponse{LotNumber: label.LotNumber}
	if scanned != nil {
		resp.Method = dto.PickMethodScan
		resp.Match, resp.Reason = matchScan(*scanned, label)
	} else {
		resp.Method = dto.PickMethodVoice
		resp.Match = gs1.ValidateVoicePick(*spoken, label.VoicePick.Code)
		if !resp.Match {
			resp.Reason = "voice pick code does not match"
		}
	}

	result := "match"
	if !resp.Match {
		result = "mismatch"
		f.logger.WithFields(logrus.Fields{
			"lot_number": label.LotNumber,
			"method":     resp.Method,
			"reason":     resp.Reason,
		}).Warn("pick verification failed")
	}
	voicePickChecksTotal.WithLabelValues(resp.Method, result).Inc()
	return resp, nil
}

func matchScan(scanned string, label *dto.LabelDTO) (bool, string) {
	scan, err := gs1.Parse(scanned)
	if err != nil {
		return false, err.Error()
	}
	if scan.GTIN != label.GTIN {
		return false, fmt.Sprintf("scanned gtin %s, expected %s", scan.GTIN, label.GTIN)
	}
	if scan.LotNumber == "" {
		return false, "barcode carries no lot number"
	}
	if scan.LotNumber != label.LotNumber {
		return false, fmt.Sprintf("scanned lot %s, expected %s", scan.LotNumber, label.LotNumber)
	}
	return true, ""
}

// ExportLots writes the lots matching req, with their label data, to an xlsx workbook.
func (f *LabelFlowImpl) ExportLots(ctx context.Context, req *dto.ExportLotsRequest) ([]byte, error) {
	filter, err := exportFilter(req)
	if err != nil {
		return nil, err
	}

	lots, err := f.lotRepo.ByFilter(ctx, filter, "pack_date ASC, id ASC", utils.MaxExportRows+1, 0)
	if err != nil {
		return nil, wrapStoreError("LOT_EXPORT_FAILED", "Failed to list lots", err)
	}
	if len(lots) > utils.MaxExportRows {
		return nil, NewBusinessErrorf("EXPORT_TOO_LARGE", "Export is limited to %d lots, narrow the filter", ErrValidation, utils.MaxExportRows)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), lotExportSheet); err != nil {
		return nil, NewBusinessError("LOT_EXPORT_FAILED", "Failed to prepare workbook", err)
	}
	if err := xl.SetSheetRow(lotExportSheet, "A1", &lotExportHeader); err != nil {
		return nil, NewBusinessError("LOT_EXPORT_FAILED", "Failed to write header", err)
	}

	for i, lot := range lots {
		record := exportRecord(lot)
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := xl.SetSheetRow(lotExportSheet, cellRef, &record); err != nil {
			return nil, NewBusinessError("LOT_EXPORT_FAILED", "Failed to write lot row", err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("LOT_EXPORT_FAILED", "Failed to write workbook", err)
	}

	f.logger.WithField("lots", len(lots)).Info("lot export generated")
	return buf.Bytes(), nil
}

// exportRecord flattens a lot into one spreadsheet row. Label columns stay empty for a
// product that still waits for a GTIN.
func exportRecord(lot *models.Lot) []any {
	record := []any{lot.LotNumber, "", "", "", lot.PackDate.UTC().Format(utils.DateLayout), "",
		lot.Quantity.String(), lot.UnitOfMeasure, "", "", "", "", ""}
	if lot.ExpiryDate != nil {
		record[5] = lot.ExpiryDate.UTC().Format(utils.DateLayout)
	}
	if lot.Product == nil {
		return record
	}
	record[1], record[2] = lot.Product.SKU, lot.Product.Name
	if lot.Product.NeedsGTIN() {
		return record
	}
	label, err := ToLabelDTO(*lot, *lot.Product)
	if err != nil {
		return record
	}
	record[3] = label.GTIN
	record[8], record[9], record[10] = label.VoicePick.Code, label.VoicePick.Small, label.VoicePick.Large
	record[11], record[12] = label.Barcode, label.HumanReadable
	return record
}

func exportFilter(req *dto.ExportLotsRequest) (models.LotFilter, error) {
	var filter models.LotFilter
	if req == nil {
		return filter, nil
	}
	filter.ProductID = req.ProductID
	filter.ReceiptID = req.ReceiptID

	if s := utils.TrimToNil(utils.StringOrEmpty(req.PackedFrom)); s != nil {
		from, err := utils.ParseDate(*s)
		if err != nil {
			return filter, NewBusinessError("PACKED_FROM_INVALID", "packed_from must be YYYY-MM-DD", errors.Join(ErrValidation, err))
		}
		filter.PackedAfter = &from
	}
	if s := utils.TrimToNil(utils.StringOrEmpty(req.PackedTo)); s != nil {
		to, err := utils.ParseDate(*s)
		if err != nil {
			return filter, NewBusinessError("PACKED_TO_INVALID", "packed_to must be YYYY-MM-DD", errors.Join(ErrValidation, err))
		}
		filter.PackedBefore = &to
	}
	if filter.PackedAfter != nil && filter.PackedBefore != nil && filter.PackedAfter.After(*filter.PackedBefore) {
		return filter, NewBusinessError("START_DATE_AFTER_END_DATE", "packed_from cannot be after packed_to", errors.Join(ErrValidation, ErrStartDateAfterEndDate))
	}
	return filter, nil
}

// QueuePrint publishes a print job for the lot label. The audit entry is written after
// the broker accepted the job.
func (f *LabelFlowImpl) QueuePrint(ctx context.Context, lotNumber string, req *dto.PrintLabelRequest, metadata *ClientMetadata) (*dto.PrintLabelResponse, error) {
	if f.queue == nil {
		return nil, NewBusinessError("PRINT_QUEUE_OFFLINE", "Label printing is not configured", ErrPrintQueueOffline)
	}
	if req == nil || req.Copies < 1 || req.Copies > utils.MaxPrintCopies {
		return nil, NewBusinessErrorf("COPIES_OUT_OF_RANGE", "Copies must be between 1 and %d", errors.Join(ErrValidation, ErrCopiesOutOfRange), utils.MaxPrintCopies)
	}

	_, label, err := f.label(ctx, lotNumber)
	if err != nil {
		return nil, err
	}

	queuedAt := utils.UTCNow()
	job := dto.LabelPrintJob{
		JobID:     f.jobIDs.NextID(),
		Printer:   strings.TrimSpace(req.Printer),
		Copies:    req.Copies,
		Label:     *label,
		RequestID: utils.StringOrEmpty(metadata.requestIDPtr()),
		QueuedAt:  queuedAt.Format(time.RFC3339),
	}
	if err := f.queue.Publish(ctx, job); err != nil {
		utils.LogError(f.logger, "LabelFlow", "QueuePrint", "failed to publish print job", job.JobID, err)
		return nil, NewBusinessError("PRINT_QUEUE_UNAVAILABLE", "Failed to queue label print job", errors.Join(ErrPrintQueueOffline, err))
	}
	labelPrintJobsTotal.Inc()

	detail := models.LabelPrintQueued{LotNumber: label.LotNumber, JobID: job.JobID, Copies: job.Copies}
	if err := f.auditRepo.Record(ctx, detail, metadata.actorPtr(), metadata.requestIDPtr()); err != nil {
		f.logger.WithError(err).WithField("job_id", job.JobID).Warn("print job queued but audit entry failed")
	}

	f.logger.WithFields(logrus.Fields{
		"job_id":     job.JobID,
		"lot_number": label.LotNumber,
		"copies":     job.Copies,
	}).Info("label print job queued")

	return &dto.PrintLabelResponse{
		JobID:     job.JobID,
		LotNumber: label.LotNumber,
		Copies:    job.Copies,
		QueuedAt:  job.QueuedAt,
	}, nil
}
