package businessflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/repository"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// LotFlow records received lots and hands back their labels.
type LotFlow interface {
	ReceiveLot(ctx context.Context, req *dto.ReceiveLotRequest, metadata *ClientMetadata) (*dto.ReceiveLotResponse, error)
	// ReceiveLotInTx creates one lot inside the transaction carried by ctx. receipt may be nil.
	ReceiveLotInTx(ctx context.Context, req *dto.ReceiveLotRequest, receipt *models.Receipt, metadata *ClientMetadata) (*dto.ReceiveLotResponse, error)
	ByLotNumber(ctx context.Context, lotNumber string) (*dto.LotDTO, error)
}

type LotFlowImpl struct {
	productRepo repository.ProductRepository
	lotRepo     repository.LotRepository
	auditRepo   repository.AuditLogRepository
	gtins       GTINFlow
	sequences   SequenceIssuer
	runTx       TxRunner
	logger      logrus.FieldLogger
}

func NewLotFlow(
	productRepo repository.ProductRepository,
	lotRepo repository.LotRepository,
	auditRepo repository.AuditLogRepository,
	gtins GTINFlow,
	sequences SequenceIssuer,
	runTx TxRunner,
	logger logrus.FieldLogger,
) LotFlow {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &LotFlowImpl{
		productRepo: productRepo,
		lotRepo:     lotRepo,
		auditRepo:   auditRepo,
		gtins:       gtins,
		sequences:   sequences,
		runTx:       runTx,
		logger:      logger,
	}
}

type lotInput struct {
	quantity decimal.Decimal
	uom      string
	packDate time.Time
	expiry   *time.Time
}

func (f *LotFlowImpl) ReceiveLot(ctx context.Context, req *dto.ReceiveLotRequest, metadata *ClientMetadata) (*dto.ReceiveLotResponse, error) {
	var resp *dto.ReceiveLotResponse
	err := f.runTx(ctx, func(txCtx context.Context) error {
		var err error
		resp, err = f.ReceiveLotInTx(txCtx, req, nil, metadata)
		return err
	})
	if err != nil {
		utils.LogError(f.logger, "LotFlow", "ReceiveLot", "failed to receive lot", req, err)
		return nil, wrapGS1Error(err)
	}

	f.logger.WithFields(logrus.Fields{
		"lot_number": resp.Lot.LotNumber,
		"sku":        resp.Lot.SKU,
		"gtin":       resp.Label.GTIN,
	}).Info("lot received")
	return resp, nil
}

// ReceiveLotInTx runs the receive steps in order: ensure the product GTIN, issue the lot
// number, insert the lot, then audit. Nothing is committed here.
func (f *LotFlowImpl) ReceiveLotInTx(ctx context.Context, req *dto.ReceiveLotRequest, receipt *models.Receipt, metadata *ClientMetadata) (*dto.ReceiveLotResponse, error) {
	if !repository.InTransaction(ctx) {
		return nil, repository.ErrTransactionRequired
	}

	input, err := parseLotRequest(req)
	if err != nil {
		return nil, err
	}

	product, err := f.resolveProduct(ctx, req)
	if err != nil {
		return nil, err
	}

	product, err = f.gtins.EnsureGTIN(ctx, product, metadata)
	if err != nil {
		return nil, err
	}

	lotNumber, err := f.sequences.NextLotNumber(ctx)
	if err != nil {
		return nil, err
	}

	lot := &models.Lot{
		LotNumber:     lotNumber,
		ProductID:     product.ID,
		Quantity:      input.quantity,
		UnitOfMeasure: input.uom,
		PackDate:      input.packDate,
		ExpiryDate:    input.expiry,
	}
	var receiptNumber *int64
	if receipt != nil {
		lot.ReceiptID = &receipt.ID
		receiptNumber = &receipt.ReceiptNumber
	}

	if err := f.lotRepo.Save(ctx, lot); err != nil {
		return nil, wrapStoreError("LOT_CREATE_FAILED", "Failed to create lot", err)
	}
	lot.Product = product

	label, err := ToLabelDTO(*lot, *product)
	if err != nil {
		return nil, err
	}

	detail := models.LotCreated{
		LotNumber:     lot.LotNumber,
		ProductID:     product.ID,
		GTIN:          label.GTIN,
		VoicePick:     label.VoicePick.Code,
		ReceiptNumber: receiptNumber,
	}
	if err := f.auditRepo.Record(ctx, detail, metadata.actorPtr(), metadata.requestIDPtr()); err != nil {
		return nil, wrapStoreError("AUDIT_WRITE_FAILED", "Failed to record lot creation", err)
	}

	lotsReceivedTotal.Inc()
	return &dto.ReceiveLotResponse{Lot: ToLotDTO(*lot), Label: label}, nil
}

func (f *LotFlowImpl) ByLotNumber(ctx context.Context, lotNumber string) (*dto.LotDTO, error) {
	lot, err := f.findLot(ctx, lotNumber)
	if err != nil {
		return nil, err
	}
	out := ToLotDTO(*lot)
	return &out, nil
}

func (f *LotFlowImpl) findLot(ctx context.Context, lotNumber string) (*models.Lot, error) {
	return findLot(ctx, f.lotRepo, lotNumber)
}

func findLot(ctx context.Context, lotRepo repository.LotRepository, lotNumber string) (*models.Lot, error) {
	lotNumber = strings.TrimSpace(lotNumber)
	if lotNumber == "" {
		return nil, NewBusinessError("LOT_NUMBER_REQUIRED", "Lot number is required", ErrValidation)
	}
	lot, err := lotRepo.ByLotNumber(ctx, lotNumber)
	if err != nil {
		return nil, wrapStoreError("LOT_LOOKUP_FAILED", "Failed to look up lot", err)
	}
	if lot == nil || lot.Product == nil {
		return nil, NewBusinessError("LOT_NOT_FOUND", "Lot not found", ErrLotNotFound)
	}
	return lot, nil
}

func (f *LotFlowImpl) resolveProduct(ctx context.Context, req *dto.ReceiveLotRequest) (*models.Product, error) {
	var (
		product *models.Product
		err     error
	)
	switch {
	case req.ProductID != nil:
		product, err = f.productRepo.ByID(ctx, *req.ProductID)
	case req.SKU != nil && strings.TrimSpace(*req.SKU) != "":
		product, err = f.productRepo.BySKU(ctx, strings.TrimSpace(*req.SKU))
	default:
		return nil, NewBusinessError("PRODUCT_REQUIRED", "Product id or SKU is required", ErrValidation)
	}
	if err != nil {
		return nil, wrapStoreError("PRODUCT_LOOKUP_FAILED", "Failed to look up product", err)
	}
	if product == nil {
		return nil, NewBusinessError("PRODUCT_NOT_FOUND", "Product not found", ErrProductNotFound)
	}
	if product.IsActive != nil && !*product.IsActive {
		return nil, NewBusinessError("PRODUCT_INACTIVE", "Product is inactive", ErrProductInactive)
	}
	return product, nil
}

func parseLotRequest(req *dto.ReceiveLotRequest) (*lotInput, error) {
	if req == nil {
		return nil, NewBusinessError("LOT_REQUEST_REQUIRED", "Lot details are required", ErrValidation)
	}

	quantity, err := decimal.NewFromString(strings.TrimSpace(req.Quantity))
	if err != nil {
		return nil, NewBusinessError("QUANTITY_INVALID", "Quantity must be a decimal number", errors.Join(ErrValidation, err))
	}
	if !quantity.IsPositive() {
		return nil, NewBusinessError("QUANTITY_INVALID", "Quantity must be greater than zero", errors.Join(ErrValidation, ErrQuantityInvalid))
	}

	uom := strings.ToUpper(strings.TrimSpace(req.UnitOfMeasure))
	if uom == "" {
		uom = utils.DefaultUnitOfMeasure
	}

	packDate, err := utils.ParseDate(strings.TrimSpace(req.PackDate))
	if err != nil {
		return nil, NewBusinessError("PACK_DATE_INVALID", "Pack date must be YYYY-MM-DD", errors.Join(ErrValidation, err))
	}

	input := &lotInput{quantity: quantity, uom: uom, packDate: packDate}
	if req.ExpiryDate != nil && strings.TrimSpace(*req.ExpiryDate) != "" {
		expiry, err := utils.ParseDate(strings.TrimSpace(*req.ExpiryDate))
		if err != nil {
			return nil, NewBusinessError("EXPIRY_DATE_INVALID", "Expiry date must be YYYY-MM-DD", errors.Join(ErrValidation, err))
		}
		if expiry.Before(packDate) {
			return nil, NewBusinessError("EXPIRY_BEFORE_PACK_DATE", "Expiry date is before pack date", errors.Join(ErrValidation, ErrExpiryBeforePackDate))
		}
		input.expiry = &expiry
	}
	return input, nil
}
