package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/repository"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/sirupsen/logrus"
)

// ReceiptFlow records deliveries. A receipt and all of its lots commit together or not at all.
type ReceiptFlow interface {
	CreateReceipt(ctx context.Context, req *dto.CreateReceiptRequest, metadata *ClientMetadata) (*dto.ReceiptDTO, error)
	ByNumber(ctx context.Context, receiptNumber int64) (*dto.ReceiptDTO, error)
}

type ReceiptFlowImpl struct {
	receiptRepo repository.ReceiptRepository
	auditRepo   repository.AuditLogRepository
	lots        LotFlow
	sequences   SequenceIssuer
	runTx       TxRunner
	logger      logrus.FieldLogger
}

func NewReceiptFlow(
	receiptRepo repository.ReceiptRepository,
	auditRepo repository.AuditLogRepository,
	lots LotFlow,
	sequences SequenceIssuer,
	runTx TxRunner,
	logger logrus.FieldLogger,
) ReceiptFlow {
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &ReceiptFlowImpl{
		receiptRepo: receiptRepo,
		auditRepo:   auditRepo,
		lots:        lots,
		sequences:   sequences,
		runTx:       runTx,
		logger:      logger,
	}
}

func (f *ReceiptFlowImpl) CreateReceipt(ctx context.Context, req *dto.CreateReceiptRequest, metadata *ClientMetadata) (*dto.ReceiptDTO, error) {
	if req == nil || strings.TrimSpace(req.VendorName) == "" {
		return nil, NewBusinessError("VENDOR_REQUIRED", "Vendor name is required", ErrValidation)
	}
	if len(req.Lots) == 0 {
		return nil, NewBusinessError("LOTS_REQUIRED", "At least one lot is required", ErrValidation)
	}
	if len(req.Lots) > utils.MaxLotsPerReceipt {
		return nil, NewBusinessErrorf("TOO_MANY_LOTS", "A receipt holds at most %d lots", errors.Join(ErrValidation, ErrTooManyLots), utils.MaxLotsPerReceipt)
	}

	receivedAt := utils.UTCNow()
	if req.ReceivedAt != nil && strings.TrimSpace(*req.ReceivedAt) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.ReceivedAt))
		if err != nil {
			return nil, NewBusinessError("RECEIVED_AT_INVALID", "Received at must be an RFC 3339 timestamp", errors.Join(ErrValidation, err))
		}
		receivedAt = parsed.UTC()
	}

	var result dto.ReceiptDTO
	err := f.runTx(ctx, func(txCtx context.Context) error {
		number, err := f.sequences.NextReceiptNumber(txCtx)
		if err != nil {
			return err
		}

		receipt := &models.Receipt{
			ReceiptNumber:   number,
			VendorName:      strings.TrimSpace(req.VendorName),
			ReferenceNumber: trimPtr(req.ReferenceNumber),
			ReceivedAt:      receivedAt,
		}
		if err := f.receiptRepo.Save(txCtx, receipt); err != nil {
			return wrapStoreError("RECEIPT_CREATE_FAILED", "Failed to create receipt", err)
		}

		lots := make([]dto.LotDTO, 0, len(req.Lots))
		labels := make([]dto.LabelDTO, 0, len(req.Lots))
		lotNumbers := make([]string, 0, len(req.Lots))
		for i := range req.Lots {
			resp, err := f.lots.ReceiveLotInTx(txCtx, &req.Lots[i], receipt, metadata)
			if err != nil {
				return lotFailure(i+1, err)
			}
			lots = append(lots, resp.Lot)
			labels = append(labels, resp.Label)
			lotNumbers = append(lotNumbers, resp.Lot.LotNumber)
		}

		detail := models.ReceiptCreated{
			ReceiptNumber: number,
			VendorName:    receipt.VendorName,
			LotNumbers:    lotNumbers,
		}
		if err := f.auditRepo.Record(txCtx, detail, metadata.actorPtr(), metadata.requestIDPtr()); err != nil {
			return wrapStoreError("AUDIT_WRITE_FAILED", "Failed to record receipt creation", err)
		}

		result = ToReceiptDTO(*receipt)
		result.Lots = lots
		result.Labels = labels
		return nil
	})
	if err != nil {
		utils.LogError(f.logger, "ReceiptFlow", "CreateReceipt", "failed to create receipt", req.VendorName, err)
		return nil, wrapGS1Error(err)
	}

	receiptsCreatedTotal.Inc()
	f.logger.WithFields(logrus.Fields{
		"receipt_number": result.ReceiptNumber,
		"vendor":         result.VendorName,
		"lots":           len(result.Lots),
	}).Info("receipt created")
	return &result, nil
}

func (f *ReceiptFlowImpl) ByNumber(ctx context.Context, receiptNumber int64) (*dto.ReceiptDTO, error) {
	if receiptNumber <= 0 {
		return nil, NewBusinessError("RECEIPT_NUMBER_INVALID", "Receipt number must be positive", ErrValidation)
	}
	receipt, err := f.receiptRepo.ByNumber(ctx, receiptNumber)
	if err != nil {
		return nil, wrapStoreError("RECEIPT_LOOKUP_FAILED", "Failed to look up receipt", err)
	}
	if receipt == nil {
		return nil, NewBusinessError("RECEIPT_NOT_FOUND", "Receipt not found", ErrReceiptNotFound)
	}
	out := ToReceiptDTO(*receipt)
	return &out, nil
}

// lotFailure keeps the business code of a failing lot and names its 1-based position.
func lotFailure(index int, err error) error {
	var be *BusinessError
	if !errors.As(wrapGS1Error(err), &be) {
		return fmt.Errorf("lot %d: %w", index, err)
	}
	return NewBusinessErrorf(be.Code, "Lot %d: %s", be.Err, index, be.Message)
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return utils.TrimToNil(*s)
}
