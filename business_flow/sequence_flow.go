package businessflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/repository"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SequenceStore is the row level contract the issuer needs: a counter that can be
// created if missing and locked for the rest of the transaction, then overwritten.
type SequenceStore interface {
	LockOrCreate(ctx context.Context, key string) (int64, error)
	SetValue(ctx context.Context, key string, value int64) error
}

// TxRunner runs fn in a transaction carried by the context passed to fn. When ctx
// already carries one, fn must join it.
type TxRunner func(ctx context.Context, fn func(context.Context) error) error

// Reconciler reports the highest value already issued for a counter, read from the
// records that carry it.
type Reconciler func(ctx context.Context) (int64, error)

// SequenceIssuer hands out strictly increasing values per counter key.
type SequenceIssuer interface {
	Next(ctx context.Context, key string) (int64, error)
	NextLotNumber(ctx context.Context) (string, error)
	NextReceiptNumber(ctx context.Context) (int64, error)
	Peek(ctx context.Context, key string) (int64, error)
}

type SequenceIssuerImpl struct {
	store       SequenceStore
	counterRepo repository.SequenceCounterRepository
	runTx       TxRunner
	reconcilers map[string]Reconciler
	logger      logrus.FieldLogger
}

// NewSequenceIssuer wires the issuer to the counter table. Lot and receipt counters are
// reconciled against the lots and receipts tables so a reset counter row can never
// hand out a value that is already in use.
func NewSequenceIssuer(
	counterRepo repository.SequenceCounterRepository,
	lotRepo repository.LotRepository,
	receiptRepo repository.ReceiptRepository,
	db *gorm.DB,
	logger logrus.FieldLogger,
) SequenceIssuer {
	issuer := newSequenceIssuer(counterRepo, GormTxRunner(db), map[string]Reconciler{
		models.SequenceKeyLot:     lotRepo.MaxLotSequence,
		models.SequenceKeyReceipt: receiptRepo.MaxReceiptNumber,
	}, logger)
	issuer.counterRepo = counterRepo
	return issuer
}

func newSequenceIssuer(store SequenceStore, runTx TxRunner, reconcilers map[string]Reconciler, logger logrus.FieldLogger) *SequenceIssuerImpl {
	if reconcilers == nil {
		reconcilers = map[string]Reconciler{}
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &SequenceIssuerImpl{
		store:       store,
		runTx:       runTx,
		reconcilers: reconcilers,
		logger:      logger,
	}
}

// GormTxRunner adapts repository.WithTransaction to a TxRunner.
func GormTxRunner(db *gorm.DB) TxRunner {
	return func(ctx context.Context, fn func(context.Context) error) error {
		return repository.WithTransaction(ctx, db, fn)
	}
}

// Next returns the next value for key. It joins the transaction in ctx when there is
// one, so the value is only consumed if the caller commits.
func (s *SequenceIssuerImpl) Next(ctx context.Context, key string) (int64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, NewBusinessError("SEQUENCE_KEY_REQUIRED", "Sequence key is required", ErrValidation)
	}

	var value int64
	err := s.runTx(ctx, func(txCtx context.Context) error {
		v, err := s.nextInTx(txCtx, key)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		if repository.IsConcurrencyAbort(err) {
			sequenceConflictsTotal.WithLabelValues(key).Inc()
		}
		utils.LogError(s.logger, "SequenceIssuer", "Next", "failed to issue sequence value", key, err)
		return 0, wrapStoreError("SEQUENCE_ISSUE_FAILED", "Failed to issue sequence value", err)
	}

	sequenceIssuedTotal.WithLabelValues(key).Inc()
	return value, nil
}

func (s *SequenceIssuerImpl) nextInTx(ctx context.Context, key string) (int64, error) {
	value, err := s.store.LockOrCreate(ctx, key)
	if err != nil {
		return 0, err
	}

	if reconcile, ok := s.reconcilers[key]; ok {
		issued, err := reconcile(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to reconcile counter %s: %w", key, err)
		}
		if issued >= value {
			s.logger.WithFields(logrus.Fields{
				"key":     key,
				"counter": value,
				"issued":  issued,
			}).Warn("sequence counter behind issued values, moving forward")
			sequenceReconciledTotal.WithLabelValues(key).Inc()
			value = issued + 1
		}
	}

	if err := s.store.SetValue(ctx, key, value+1); err != nil {
		return 0, err
	}
	return value, nil
}

// NextLotNumber issues the next lot number: "01" followed by the zero padded sequence.
func (s *SequenceIssuerImpl) NextLotNumber(ctx context.Context) (string, error) {
	value, err := s.Next(ctx, models.SequenceKeyLot)
	if err != nil {
		return "", err
	}
	return FormatLotNumber(value), nil
}

// NextReceiptNumber issues the next receipt number.
func (s *SequenceIssuerImpl) NextReceiptNumber(ctx context.Context) (int64, error) {
	return s.Next(ctx, models.SequenceKeyReceipt)
}

// Peek returns the value the next call to Next would start from, without locking.
// Reconciliation may still move it forward.
func (s *SequenceIssuerImpl) Peek(ctx context.Context, key string) (int64, error) {
	if s.counterRepo == nil {
		return 0, NewBusinessError("SEQUENCE_PEEK_UNSUPPORTED", "Counter inspection is not available", errors.ErrUnsupported)
	}
	counter, err := s.counterRepo.ByKey(ctx, key)
	if err != nil {
		return 0, wrapStoreError("SEQUENCE_READ_FAILED", "Failed to read sequence counter", err)
	}
	if counter == nil {
		return 1, nil
	}
	return counter.CurrentValue, nil
}

// FormatLotNumber renders a lot sequence value as a lot number.
func FormatLotNumber(sequence int64) string {
	return fmt.Sprintf("%s%06d", models.LotNumberPrefix, sequence)
}

// KnownSequenceKey reports whether key names a counter the service issues from.
func KnownSequenceKey(key string) bool {
	return key == models.SequenceKeyLot || key == models.SequenceKeyReceipt
}
