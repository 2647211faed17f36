package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	"github.com/covxx/pelattahub-sub002/gs1"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/covxx/pelattahub-sub002/repository"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CompanyPrefixFlow resolves and updates the GS1 company prefix used for new GTINs.
// Resolution order: cache, system setting, configured default, then "000000".
type CompanyPrefixFlow interface {
	CompanyPrefix(ctx context.Context) (string, error)
	Current(ctx context.Context) (*dto.CompanyPrefixResponse, error)
	SetCompanyPrefix(ctx context.Context, req *dto.SetCompanyPrefixRequest, metadata *ClientMetadata) (*dto.CompanyPrefixResponse, error)
}

// PrefixCache stores the resolved prefix between requests.
type PrefixCache interface {
	Get(ctx context.Context) (*dto.CompanyPrefixResponse, error)
	Set(ctx context.Context, value *dto.CompanyPrefixResponse) error
	Delete(ctx context.Context) error
}

type CompanyPrefixFlowImpl struct {
	settingRepo   repository.SystemSettingRepository
	auditRepo     repository.AuditLogRepository
	cache         PrefixCache
	runTx         TxRunner
	defaultPrefix string
	logger        logrus.FieldLogger
}

func NewCompanyPrefixFlow(
	settingRepo repository.SystemSettingRepository,
	auditRepo repository.AuditLogRepository,
	cache PrefixCache,
	runTx TxRunner,
	defaultPrefix string,
	logger logrus.FieldLogger,
) CompanyPrefixFlow {
	if cache == nil {
		cache = noopPrefixCache{}
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &CompanyPrefixFlowImpl{
		settingRepo:   settingRepo,
		auditRepo:     auditRepo,
		cache:         cache,
		runTx:         runTx,
		defaultPrefix: defaultPrefix,
		logger:        logger,
	}
}

// CompanyPrefix returns the 6-digit prefix. A stored prefix that cannot be reduced to
// 6 digits is a configuration error, never silently replaced.
func (f *CompanyPrefixFlowImpl) CompanyPrefix(ctx context.Context) (string, error) {
	current, err := f.Current(ctx)
	if err != nil {
		return "", err
	}
	return current.Prefix, nil
}

func (f *CompanyPrefixFlowImpl) Current(ctx context.Context) (*dto.CompanyPrefixResponse, error) {
	// Inside a transaction the cache is bypassed so a prefix changed by the same
	// transaction is seen.
	if !repository.InTransaction(ctx) {
		cached, err := f.cache.Get(ctx)
		if err != nil {
			f.logger.WithError(err).Warn("company prefix cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	resolved, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}

	if !repository.InTransaction(ctx) {
		if err := f.cache.Set(ctx, resolved); err != nil {
			f.logger.WithError(err).Warn("company prefix cache write failed")
		}
	}
	return resolved, nil
}

func (f *CompanyPrefixFlowImpl) resolve(ctx context.Context) (*dto.CompanyPrefixResponse, error) {
	setting, err := f.settingRepo.ByKey(ctx, models.SettingGS1CompanyPrefix)
	if err != nil {
		return nil, wrapStoreError("COMPANY_PREFIX_READ_FAILED", "Failed to read company prefix", err)
	}

	raw, source := "", dto.CompanyPrefixSourceDefault
	switch {
	case setting != nil && utils.TrimToNil(setting.Value) != nil:
		raw, source = setting.Value, dto.CompanyPrefixSourceSetting
	case utils.TrimToNil(f.defaultPrefix) != nil:
		raw, source = f.defaultPrefix, dto.CompanyPrefixSourceConfig
	}

	prefix, err := gs1.NormalizeCompanyPrefix(raw)
	if err != nil {
		utils.LogError(f.logger, "CompanyPrefixFlow", "resolve", "stored company prefix is invalid", source, err)
		return nil, NewBusinessError("GS1_CONFIGURATION_INVALID", "Configured GS1 company prefix is invalid", err)
	}
	return &dto.CompanyPrefixResponse{Prefix: prefix, Source: source}, nil
}

func (f *CompanyPrefixFlowImpl) SetCompanyPrefix(ctx context.Context, req *dto.SetCompanyPrefixRequest, metadata *ClientMetadata) (*dto.CompanyPrefixResponse, error) {
	if req == nil {
		return nil, NewBusinessError("COMPANY_PREFIX_REQUIRED", "Company prefix is required", ErrValidation)
	}
	if utils.TrimToNil(req.Prefix) == nil {
		return nil, NewBusinessError("COMPANY_PREFIX_REQUIRED", "Company prefix is required", ErrValidation)
	}
	prefix, err := gs1.NormalizeCompanyPrefix(req.Prefix)
	if err != nil {
		return nil, NewBusinessError("COMPANY_PREFIX_INVALID", "Company prefix must be 6 digits", errors.Join(ErrValidation, err))
	}

	err = f.runTx(ctx, func(txCtx context.Context) error {
		previous, err := f.settingRepo.ByKey(txCtx, models.SettingGS1CompanyPrefix)
		if err != nil {
			return err
		}
		if err := f.settingRepo.Upsert(txCtx, models.SettingGS1CompanyPrefix, prefix); err != nil {
			return err
		}
		detail := models.CompanyPrefixChanged{Prefix: prefix}
		if previous != nil {
			detail.Previous = previous.Value
		}
		return f.auditRepo.Record(txCtx, detail, metadata.actorPtr(), metadata.requestIDPtr())
	})
	if err != nil {
		utils.LogError(f.logger, "CompanyPrefixFlow", "SetCompanyPrefix", "failed to store company prefix", prefix, err)
		return nil, wrapStoreError("COMPANY_PREFIX_UPDATE_FAILED", "Failed to update company prefix", err)
	}

	if err := f.cache.Delete(ctx); err != nil {
		f.logger.WithError(err).Warn("company prefix cache invalidation failed")
	}

	f.logger.WithFields(logrus.Fields{
		"prefix": prefix,
		"actor":  utils.StringOrEmpty(metadata.actorPtr()),
	}).Info("company prefix changed")

	return &dto.CompanyPrefixResponse{Prefix: prefix, Source: dto.CompanyPrefixSourceSetting}, nil
}

// RedisPrefixCache keeps the resolved prefix in Redis so every instance sees an update
// after one invalidation.
type RedisPrefixCache struct {
	rc  *redis.Client
	key string
	ttl time.Duration
}

// NewRedisPrefixCache returns a cache on rc, or a no-op cache when rc is nil.
func NewRedisPrefixCache(rc *redis.Client, keyPrefix string, ttl time.Duration) PrefixCache {
	if rc == nil {
		return noopPrefixCache{}
	}
	return &RedisPrefixCache{
		rc:  rc,
		key: keyPrefix + "gs1:company_prefix",
		ttl: ttl,
	}
}

func (c *RedisPrefixCache) Get(ctx context.Context) (*dto.CompanyPrefixResponse, error) {
	bs, err := c.rc.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out dto.CompanyPrefixResponse
	if err := json.Unmarshal(bs, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RedisPrefixCache) Set(ctx context.Context, value *dto.CompanyPrefixResponse) error {
	bs, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rc.Set(ctx, c.key, bs, c.ttl).Err()
}

func (c *RedisPrefixCache) Delete(ctx context.Context) error {
	return c.rc.Del(ctx, c.key).Err()
}

type noopPrefixCache struct{}

func (noopPrefixCache) Get(context.Context) (*dto.CompanyPrefixResponse, error) { return nil, nil }
func (noopPrefixCache) Set(context.Context, *dto.CompanyPrefixResponse) error   { return nil }
func (noopPrefixCache) Delete(context.Context) error                            { return nil }
