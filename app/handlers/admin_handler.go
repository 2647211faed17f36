package handlers

import (
	"strings"

	"github.com/covxx/pelattahub-sub002/app/dto"
	businessflow "github.com/covxx/pelattahub-sub002/business_flow"
	"github.com/covxx/pelattahub-sub002/models"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// AdminHandlerInterface defines the admin settings and counter endpoints
type AdminHandlerInterface interface {
	GetCompanyPrefix(c fiber.Ctx) error
	SetCompanyPrefix(c fiber.Ctx) error
	NextSequence(c fiber.Ctx) error
	PeekSequence(c fiber.Ctx) error
}

type AdminHandler struct {
	prefixes  businessflow.CompanyPrefixFlow
	sequences businessflow.SequenceIssuer
	validator *validator.Validate
	logger    logrus.FieldLogger
}

func NewAdminHandler(prefixes businessflow.CompanyPrefixFlow, sequences businessflow.SequenceIssuer, logger logrus.FieldLogger) AdminHandlerInterface {
	return &AdminHandler{
		prefixes:  prefixes,
		sequences: sequences,
		validator: validator.New(),
		logger:    logger,
	}
}

// GetCompanyPrefix returns the effective GS1 company prefix and where it came from
// @Summary Get company prefix
// @Tags Admin Settings
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CompanyPrefixResponse}
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/admin/settings/company-prefix [get]
func (h *AdminHandler) GetCompanyPrefix(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.prefixes.Current(ctx)
	if err != nil {
		return flowError(c, h.logger, err, "Failed to load company prefix", "COMPANY_PREFIX_LOAD_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "Company prefix retrieved", result)
}

// SetCompanyPrefix stores a new GS1 company prefix
// @Summary Set company prefix
// @Tags Admin Settings
// @Accept json
// @Produce json
// @Param request body dto.SetCompanyPrefixRequest true "Prefix"
// @Success 200 {object} dto.APIResponse{data=dto.CompanyPrefixResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/admin/settings/company-prefix [put]
func (h *AdminHandler) SetCompanyPrefix(c fiber.Ctx) error {
	var req dto.SetCompanyPrefixRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.prefixes.SetCompanyPrefix(ctx, &req, clientMetadata(c))
	if err != nil {
		return flowError(c, h.logger, err, "Failed to update company prefix", "COMPANY_PREFIX_UPDATE_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "Company prefix updated", result)
}

// NextSequence issues the next value of a counter
// @Summary Issue sequence value
// @Tags Admin Sequences
// @Produce json
// @Param key path string true "next_lot_sequence or next_receipt_number"
// @Success 200 {object} dto.APIResponse{data=dto.NextSequenceResponse}
// @Failure 404 {object} dto.APIResponse "Unknown counter"
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/sequences/{key}/next [post]
func (h *AdminHandler) NextSequence(c fiber.Ctx) error {
	key, err := sequenceKey(c)
	if err != nil {
		return flowError(c, h.logger, err, "Unknown sequence", "UNKNOWN_SEQUENCE_KEY")
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	value, err := h.sequences.Next(ctx, key)
	if err != nil {
		return flowError(c, h.logger, err, "Failed to issue sequence value", "SEQUENCE_ISSUE_FAILED")
	}

	h.logger.WithFields(logrus.Fields{
		"key":   key,
		"value": value,
		"actor": clientMetadata(c).Actor,
	}).Warn("sequence value issued manually")

	return SuccessResponse(c, fiber.StatusOK, "Sequence value issued", formatSequence(key, value))
}

// PeekSequence shows where a counter stands without consuming a value
// @Summary Peek sequence value
// @Tags Admin Sequences
// @Produce json
// @Param key path string true "next_lot_sequence or next_receipt_number"
// @Success 200 {object} dto.APIResponse{data=dto.NextSequenceResponse}
// @Failure 404 {object} dto.APIResponse "Unknown counter"
// @Router /api/v1/sequences/{key} [get]
func (h *AdminHandler) PeekSequence(c fiber.Ctx) error {
	key, err := sequenceKey(c)
	if err != nil {
		return flowError(c, h.logger, err, "Unknown sequence", "UNKNOWN_SEQUENCE_KEY")
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	value, err := h.sequences.Peek(ctx, key)
	if err != nil {
		return flowError(c, h.logger, err, "Failed to read sequence", "SEQUENCE_READ_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "Sequence retrieved", formatSequence(key, value))
}

func sequenceKey(c fiber.Ctx) (string, error) {
	key := strings.ToLower(strings.TrimSpace(pathParam(c, "key")))
	if !businessflow.KnownSequenceKey(key) {
		return "", businessflow.NewBusinessError("UNKNOWN_SEQUENCE_KEY", "Unknown sequence key", businessflow.ErrUnknownSequenceKey)
	}
	return key, nil
}

func formatSequence(key string, value int64) dto.NextSequenceResponse {
	resp := dto.NextSequenceResponse{Key: key, Value: value}
	if key == models.SequenceKeyLot {
		resp.Formatted = businessflow.FormatLotNumber(value)
	}
	return resp
}
