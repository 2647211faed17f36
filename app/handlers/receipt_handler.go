package handlers

import (
	"strconv"

	"github.com/covxx/pelattahub-sub002/app/dto"
	businessflow "github.com/covxx/pelattahub-sub002/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

// ReceiptHandlerInterface defines the receiving endpoints
type ReceiptHandlerInterface interface {
	Create(c fiber.Ctx) error
	Get(c fiber.Ctx) error
}

type ReceiptHandler struct {
	flow      businessflow.ReceiptFlow
	validator *validator.Validate
	logger    logrus.FieldLogger
}

func NewReceiptHandler(flow businessflow.ReceiptFlow, logger logrus.FieldLogger) ReceiptHandlerInterface {
	return &ReceiptHandler{
		flow:      flow,
		validator: validator.New(),
		logger:    logger,
	}
}

// Create records a delivery and all of its lots in one transaction
// @Summary Create receipt
// @Tags Receipts
// @Accept json
// @Produce json
// @Param request body dto.CreateReceiptRequest true "Receipt with lots"
// @Success 201 {object} dto.APIResponse{data=dto.ReceiptDTO}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/receipts [post]
func (h *ReceiptHandler) Create(c fiber.Ctx) error {
	var req dto.CreateReceiptRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.flow.CreateReceipt(ctx, &req, clientMetadata(c))
	if err != nil {
		return flowError(c, h.logger, err, "Failed to create receipt", "RECEIPT_CREATE_FAILED")
	}
	return SuccessResponse(c, fiber.StatusCreated, "Receipt created", result)
}

// Get returns a receipt with its lots
// @Summary Get receipt
// @Tags Receipts
// @Produce json
// @Param number path int true "Receipt number"
// @Success 200 {object} dto.APIResponse{data=dto.ReceiptDTO}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/receipts/{number} [get]
func (h *ReceiptHandler) Get(c fiber.Ctx) error {
	number, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid receipt number", "RECEIPT_NUMBER_INVALID", nil)
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.flow.ByNumber(ctx, number)
	if err != nil {
		return flowError(c, h.logger, err, "Failed to load receipt", "RECEIPT_LOAD_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "Receipt retrieved", result)
}
