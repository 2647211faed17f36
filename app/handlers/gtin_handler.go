package handlers

import (
	"strconv"
	"time"

	"github.com/covxx/pelattahub-sub002/app/dto"
	businessflow "github.com/covxx/pelattahub-sub002/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

const (
	gtinRepairTimeout = 10 * time.Minute
	gtinImportTimeout = 5 * time.Minute
	maxImportFileSize = 10 * 1024 * 1024
)

// GTINHandlerInterface defines the GTIN endpoints
type GTINHandlerInterface interface {
	Validate(c fiber.Ctx) error
	Preview(c fiber.Ctx) error
	AssignToProduct(c fiber.Ctx) error
	RepairAll(c fiber.Ctx) error
	Import(c fiber.Ctx) error
}

type GTINHandler struct {
	flow      businessflow.GTINFlow
	validator *validator.Validate
	logger    logrus.FieldLogger
}

func NewGTINHandler(flow businessflow.GTINFlow, logger logrus.FieldLogger) GTINHandlerInterface {
	return &GTINHandler{
		flow:      flow,
		validator: validator.New(),
		logger:    logger,
	}
}

// Validate checks a GTIN without touching the catalog
// @Summary Validate GTIN
// @Tags GTIN
// @Accept json
// @Produce json
// @Param request body dto.ValidateGTINRequest true "GTIN"
// @Success 200 {object} dto.APIResponse{data=dto.ValidateGTINResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/gtin/validate [post]
func (h *GTINHandler) Validate(c fiber.Ctx) error {
	var req dto.ValidateGTINRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.flow.Validate(ctx, &req)
	if err != nil {
		return flowError(c, h.logger, err, "Failed to validate GTIN", "GTIN_VALIDATION_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "GTIN checked", result)
}

// Preview returns the GTIN a SKU would be assigned
// @Summary Preview GTIN
// @Tags GTIN
// @Accept json
// @Produce json
// @Param request body dto.PreviewGTINRequest true "SKU"
// @Success 200 {object} dto.APIResponse{data=dto.PreviewGTINResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 500 {object} dto.APIResponse
// @Router /api/v1/gtin/preview [post]
func (h *GTINHandler) Preview(c fiber.Ctx) error {
	var req dto.PreviewGTINRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.flow.Preview(ctx, &req)
	if err != nil {
		return flowError(c, h.logger, err, "Failed to preview GTIN", "GTIN_PREVIEW_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "GTIN preview generated", result)
}

// AssignToProduct assigns a GTIN to a product, or repairs it when force is set
// @Summary Assign product GTIN
// @Tags GTIN
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param request body dto.AssignGTINRequest false "Options"
// @Success 200 {object} dto.APIResponse{data=dto.ProductGTINResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/products/{id}/gtin [post]
func (h *GTINHandler) AssignToProduct(c fiber.Ctx) error {
	productID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || productID == 0 {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid product id", "INVALID_PRODUCT_ID", nil)
	}

	var req dto.AssignGTINRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.flow.AssignToProduct(ctx, uint(productID), &req, clientMetadata(c))
	if err != nil {
		return flowError(c, h.logger, err, "Failed to assign GTIN", "GTIN_ASSIGN_FAILED")
	}

	message := "GTIN already valid"
	if result.Changed {
		message = "GTIN assigned"
	}
	return SuccessResponse(c, fiber.StatusOK, message, result)
}

// RepairAll regenerates every missing or invalid GTIN in the catalog
// @Summary Repair catalog GTINs
// @Tags Admin GTIN
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.GTINRepairResponse}
// @Failure 409 {object} dto.APIResponse "Repair already running"
// @Router /api/v1/admin/gtin/repair [post]
func (h *GTINHandler) RepairAll(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, gtinRepairTimeout)
	defer cancel()

	result, err := h.flow.RepairAll(ctx, clientMetadata(c))
	if err != nil {
		return flowError(c, h.logger, err, "GTIN repair failed", "GTIN_REPAIR_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "GTIN repair finished", result)
}

// Import assigns GTINs from an uploaded xlsx workbook with sku and optional gtin columns
// @Summary Import GTINs from spreadsheet
// @Tags Admin GTIN
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "xlsx workbook"
// @Success 200 {object} dto.APIResponse{data=dto.GTINImportResponse}
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/admin/gtin/import [post]
func (h *GTINHandler) Import(c fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader == nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "file is required", "INVALID_REQUEST", nil)
	}
	if fileHeader.Size > maxImportFileSize {
		return ErrorResponse(c, fiber.StatusRequestEntityTooLarge, "file is too large", "FILE_TOO_LARGE", nil)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "invalid file", "INVALID_FILE", err.Error())
	}
	defer file.Close()

	ctx, cancel := requestContext(c, gtinImportTimeout)
	defer cancel()

	result, err := h.flow.ImportFromSpreadsheet(ctx, file, clientMetadata(c))
	if err != nil {
		return flowError(c, h.logger, err, "GTIN import failed", "GTIN_IMPORT_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "GTIN import finished", result)
}
