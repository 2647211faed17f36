package handlers

import (
	"fmt"
	"strings"

	"github.com/covxx/pelattahub-sub002/app/dto"
	businessflow "github.com/covxx/pelattahub-sub002/business_flow"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// LotHandlerInterface defines the lot and label endpoints
type LotHandlerInterface interface {
	Receive(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	Label(c fiber.Ctx) error
	LabelPNG(c fiber.Ctx) error
	VerifyPick(c fiber.Ctx) error
	Export(c fiber.Ctx) error
	Print(c fiber.Ctx) error
}

type LotHandler struct {
	lotFlow   businessflow.LotFlow
	labelFlow businessflow.LabelFlow
	validator *validator.Validate
	logger    logrus.FieldLogger
}

func NewLotHandler(lotFlow businessflow.LotFlow, labelFlow businessflow.LabelFlow, logger logrus.FieldLogger) LotHandlerInterface {
	return &LotHandler{
		lotFlow:   lotFlow,
		labelFlow: labelFlow,
		validator: validator.New(),
		logger:    logger,
	}
}

// Receive records a lot, assigning the product GTIN first when it is missing
// @Summary Receive lot
// @Tags Lots
// @Accept json
// @Produce json
// @Param request body dto.ReceiveLotRequest true "Lot"
// @Success 201 {object} dto.APIResponse{data=dto.ReceiveLotResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Failure 409 {object} dto.APIResponse
// @Router /api/v1/lots [post]
func (h *LotHandler) Receive(c fiber.Ctx) error {
	var req dto.ReceiveLotRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.lotFlow.ReceiveLot(ctx, &req, clientMetadata(c))
	if err != nil {
		return flowError(c, h.logger, err, "Failed to receive lot", "LOT_CREATE_FAILED")
	}
	return SuccessResponse(c, fiber.StatusCreated, "Lot received", result)
}

// Get returns one lot
// @Summary Get lot
// @Tags Lots
// @Produce json
// @Param lot_number path string true "Lot number"
// @Success 200 {object} dto.APIResponse{data=dto.LotDTO}
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/lots/{lot_number} [get]
func (h *LotHandler) Get(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.lotFlow.ByLotNumber(ctx, pathParam(c, "lot_number"))
	if err != nil {
		return flowError(c, h.logger, err, "Failed to load lot", "LOT_LOAD_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "Lot retrieved", result)
}

// Label returns the label content of a lot
// @Summary Lot label
// @Tags Labels
// @Produce json
// @Param lot_number path string true "Lot number"
// @Success 200 {object} dto.APIResponse{data=dto.LabelDTO}
// @Failure 404 {object} dto.APIResponse
// @Failure 422 {object} dto.APIResponse "Product has no valid GTIN"
// @Router /api/v1/lots/{lot_number}/label [get]
func (h *LotHandler) Label(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.labelFlow.BuildLabel(ctx, pathParam(c, "lot_number"))
	if err != nil {
		return flowError(c, h.logger, err, "Failed to build label", "LABEL_BUILD_FAILED")
	}
	return SuccessResponse(c, fiber.StatusOK, "Label built", result)
}

// LabelPNG renders the lot barcode as a PNG image
// @Summary Lot label image
// @Tags Labels
// @Produce image/png
// @Param lot_number path string true "Lot number"
// @Param symbology query string false "gs1-128 (default), qr or datamatrix"
// @Success 200 {string} string "PNG image"
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/lots/{lot_number}/label.png [get]
func (h *LotHandler) LabelPNG(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, 0)
	defer cancel()

	lotNumber := pathParam(c, "lot_number")
	image, err := h.labelFlow.RenderLabelPNG(ctx, lotNumber, c.Query("symbology"))
	if err != nil {
		return flowError(c, h.logger, err, "Failed to render label", "LABEL_RENDER_FAILED")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%s.png", strings.TrimSpace(lotNumber)))
	return c.Send(image)
}

// VerifyPick checks a spoken voice pick code or a scanned barcode against the lot
// @Summary Verify pick
// @Tags Labels
// @Accept json
// @Produce json
// @Param lot_number path string true "Lot number"
// @Param request body dto.VerifyPickRequest true "Spoken code or scanned barcode"
// @Success 200 {object} dto.APIResponse{data=dto.VerifyPickResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 404 {object} dto.APIResponse
// @Router /api/v1/lots/{lot_number}/verify-pick [post]
func (h *LotHandler) VerifyPick(c fiber.Ctx) error {
	var req dto.VerifyPickRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.labelFlow.VerifyPick(ctx, pathParam(c, "lot_number"), &req)
	if err != nil {
		return flowError(c, h.logger, err, "Failed to verify pick", "PICK_VERIFY_FAILED")
	}

	message := "Pick matches lot"
	if !result.Match {
		message = "Pick does not match lot"
	}
	return SuccessResponse(c, fiber.StatusOK, message, result)
}

// Export writes the filtered lots with their label fields to an xlsx workbook
// @Summary Export lot labels
// @Tags Labels
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param product_id query int false "Product ID"
// @Param receipt_id query int false "Receipt ID"
// @Param packed_from query string false "YYYY-MM-DD"
// @Param packed_to query string false "YYYY-MM-DD"
// @Success 200 {string} string "xlsx workbook"
// @Failure 400 {object} dto.APIResponse
// @Router /api/v1/lots/export [get]
func (h *LotHandler) Export(c fiber.Ctx) error {
	var req dto.ExportLotsRequest
	if err := c.Bind().Query(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, gtinImportTimeout)
	defer cancel()

	data, err := h.labelFlow.ExportLots(ctx, &req)
	if err != nil {
		return flowError(c, h.logger, err, "Failed to export lots", "LOT_EXPORT_FAILED")
	}

	filename := fmt.Sprintf("lot-labels-%s.xlsx", utils.UTCNow().Format("20060102-150405"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+filename)
	return c.Send(data)
}

// Print queues label copies for the lot on the print transport
// @Summary Print lot label
// @Tags Labels
// @Accept json
// @Produce json
// @Param lot_number path string true "Lot number"
// @Param request body dto.PrintLabelRequest true "Copies and printer"
// @Success 202 {object} dto.APIResponse{data=dto.PrintLabelResponse}
// @Failure 400 {object} dto.APIResponse
// @Failure 503 {object} dto.APIResponse "Print queue unavailable"
// @Router /api/v1/lots/{lot_number}/print [post]
func (h *LotHandler) Print(c fiber.Ctx) error {
	var req dto.PrintLabelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if ok, err := validate(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c, 0)
	defer cancel()

	result, err := h.labelFlow.QueuePrint(ctx, pathParam(c, "lot_number"), &req, clientMetadata(c))
	if err != nil {
		return flowError(c, h.logger, err, "Failed to queue print job", "PRINT_QUEUE_FAILED")
	}
	return SuccessResponse(c, fiber.StatusAccepted, "Print job queued", result)
}
