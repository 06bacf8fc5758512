package handler

import (
	"fmt"
	"net/http"

	"procurement/internal/delivery"
	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type RFQHandler struct {
	rfqService service.RFQService
}

func NewRFQHandler(rfqService service.RFQService) *RFQHandler {
	return &RFQHandler{rfqService: rfqService}
}

func (h *RFQHandler) RegisterRoutes(router *gin.RouterGroup, guard middleware.Guard) {
	rfqs := router.Group("/api/purchase-requests/:id/rfqs")
	{
		rfqs.GET("", guard.Require(model.PermQuotationsRead), h.ListRFQs)
		rfqs.POST("", guard.Require(model.PermRFQDispatch), h.DispatchRFQ)
		rfqs.GET("/:rfqId/document", guard.Require(model.PermQuotationsRead), h.DownloadDocument)
	}
	router.POST("/api/purchase-requests/:id/rfq-document", guard.Require(model.PermRFQDispatch), h.PreviewDocument)
}

func sendDocument(c *gin.Context, doc *delivery.Document) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}

// DispatchRFQ renders the RFQ document and sends it to the chosen suppliers.
// Per-supplier delivery failures are reported in the body; the call itself succeeds.
// @Summary      Send request for quotation
// @Tags         rfq
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Request ID"
// @Param        request  body      service.DispatchInput  true  "Suppliers, deadline and channel"
// @Success      201      {object}  response.Response{data=service.DispatchResult}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/rfqs [post]
func (h *RFQHandler) DispatchRFQ(c *gin.Context) {
	var req service.DispatchInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	result, err := h.rfqService.Dispatch(c.Request.Context(), c.Param("id"), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListRFQs returns the RFQs sent for a request with per-supplier status
// @Summary      List request RFQs
// @Tags         rfq
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]model.QuotationRequest}
// @Router       /api/purchase-requests/{id}/rfqs [get]
func (h *RFQHandler) ListRFQs(c *gin.Context) {
	rfqs, err := h.rfqService.ListByRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rfqs))
}

// PreviewDocument renders the RFQ workbook for a request without sending it
// @Summary      Preview RFQ document
// @Tags         rfq
// @Security     BearerAuth
// @Accept       json
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        id       path      string                true  "Request ID"
// @Param        request  body      service.PreviewInput  true  "Quote deadline"
// @Success      200      {file}    file
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/rfq-document [post]
func (h *RFQHandler) PreviewDocument(c *gin.Context) {
	var req service.PreviewInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	doc, err := h.rfqService.Preview(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	sendDocument(c, doc)
}

// DownloadDocument returns the document that was sent with an RFQ
// @Summary      Download RFQ document
// @Tags         rfq
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param        id     path      string  true  "Request ID"
// @Param        rfqId  path      string  true  "RFQ ID"
// @Success      200    {file}    file
// @Failure      404    {object}  response.Response
// @Router       /api/purchase-requests/{id}/rfqs/{rfqId}/document [get]
func (h *RFQHandler) DownloadDocument(c *gin.Context) {
	doc, err := h.rfqService.Document(c.Request.Context(), c.Param("id"), c.Param("rfqId"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendDocument(c, doc)
}
