package handler

import (
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type QuotationHandler struct {
	quotationService service.QuotationService
}

func NewQuotationHandler(quotationService service.QuotationService) *QuotationHandler {
	return &QuotationHandler{quotationService: quotationService}
}

func (h *QuotationHandler) RegisterRoutes(router *gin.RouterGroup, guard middleware.Guard) {
	quotations := router.Group("/api/quotations")
	{
		quotations.POST("", guard.Require(model.PermQuotationsWrite), h.CreateQuotation)
		quotations.GET("/:id", guard.Require(model.PermQuotationsRead), h.GetQuotation)
		quotations.PUT("/:id", guard.Require(model.PermQuotationsWrite), h.UpdateQuotation)
		quotations.DELETE("/:id", guard.Require(model.PermQuotationsWrite), h.DeleteQuotation)
		quotations.POST("/:id/select", guard.Require(model.PermRequestsApprove), h.SelectQuotation)
	}

	byRequest := router.Group("/api/purchase-requests/:id/quotations")
	{
		byRequest.GET("", guard.Require(model.PermQuotationsRead), h.ListByRequest)
		byRequest.GET("/compare", guard.Require(model.PermQuotationsRead), h.CompareQuotations)
	}
}

// CreateQuotation records a supplier quotation and may move the request into evaluation
// @Summary      Record quotation
// @Tags         quotations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.QuotationInput  true  "Quotation data"
// @Success      201      {object}  response.Response{data=model.Quotation}
// @Failure      409      {object}  response.Response
// @Router       /api/quotations [post]
func (h *QuotationHandler) CreateQuotation(c *gin.Context) {
	var req service.QuotationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	q, err := h.quotationService.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, q))
}

// GetQuotation returns a quotation with its items
// @Summary      Get quotation
// @Tags         quotations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quotation ID"
// @Success      200  {object}  response.Response{data=model.Quotation}
// @Router       /api/quotations/{id} [get]
func (h *QuotationHandler) GetQuotation(c *gin.Context) {
	q, err := h.quotationService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, q))
}

// UpdateQuotation corrects amounts, terms or lines while no quotation of the request is selected
// @Summary      Update quotation
// @Tags         quotations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Quotation ID"
// @Param        request  body      service.UpdateQuotationInput  true  "Changed fields"
// @Success      200      {object}  response.Response{data=model.Quotation}
// @Failure      409      {object}  response.Response
// @Router       /api/quotations/{id} [put]
func (h *QuotationHandler) UpdateQuotation(c *gin.Context) {
	var req service.UpdateQuotationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	q, err := h.quotationService.Update(c.Request.Context(), c.Param("id"), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, q))
}

// DeleteQuotation removes a quotation while no selection or order depends on it
// @Summary      Delete quotation
// @Tags         quotations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quotation ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/quotations/{id} [delete]
func (h *QuotationHandler) DeleteQuotation(c *gin.Context) {
	if err := h.quotationService.Delete(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Quotation deleted successfully"}))
}

// SelectQuotation marks a quotation as the winner and rejects the others
// @Summary      Select quotation
// @Tags         quotations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true   "Quotation ID"
// @Param        request  body      service.SelectQuotationInput  false  "Selection reason"
// @Success      200      {object}  response.Response{data=model.Quotation}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/quotations/{id}/select [post]
func (h *QuotationHandler) SelectQuotation(c *gin.Context) {
	var req service.SelectQuotationInput
	if err := bindOptionalJSON(c, &req); err != nil {
		bindError(c, err)
		return
	}
	q, err := h.quotationService.Select(c.Request.Context(), c.Param("id"), currentUserID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, q))
}

// ListByRequest returns the quotations of a request
// @Summary      List request quotations
// @Tags         quotations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]model.Quotation}
// @Router       /api/purchase-requests/{id}/quotations [get]
func (h *QuotationHandler) ListByRequest(c *gin.Context) {
	quotes, err := h.quotationService.ListByRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, quotes))
}

// CompareQuotations returns quotations ranked by total with spread statistics
// @Summary      Compare request quotations
// @Tags         quotations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=comparison.Result}
// @Router       /api/purchase-requests/{id}/quotations/compare [get]
func (h *QuotationHandler) CompareQuotations(c *gin.Context) {
	result, err := h.quotationService.Compare(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
