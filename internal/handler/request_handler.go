package handler

import (
	"net/http"

	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/service"
	"procurement/pkg/pagination"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

type RequestHandler struct {
	requestService service.RequestService
}

func NewRequestHandler(requestService service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup, guard middleware.Guard) {
	requests := router.Group("/api/purchase-requests")
	{
		requests.GET("", guard.Require(model.PermRequestsRead), h.ListRequests)
		requests.POST("", guard.Require(model.PermRequestsWrite), h.CreateRequest)
		requests.GET("/pending-approval", guard.Require(model.PermRequestsApprove), h.ListPendingApproval)
		requests.GET("/:id", guard.Require(model.PermRequestsRead), h.GetRequest)
		requests.PUT("/:id", guard.Require(model.PermRequestsWrite), h.UpdateRequest)
		requests.DELETE("/:id", guard.Require(model.PermRequestsWrite), h.DeleteRequest)
		requests.GET("/:id/history", guard.Require(model.PermRequestsRead), h.GetHistory)
		requests.POST("/:id/submit", guard.Require(model.PermRequestsWrite), h.SubmitRequest)
		requests.POST("/:id/approve", guard.Require(model.PermRequestsApprove), h.ApproveRequest)
		requests.POST("/:id/reject", guard.Require(model.PermRequestsApprove), h.RejectRequest)
		requests.POST("/:id/cancel", guard.Require(model.PermRequestsWrite), h.CancelRequest)
	}
}

// ListRequests returns purchase requests filtered by status, type, priority, requester and search text
// @Summary      List purchase requests
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        status         query  string  false  "Request status"
// @Param        purchase_type  query  string  false  "direct, quoted or tender"
// @Param        priority       query  string  false  "low, normal, high or urgent"
// @Param        requested_by   query  string  false  "Requester user id"
// @Param        search         query  string  false  "Matches number or title"
// @Param        page           query  int     false  "Page number (default 1)"
// @Param        limit          query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=[]model.PurchaseRequest,meta=pagination.Meta}
// @Router       /api/purchase-requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	p := pagination.Parse(c)
	requests, total, err := h.requestService.List(c.Request.Context(), service.RequestQuery{
		Status:       c.Query("status"),
		PurchaseType: c.Query("purchase_type"),
		Priority:     c.Query("priority"),
		RequestedBy:  c.Query("requested_by"),
		Search:       c.Query("search"),
		Page:         p.Page,
		Limit:        p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, requests, p.NewMeta(total)))
}

// ListPendingApproval returns the approval queue, oldest first
// @Summary      List requests awaiting approval
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]model.PurchaseRequest,meta=pagination.Meta}
// @Router       /api/purchase-requests/pending-approval [get]
func (h *RequestHandler) ListPendingApproval(c *gin.Context) {
	p := pagination.Parse(c)
	requests, total, err := h.requestService.ListPendingApproval(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, requests, p.NewMeta(total)))
}

// CreateRequest creates a draft purchase request owned by the caller
// @Summary      Create purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.RequestInput  true  "Request data"
// @Success      201      {object}  response.Response{data=model.PurchaseRequest}
// @Failure      400      {object}  response.Response
// @Router       /api/purchase-requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	var req service.RequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	created, err := h.requestService.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, created))
}

// GetRequest returns a request with items, history and the actions allowed in its status
// @Summary      Get purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestDetail}
// @Failure      404  {object}  response.Response
// @Router       /api/purchase-requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	detail, err := h.requestService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, detail))
}

// UpdateRequest edits a draft request; send version to detect concurrent edits
// @Summary      Update purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Request ID"
// @Param        request  body      service.RequestInput  true  "Request data"
// @Success      200      {object}  response.Response{data=model.PurchaseRequest}
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id} [put]
func (h *RequestHandler) UpdateRequest(c *gin.Context) {
	var req service.RequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	updated, err := h.requestService.Update(c.Request.Context(), c.Param("id"), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, updated))
}

// DeleteRequest removes a draft request
// @Summary      Delete purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/purchase-requests/{id} [delete]
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	if err := h.requestService.Delete(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Purchase request deleted successfully"}))
}

// GetHistory returns the status history of a request, oldest first
// @Summary      Get request history
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=[]model.RequestHistory}
// @Router       /api/purchase-requests/{id}/history [get]
func (h *RequestHandler) GetHistory(c *gin.Context) {
	history, err := h.requestService.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, history))
}

// runAction binds the optional action body and applies one lifecycle action.
func runAction(c *gin.Context, action func(in service.ActionInput) (*model.PurchaseRequest, error)) {
	var in service.ActionInput
	if err := bindOptionalJSON(c, &in); err != nil {
		bindError(c, err)
		return
	}
	req, err := action(in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, req))
}

// SubmitRequest sends a draft for approval
// @Summary      Submit purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true   "Request ID"
// @Param        request  body      service.ActionInput  false  "Comments"
// @Success      200      {object}  response.Response{data=model.PurchaseRequest}
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/submit [post]
func (h *RequestHandler) SubmitRequest(c *gin.Context) {
	runAction(c, func(in service.ActionInput) (*model.PurchaseRequest, error) {
		return h.requestService.Submit(c.Request.Context(), c.Param("id"), currentUserID(c), in.Comments)
	})
}

// ApproveRequest approves a pending request
// @Summary      Approve purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true   "Request ID"
// @Param        request  body      service.ActionInput  false  "Comments"
// @Success      200      {object}  response.Response{data=model.PurchaseRequest}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/approve [post]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	runAction(c, func(in service.ActionInput) (*model.PurchaseRequest, error) {
		return h.requestService.Approve(c.Request.Context(), c.Param("id"), currentUserID(c), in.Comments)
	})
}

// RejectRequest rejects a pending request; a reason is required
// @Summary      Reject purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true  "Request ID"
// @Param        request  body      service.ActionInput  true  "Reason"
// @Success      200      {object}  response.Response{data=model.PurchaseRequest}
// @Failure      400      {object}  response.Response
// @Router       /api/purchase-requests/{id}/reject [post]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	runAction(c, func(in service.ActionInput) (*model.PurchaseRequest, error) {
		return h.requestService.Reject(c.Request.Context(), c.Param("id"), currentUserID(c), in.Reason)
	})
}

// CancelRequest cancels a request that has no order yet
// @Summary      Cancel purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string               true   "Request ID"
// @Param        request  body      service.ActionInput  false  "Reason"
// @Success      200      {object}  response.Response{data=model.PurchaseRequest}
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/cancel [post]
func (h *RequestHandler) CancelRequest(c *gin.Context) {
	runAction(c, func(in service.ActionInput) (*model.PurchaseRequest, error) {
		return h.requestService.Cancel(c.Request.Context(), c.Param("id"), currentUserID(c), in.Reason)
	})
}
