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

type OrderHandler struct {
	orderService service.OrderService
}

func NewOrderHandler(orderService service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup, guard middleware.Guard) {
	orders := router.Group("/api/purchase-orders")
	{
		orders.GET("", guard.Require(model.PermOrdersRead), h.ListOrders)
		orders.POST("", guard.Require(model.PermOrdersWrite), h.CreateOrder)
		orders.GET("/:id", guard.Require(model.PermOrdersRead), h.GetOrder)
		orders.DELETE("/:id", guard.Require(model.PermOrdersWrite), h.DeleteOrder)
		orders.PATCH("/:id/status", guard.Require(model.PermOrdersWrite), h.UpdateStatus)
		orders.POST("/:id/items/:itemId/receive", guard.Require(model.PermOrdersWrite), h.ReceiveItem)
	}
}

// ListOrders returns purchase orders filtered by status, supplier and request
// @Summary      List purchase orders
// @Tags         purchase-orders
// @Security     BearerAuth
// @Produce      json
// @Param        status               query  string  false  "Order status"
// @Param        supplier_id          query  string  false  "Supplier id"
// @Param        purchase_request_id  query  string  false  "Purchase request id"
// @Param        search               query  string  false  "Matches order number"
// @Param        page                 query  int     false  "Page number (default 1)"
// @Param        limit                query  int     false  "Items per page (default 20)"
// @Success      200  {object}  response.Response{data=[]model.PurchaseOrder,meta=pagination.Meta}
// @Router       /api/purchase-orders [get]
func (h *OrderHandler) ListOrders(c *gin.Context) {
	p := pagination.Parse(c)
	orders, total, err := h.orderService.List(c.Request.Context(), service.OrderQuery{
		Status:            c.Query("status"),
		SupplierID:        c.Query("supplier_id"),
		PurchaseRequestID: c.Query("purchase_request_id"),
		Search:            c.Query("search"),
		Page:              p.Page,
		Limit:             p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paged(http.StatusOK, orders, p.NewMeta(total)))
}

// CreateOrder creates a draft order from the selected quotation or the preferred supplier
// @Summary      Create purchase order
// @Tags         purchase-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      service.CreateOrderInput  true  "Order data"
// @Success      201      {object}  response.Response{data=model.PurchaseOrder}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/purchase-orders [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req service.CreateOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	order, err := h.orderService.CreateFromRequest(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, order))
}

// GetOrder returns an order with items, supplier, history and its next statuses
// @Summary      Get purchase order
// @Tags         purchase-orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response{data=service.OrderDetail}
// @Router       /api/purchase-orders/{id} [get]
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// DeleteOrder removes a draft order
// @Summary      Delete purchase order
// @Tags         purchase-orders
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Order ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/purchase-orders/{id} [delete]
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	if err := h.orderService.Delete(c.Request.Context(), c.Param("id"), currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Purchase order deleted successfully"}))
}

// UpdateStatus moves an order along its fulfillment lifecycle
// @Summary      Change order status
// @Tags         purchase-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "Order ID"
// @Param        request  body      service.OrderStatusInput  true  "Target status"
// @Success      200      {object}  response.Response{data=model.PurchaseOrder}
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-orders/{id}/status [patch]
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req service.OrderStatusInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	order, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}

// ReceiveItem books received goods against one order line
// @Summary      Receive order item
// @Tags         purchase-orders
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Order ID"
// @Param        itemId   path      string                true  "Order item ID"
// @Param        request  body      service.ReceiveInput  true  "Received quantity"
// @Success      200      {object}  response.Response{data=model.PurchaseOrder}
// @Failure      422      {object}  response.Response
// @Router       /api/purchase-orders/{id}/items/{itemId}/receive [post]
func (h *OrderHandler) ReceiveItem(c *gin.Context) {
	var req service.ReceiveInput
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	order, err := h.orderService.ReceiveItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, order))
}
