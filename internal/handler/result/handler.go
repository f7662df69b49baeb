package result

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meditrack/meditrack-api/internal/handler"
	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/service/result"
)

type Handler struct {
	service result.ResultService
}

func NewHandler(service result.ResultService) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	results := r.Group("/lab/results")
	{
		results.POST("", h.SubmitResult)
		results.GET("/critical", h.ListCriticalResults)
		results.GET("/:id", h.GetResult)
		results.POST("/:id/verify", h.VerifyResult)
		results.GET("/order/:orderId", h.ListResultsByOrder)
	}
}

func (h *Handler) SubmitResult(c *gin.Context) {
	var req model.SubmitResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.SubmitResult(c.Request.Context(), &req)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) GetResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid result ID"))
		return
	}

	found, err := h.service.GetResult(c.Request.Context(), id)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(found))
}

func (h *Handler) ListResultsByOrder(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid order ID"))
		return
	}

	results, err := h.service.GetResultsByOrder(c.Request.Context(), orderID)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(results))
}

func (h *Handler) ListCriticalResults(c *gin.Context) {
	results, err := h.service.GetCriticalResults(c.Request.Context())
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(results))
}

func (h *Handler) VerifyResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid result ID"))
		return
	}

	var req model.VerifyResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	verified, err := h.service.VerifyResult(c.Request.Context(), id, req.VerifiedBy)
	if err != nil {
		handler.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(verified))
}
