package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/contract-ai/internal/middleware"
	"github.com/ashwinyue/contract-ai/internal/service"
)

// QueryHandler 检索问答处理器
type QueryHandler struct {
	svc *service.Services
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(svc *service.Services) *QueryHandler {
	return &QueryHandler{svc: svc}
}

// AskRequest 提问请求
// DocumentID 非空时将检索限定到该文档
type AskRequest struct {
	Question   string `json:"question" binding:"required"`
	DocumentID string `json:"document_id"`
}

// Ask 针对租户合同提问
func (h *QueryHandler) Ask(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid parameters: "+err.Error())
		return
	}

	answer, err := h.svc.RAG.Ask(c.Request.Context(), tenantID, req.Question, req.DocumentID)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, answer)
}

// History 分页查询问答历史
func (h *QueryHandler) History(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	records, total, err := h.svc.RAG.ListHistory(c.Request.Context(), tenantID,
		(page-1)*pageSize, pageSize)
	if err != nil {
		Error(c, err)
		return
	}
	SuccessWithPagination(c, records, total, page, pageSize)
}

// Suggestions 推荐问题
func (h *QueryHandler) Suggestions(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	suggestions, err := h.svc.RAG.Suggestions(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, gin.H{"suggestions": suggestions})
}

// Analytics 合同统计
func (h *QueryHandler) Analytics(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	analytics, err := h.svc.RAG.GetAnalytics(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, analytics)
}
