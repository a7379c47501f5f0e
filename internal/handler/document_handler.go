package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/contract-ai/internal/middleware"
	"github.com/ashwinyue/contract-ai/internal/service"
)

// DocumentHandler 合同文档处理器
type DocumentHandler struct {
	svc *service.Services
}

// NewDocumentHandler 创建文档处理器
func NewDocumentHandler(svc *service.Services) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload 上传合同文件
// 校验失败返回 400 且不创建任何记录，成功后异步处理
func (h *DocumentHandler) Upload(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "Missing file in form data")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		BadRequest(c, "Failed to read uploaded file")
		return
	}
	defer src.Close()

	doc, err := h.svc.Document.Upload(c.Request.Context(), tenantID,
		fileHeader.Filename, fileHeader.Size, src)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, doc)
}

// List 分页列出文档
func (h *DocumentHandler) List(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	docs, total, err := h.svc.Document.List(c.Request.Context(), tenantID, page, pageSize)
	if err != nil {
		Error(c, err)
		return
	}
	SuccessWithPagination(c, docs, total, page, pageSize)
}

// Get 获取文档详情
func (h *DocumentHandler) Get(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	doc, err := h.svc.Document.Get(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, doc)
}

// GetStatus 查询处理状态
func (h *DocumentHandler) GetStatus(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	status, err := h.svc.Document.GetStatus(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, status)
}

// GetChunks 获取文档分块
func (h *DocumentHandler) GetChunks(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	chunks, err := h.svc.Document.GetChunks(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, chunks)
}

// Delete 删除文档
func (h *DocumentHandler) Delete(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	if err := h.svc.Document.Delete(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		Error(c, err)
		return
	}
	NoContent(c)
}

// Reprocess 重新处理文档
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	doc, err := h.svc.Document.Reprocess(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, doc)
}
