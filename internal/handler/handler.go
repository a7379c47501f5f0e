package handler

import (
	"github.com/ashwinyue/contract-ai/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Auth     *AuthHandler
	Document *DocumentHandler
	Query    *QueryHandler
	System   *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Auth:     NewAuthHandler(svc),
		Document: NewDocumentHandler(svc),
		Query:    NewQueryHandler(svc),
		System:   NewSystemHandler(svc),
	}
}
