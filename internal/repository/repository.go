package repository

import "github.com/ashwinyue/contract-ai/internal/database"

// Repositories 仓储集合
type Repositories struct {
	Tenant   TenantRepository
	User     UserRepository
	Document DocumentRepository
	Query    QueryRepository
}

// New 创建仓储集合
func New(db *database.DB) *Repositories {
	return &Repositories{
		Tenant:   NewTenantRepository(db),
		User:     NewUserRepository(db),
		Document: NewDocumentRepository(db),
		Query:    NewQueryRepository(db),
	}
}
