package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant 租户，数据隔离边界
// 所有文档、分块、查询记录都归属于一个租户，且归属关系创建后不可变更
type Tenant struct {
	ID           string `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name         string `json:"name" gorm:"type:varchar(255);not null"`
	Description  string `json:"description" gorm:"type:text"`
	Status       string `json:"status" gorm:"type:varchar(50);default:'active'"`
	StorageQuota int64  `json:"storage_quota" gorm:"default:10737418240"` // 10GB
	StorageUsed  int64  `json:"storage_used" gorm:"default:0"`

	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate GORM 钩子
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}
