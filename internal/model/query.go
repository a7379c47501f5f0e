package model

import "time"

// QueryRecord 问答历史记录
// 每次查询成功写入一条，之后不再修改，用于历史与审计
type QueryRecord struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	TenantID string `gorm:"index;size:36;not null" json:"tenant_id"`
	Question string `gorm:"type:text;not null" json:"question"`
	Answer   string `gorm:"type:text" json:"answer"`
	Evidence string `gorm:"type:text" json:"evidence"` // 证据分块 ID 的 JSON 数组

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (QueryRecord) TableName() string {
	return "query_records"
}
