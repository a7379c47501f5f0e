package model

import "time"

// 文档处理状态
const (
	StatusPending   = "pending"
	StatusParsing   = "parsing"
	StatusChunking  = "chunking"
	StatusEmbedding = "embedding"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// 合同生命周期状态
const (
	ContractActive     = "Active"
	ContractRenewalDue = "Renewal Due"
	ContractExpired    = "Expired"
)

// 合同风险评级
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Document 合同文档
// 合同元数据（名称、签约方、到期日）在处理完成前可能为空
type Document struct {
	ID               string `gorm:"primaryKey;size:36" json:"id"`
	TenantID         string `gorm:"index;size:36;not null" json:"tenant_id"`
	FileName         string `gorm:"size:255" json:"file_name"`          // 存储文件名
	OriginalFileName string `gorm:"size:255" json:"original_file_name"` // 上传时的原始文件名
	FilePath         string `gorm:"size:500" json:"-"`
	FileSize         int64  `gorm:"default:0" json:"file_size"`
	FileType         string `gorm:"size:10" json:"file_type"` // .pdf / .txt / .docx

	// 合同元数据
	ContractName string     `gorm:"size:255" json:"contract_name"`
	Parties      string     `gorm:"type:text" json:"parties"` // 签约方 JSON 数组
	ExpiryDate   *time.Time `json:"expiry_date,omitempty"`
	Status       string     `gorm:"size:20;default:'Active'" json:"status"`
	RiskScore    string     `gorm:"size:10;default:'Low'" json:"risk_score"`

	// 处理状态
	ProcessingStatus string `gorm:"size:20;index;default:'pending'" json:"processing_status"`
	ProcessingStage  string `gorm:"size:20" json:"processing_stage,omitempty"` // 失败时记录所在阶段
	ErrorMsg         string `gorm:"type:text" json:"error_msg,omitempty"`
	RetryCount       int    `gorm:"default:0" json:"retry_count"`
	ChunkCount       int    `gorm:"default:0" json:"chunk_count"`

	UploadedOn time.Time `gorm:"autoCreateTime" json:"uploaded_on"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Chunks []Chunk `gorm:"foreignKey:DocumentID" json:"-"`
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

// IsTerminal 是否处于终态
func (d *Document) IsTerminal() bool {
	return d.ProcessingStatus == StatusCompleted || d.ProcessingStatus == StatusFailed
}

// Chunk 文档分块
// 创建后不可变，仅随文档删除而删除；TenantID 冗余自文档便于按租户过滤
type Chunk struct {
	ID         string  `gorm:"primaryKey;size:36" json:"id"`
	DocumentID string  `gorm:"index;size:36;not null" json:"document_id"`
	TenantID   string  `gorm:"index;size:36;not null" json:"tenant_id"`
	Content    string  `gorm:"type:text;not null" json:"content"`
	PageNumber int     `json:"page_number"`
	ChunkIndex int     `gorm:"index" json:"chunk_index"` // 文档内从 0 开始的序号
	Embedding  string  `gorm:"type:text" json:"-"`       // JSON 编码的向量
	Confidence float64 `gorm:"default:0" json:"confidence_score"`
	Metadata   JSON    `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (Chunk) TableName() string {
	return "chunks"
}
