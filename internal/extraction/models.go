package extraction

import (
	"github.com/dpxrk/Pactwise-sub001/internal/common"
)

// Document 已上传的源文档
type Document struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID string `json:"tenantId" gorm:"type:uuid;not null;index"`

	// 文件信息
	FileName    string `json:"fileName" gorm:"size:255;not null"`
	ContentType string `json:"contentType" gorm:"size:100"`
	SizeBytes   int64  `json:"sizeBytes"`
	StoragePath string `json:"storagePath" gorm:"size:512"`

	// 业务关联
	ContractID string `json:"contractId,omitempty" gorm:"type:uuid;index"`
	VendorID   string `json:"vendorId,omitempty" gorm:"type:uuid;index"`

	// 提取状态与结果
	Status         string         `json:"status" gorm:"size:50;not null;default:processing"` // processing, completed, failed
	Extraction     map[string]any `json:"extraction" gorm:"type:jsonb;serializer:json"`
	ErrorMessage   string         `json:"errorMessage" gorm:"type:text"`

	common.TimestampModel
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

// Result 提取结果
type Result struct {
	DocumentID     string  `json:"documentId"`
	Text           string  `json:"text"`
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
}

// AsMap 转为通用载荷格式
func (r *Result) AsMap() map[string]any {
	return map[string]any{
		"document_id":    r.DocumentID,
		"text":           r.Text,
		"classification": r.Classification,
		"confidence":     r.Confidence,
	}
}

// FileInput 上传入参
type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadContext 上传时的业务关联
type UploadContext struct {
	ContractID string
	VendorID   string
}
