package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dpxrk/Pactwise-sub001/internal/common"
	"github.com/dpxrk/Pactwise-sub001/internal/logger"
	"github.com/dpxrk/Pactwise-sub001/internal/tenant"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 上传 + 提取协作方
// 上传同步返回文档记录与结果承诺；文本提取与分类在后台完成。
type Service struct {
	db          *gorm.DB
	basePath    string
	maxFileSize int64
}

// NewService 创建提取服务
func NewService(db *gorm.DB, basePath string, maxFileSize int64) *Service {
	if basePath == "" {
		basePath = "./documents"
	}
	if maxFileSize <= 0 {
		maxFileSize = 20 << 20 // 20MB
	}
	return &Service{
		db:          db,
		basePath:    basePath,
		maxFileSize: maxFileSize,
	}
}

// Upload 保存文件并启动后台提取
func (s *Service) Upload(ctx context.Context, file FileInput, uploadCtx UploadContext) (*Document, *ResultPromise, error) {
	tc, err := tenant.RequireTenant(ctx)
	if err != nil {
		return nil, nil, err
	}

	if len(file.Data) == 0 {
		return nil, nil, common.NewBusinessError(common.CodeInvalidRequest, "上传文件为空")
	}
	if int64(len(file.Data)) > s.maxFileSize {
		return nil, nil, common.NewBusinessError(common.CodeInvalidRequest,
			fmt.Sprintf("文件超过大小限制 (%d 字节)", s.maxFileSize))
	}

	// 1. 落盘
	docID := uuid.New().String()
	dir := filepath.Join(s.basePath, tc.TenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("创建文档目录失败: %w", err)
	}
	storagePath := filepath.Join(dir, docID+filepath.Ext(file.Name))
	if err := os.WriteFile(storagePath, file.Data, 0o644); err != nil {
		return nil, nil, fmt.Errorf("写入文档失败: %w", err)
	}

	// 2. 建档
	doc := &Document{
		ID:          docID,
		TenantID:    tc.TenantID,
		FileName:    file.Name,
		ContentType: file.ContentType,
		SizeBytes:   int64(len(file.Data)),
		StoragePath: storagePath,
		ContractID:  uploadCtx.ContractID,
		VendorID:    uploadCtx.VendorID,
		Status:      "processing",
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, nil, fmt.Errorf("创建文档记录失败: %w", err)
	}

	// 3. 后台提取，承诺异步兑现
	promise := newResultPromise()
	go s.extract(doc, file, promise)

	return doc, promise, nil
}

// Get 查询文档
func (s *Service) Get(ctx context.Context, tenantID, docID string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("id = ?", docID).
		First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, common.NewBusinessErrorWithCode(common.CodeDocumentNotFound)
		}
		return nil, fmt.Errorf("查询文档失败: %w", err)
	}
	return &doc, nil
}

// extract 后台提取；不依赖请求上下文
func (s *Service) extract(doc *Document, file FileInput, promise *ResultPromise) {
	ctx := context.Background()

	text, err := extractText(file.Name, file.Data)
	if err != nil {
		s.failDocument(ctx, doc.ID, err.Error())
		promise.reject(fmt.Errorf("文档提取失败: %w", err))
		return
	}

	classification, confidence := classify(text)
	result := &Result{
		DocumentID:     doc.ID,
		Text:           text,
		Classification: classification,
		Confidence:     confidence,
	}

	// serializer:json 只在结构体写入时生效，extraction 字段不能走 map Updates
	patch := &Document{Status: "completed", Extraction: result.AsMap()}
	if err := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", doc.ID).
		Select("status", "extraction").
		Updates(patch).Error; err != nil {
		logger.Error("写入提取结果失败",
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
	}

	promise.resolve(result)
}

func (s *Service) failDocument(ctx context.Context, docID, errMsg string) {
	if err := s.db.WithContext(ctx).Model(&Document{}).
		Where("id = ?", docID).
		Updates(map[string]any{
			"status":        "failed",
			"error_message": errMsg,
		}).Error; err != nil {
		logger.Error("写入文档失败状态失败",
			zap.String("document_id", docID),
			zap.Error(err),
		)
	}
}
