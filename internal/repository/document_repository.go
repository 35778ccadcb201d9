package repository

import (
	"gorm.io/gorm"

	"askmynotes-go/internal/model"
)

// DocumentRepository 接口定义了文档元数据的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	UpdateTotalChunks(docID uint, totalChunks int) error
	FindByUser(userID uint, subject string) ([]model.Document, error)
}

// documentRepository 是 DocumentRepository 接口的 GORM 实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条文档元数据记录。
func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

// UpdateTotalChunks 在向量写入完成后回填文档的块数。
func (r *documentRepository) UpdateTotalChunks(docID uint, totalChunks int) error {
	return r.db.Model(&model.Document{}).
		Where("id = ?", docID).
		Update("total_chunks", totalChunks).Error
}

// FindByUser 按创建时间倒序返回用户的文档，subject 非空时额外过滤学科。
func (r *documentRepository) FindByUser(userID uint, subject string) ([]model.Document, error) {
	var docs []model.Document
	q := r.db.Where("user_id = ?", userID)
	if subject != "" {
		q = q.Where("subject = ?", subject)
	}
	if err := q.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}
