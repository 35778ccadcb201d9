package model

import "time"

// Document 对应于数据库中的 'documents' 表。
// TotalChunks 在摄取管线完成向量写入后回填，创建时为 0。
type Document struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uint      `gorm:"index;not null" json:"userId"`
	Subject      string    `gorm:"type:varchar(100);index;not null" json:"subject"`
	DocumentName string    `gorm:"type:varchar(255);not null" json:"documentName"`
	StorageKey   string    `gorm:"type:varchar(255);not null" json:"-"`
	TotalChunks  int       `gorm:"not null;default:0" json:"totalChunks"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentDTO 是文档列表接口返回的单项结构。
type DocumentDTO struct {
	ID           uint      `json:"id"`
	Subject      string    `json:"subject"`
	DocumentName string    `json:"documentName"`
	TotalChunks  int       `json:"totalChunks"`
	CreatedAt    LocalTime `json:"createdAt"`
	DownloadURL  string    `json:"downloadUrl,omitempty"`
}
