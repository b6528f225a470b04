package model

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus 文档处理状态
type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// FileType 支持的文件类型
type FileType string

const (
	FileTypePDF  FileType = "PDF"
	FileTypeDOCX FileType = "DOCX"
	FileTypeTXT  FileType = "TXT"
	FileTypeXLSX FileType = "XLSX"
	FileTypeXLS  FileType = "XLS"
)

// FileTypeFromName maps a file name extension to a FileType.
func FileTypeFromName(name string) (FileType, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FileTypePDF, true
	case ".docx":
		return FileTypeDOCX, true
	case ".txt":
		return FileTypeTXT, true
	case ".xlsx":
		return FileTypeXLSX, true
	case ".xls":
		return FileTypeXLS, true
	}
	return "", false
}

// Document 用户上传的文档
type Document struct {
	ID           string          `gorm:"primaryKey;size:36" json:"document_id"`
	UserID       string          `gorm:"index;size:36;not null" json:"-"`
	Filename     string          `gorm:"size:255" json:"filename"`
	FileType     FileType        `gorm:"size:10" json:"file_type"`
	FileSize     int64           `gorm:"default:0" json:"file_size"`
	FilePath     string          `gorm:"size:500" json:"-"`
	PageCount    *int            `json:"page_count"`
	WordCount    *int            `json:"word_count"`
	ChunkCount   *int            `json:"chunk_count"`
	Status       DocumentStatus  `gorm:"size:20;index;default:processing" json:"status"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	Chunks       []DocumentChunk `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

// DocumentChunk 文档分块
// (DocumentID, ChunkIndex) is not unique: re-running ingestion appends rows.
type DocumentChunk struct {
	ID          string    `gorm:"primaryKey;size:36" json:"chunk_id"`
	DocumentID  string    `gorm:"index:idx_chunk_doc_index;size:36;not null" json:"document_id"`
	ChunkIndex  int       `gorm:"index:idx_chunk_doc_index" json:"chunk_index"`
	Text        string    `gorm:"type:text" json:"text"`
	ChunkLength int       `json:"chunk_length"`
	PageNumber  *int      `json:"page_number,omitempty"`
	VectorID    string    `gorm:"size:255;index" json:"vector_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Document) TableName() string {
	return "documents"
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
