package service

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"askmynotes-go/internal/config"
	"askmynotes-go/internal/model"
	"askmynotes-go/internal/repository"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/chunker"
	"askmynotes-go/pkg/embedding"
	"askmynotes-go/pkg/kafka"
	"askmynotes-go/pkg/log"
	"askmynotes-go/pkg/vector"
)

// ObjectStore 是摄取管线对对象存储的依赖。
type ObjectStore interface {
	Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Get(ctx context.Context, objectName string) (io.ReadCloser, error)
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// TextExtractor 是摄取管线对文本抽取服务的依赖。
type TextExtractor interface {
	ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error)
}

// EventPublisher 是摄取管线对事件发布的依赖。
type EventPublisher interface {
	PublishDocumentIngested(ctx context.Context, event kafka.DocumentIngestedEvent) error
}

// DocumentService 接口定义了文档摄取与查询操作。
type DocumentService interface {
	// Upload 同步执行完整的摄取管线：校验学科归属、保存原始文件、
	// 建立元数据记录、抽取文本、切块、生成向量并写入向量库，最后回填块数。
	// 向量写入失败时元数据记录保持既有块数不回滚。
	Upload(ctx context.Context, userID uint, subject, fileName string, file io.Reader, size int64, contentType string) (*model.UploadResponse, error)
	List(ctx context.Context, userID uint, subject string) ([]model.DocumentDTO, error)
}

// documentService 是 DocumentService 接口的实现。
type documentService struct {
	profileService ProfileService
	docRepo        repository.DocumentRepository
	store          ObjectStore
	extractor      TextExtractor
	provider       embedding.Provider
	vectorStore    vector.Store
	publisher      EventPublisher
	ingestionCfg   config.IngestionConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。publisher 可以为 nil。
func NewDocumentService(
	profileService ProfileService,
	docRepo repository.DocumentRepository,
	store ObjectStore,
	extractor TextExtractor,
	provider embedding.Provider,
	vectorStore vector.Store,
	publisher EventPublisher,
	ingestionCfg config.IngestionConfig,
) DocumentService {
	return &documentService{
		profileService: profileService,
		docRepo:        docRepo,
		store:          store,
		extractor:      extractor,
		provider:       provider,
		vectorStore:    vectorStore,
		publisher:      publisher,
		ingestionCfg:   ingestionCfg,
	}
}

// Upload 执行文档摄取管线。
func (s *documentService) Upload(ctx context.Context, userID uint, subject, fileName string, file io.Reader, size int64, contentType string) (*model.UploadResponse, error) {
	log.Infof("[DocumentService] 开始处理文档上传, userID: %d, subject: '%s', fileName: '%s'", userID, subject, fileName)

	if userID == 0 {
		return nil, apperr.Validationf("owner id is required")
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, apperr.Validationf("file name is required")
	}

	// 1. 校验学科归属，未通过则不做任何存储或向量工作
	log.Info("[DocumentService] 步骤1: 校验学科归属")
	if err := s.profileService.ValidateSubject(userID, subject); err != nil {
		return nil, err
	}

	// 2. 保存原始文件
	storageKey := uuid.NewString() + filepath.Ext(fileName)
	log.Infof("[DocumentService] 步骤2: 保存原始文件到对象存储, key: '%s'", storageKey)
	if err := s.store.Put(ctx, storageKey, file, size, contentType); err != nil {
		return nil, err
	}

	// 3. 创建文档元数据记录，块数为 0
	log.Info("[DocumentService] 步骤3: 创建文档元数据记录")
	doc := &model.Document{
		UserID:       userID,
		Subject:      subject,
		DocumentName: fileName,
		StorageKey:   storageKey,
	}
	if err := s.docRepo.Create(doc); err != nil {
		return nil, apperr.WrapInfra("failed to create document record", err)
	}

	// 4. 从对象存储读回文件并抽取文本
	log.Info("[DocumentService] 步骤4: 使用 Tika 抽取文本内容")
	object, err := s.store.Get(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, apperr.WrapInfra("failed to read stored object", err)
	}
	text, err := s.extractor.ExtractText(ctx, bytes.NewReader(buf.Bytes()), fileName)
	if err != nil {
		return nil, err
	}
	log.Infof("[DocumentService] 步骤4: 文本抽取完成, 长度: %d 字符", utf8.RuneCountInString(text))

	// 5. 文本切块。空文本产生 0 个块，此时跳过向量写入，块数保持 0。
	log.Infof("[DocumentService] 步骤5: 文本切块, chunkSize: %d, overlap: %d",
		s.ingestionCfg.ChunkSize, s.ingestionCfg.ChunkOverlap)
	chunks, err := chunker.Split(text, s.ingestionCfg.ChunkSize, s.ingestionCfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	log.Infof("[DocumentService] 步骤5: 切块完成, 共 %d 个分块", len(chunks))

	if len(chunks) > 0 {
		// 6. 生成向量
		log.Info("[DocumentService] 步骤6: 生成向量")
		vectors, err := s.provider.Embed(ctx, chunks)
		if err != nil {
			return nil, err
		}

		// 7. 写入向量库
		log.Info("[DocumentService] 步骤7: 写入向量库")
		points := make([]vector.Point, len(chunks))
		for i, chunk := range chunks {
			points[i] = vector.Point{
				Vector: vectors[i],
				Payload: vector.Payload{
					OwnerID:      userID,
					Subject:      subject,
					DocumentID:   strconv.FormatUint(uint64(doc.ID), 10),
					DocumentName: fileName,
					ChunkIndex:   i,
					ChunkText:    chunk,
				},
			}
		}
		if err := s.vectorStore.Upsert(ctx, points); err != nil {
			return nil, err
		}

		// 8. 回填块数
		if err := s.docRepo.UpdateTotalChunks(doc.ID, len(chunks)); err != nil {
			return nil, apperr.WrapInfra("failed to update document chunk count", err)
		}
		doc.TotalChunks = len(chunks)
	}

	// 9. 发布摄取完成事件，失败只记录日志
	if s.publisher != nil {
		event := kafka.DocumentIngestedEvent{
			OwnerID:      userID,
			Subject:      subject,
			DocumentID:   strconv.FormatUint(uint64(doc.ID), 10),
			DocumentName: fileName,
			TotalChunks:  doc.TotalChunks,
			IngestedAt:   time.Now(),
		}
		if err := s.publisher.PublishDocumentIngested(ctx, event); err != nil {
			log.Errorf("[DocumentService] 发布文档摄取事件失败, docID: %d, error: %v", doc.ID, err)
		}
	}

	log.Infof("[DocumentService] 文档摄取完成, docID: %d, totalChunks: %d", doc.ID, doc.TotalChunks)
	return &model.UploadResponse{
		DocumentID:   doc.ID,
		DocumentName: doc.DocumentName,
		Subject:      doc.Subject,
		TotalChunks:  doc.TotalChunks,
	}, nil
}

// List 返回用户的文档列表，subject 非空时按学科过滤。
func (s *documentService) List(ctx context.Context, userID uint, subject string) ([]model.DocumentDTO, error) {
	if userID == 0 {
		return nil, apperr.Validationf("owner id is required")
	}
	docs, err := s.docRepo.FindByUser(userID, subject)
	if err != nil {
		return nil, apperr.WrapInfra("failed to list documents", err)
	}

	dtos := make([]model.DocumentDTO, 0, len(docs))
	for _, doc := range docs {
		dto := model.DocumentDTO{
			ID:           doc.ID,
			Subject:      doc.Subject,
			DocumentName: doc.DocumentName,
			TotalChunks:  doc.TotalChunks,
			CreatedAt:    model.LocalTime(doc.CreatedAt),
		}
		if url, err := s.store.PresignedURL(ctx, doc.StorageKey, time.Hour); err == nil {
			dto.DownloadURL = url
		} else {
			log.Warnf("[DocumentService] 生成下载链接失败, docID: %d, error: %v", doc.ID, err)
		}
		dtos = append(dtos, dto)
	}
	return dtos, nil
}
