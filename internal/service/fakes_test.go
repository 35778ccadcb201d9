package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"askmynotes-go/internal/model"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/kafka"
	"askmynotes-go/pkg/llm"
	"askmynotes-go/pkg/vector"
)

// 本文件提供 service 层测试共享的内存版依赖实现。

type fakeProfileRepo struct {
	profiles map[uint]*model.Profile
	err      error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[uint]*model.Profile)}
}

func (r *fakeProfileRepo) FindByUserID(userID uint) (*model.Profile, error) {
	if r.err != nil {
		return nil, r.err
	}
	profile, ok := r.profiles[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *profile
	return &copied, nil
}

func (r *fakeProfileRepo) Upsert(profile *model.Profile) error {
	if r.err != nil {
		return r.err
	}
	if profile.ID == 0 {
		profile.ID = uint(len(r.profiles) + 1)
	}
	copied := *profile
	r.profiles[profile.UserID] = &copied
	return nil
}

// seedProfile 构造一个已注册三门学科的 ProfileService。
func seedProfile(userID uint, subjects [3]string) ProfileService {
	repo := newFakeProfileRepo()
	repo.profiles[userID] = &model.Profile{
		ID:       1,
		UserID:   userID,
		Subject1: subjects[0],
		Subject2: subjects[1],
		Subject3: subjects[2],
	}
	return NewProfileService(repo)
}

type fakeDocumentRepo struct {
	docs       []model.Document
	nextID     uint
	createErr  error
	updateErr  error
	findErr    error
	updateCall int
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{nextID: 1}
}

func (r *fakeDocumentRepo) Create(doc *model.Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	doc.ID = r.nextID
	doc.CreatedAt = time.Now()
	r.nextID++
	r.docs = append(r.docs, *doc)
	return nil
}

func (r *fakeDocumentRepo) UpdateTotalChunks(docID uint, totalChunks int) error {
	r.updateCall++
	if r.updateErr != nil {
		return r.updateErr
	}
	for i := range r.docs {
		if r.docs[i].ID == docID {
			r.docs[i].TotalChunks = totalChunks
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeDocumentRepo) FindByUser(userID uint, subject string) ([]model.Document, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []model.Document
	for _, doc := range r.docs {
		if doc.UserID != userID {
			continue
		}
		if subject != "" && doc.Subject != subject {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *fakeDocumentRepo) byID(docID uint) *model.Document {
	for i := range r.docs {
		if r.docs[i].ID == docID {
			return &r.docs[i]
		}
	}
	return nil
}

type fakeHistoryRepo struct {
	exchanges map[string][]model.ChatMessage
	appendErr error
	getErr    error
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{exchanges: make(map[string][]model.ChatMessage)}
}

func historyKey(userID uint, subject string) string {
	return fmt.Sprintf("%d:%s", userID, subject)
}

func (r *fakeHistoryRepo) GetHistory(ctx context.Context, userID uint, subject string) ([]model.ChatMessage, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.exchanges[historyKey(userID, subject)], nil
}

func (r *fakeHistoryRepo) AppendExchange(ctx context.Context, userID uint, subject, question, answer string) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	key := historyKey(userID, subject)
	now := time.Now()
	r.exchanges[key] = append(r.exchanges[key],
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	return nil
}

type fakeObjectStore struct {
	objects    map[string][]byte
	putErr     error
	getErr     error
	presignErr error
	putCalls   int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (s *fakeObjectStore) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	s.putCalls++
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.objects[objectName] = data
	return nil
}

func (s *fakeObjectStore) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[objectName]
	if !ok {
		return nil, apperr.Infraf("object %q not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeObjectStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	return "https://files.test/" + objectName, nil
}

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (e *fakeExtractor) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	return e.text, nil
}

type fakeLLM struct {
	answer   string
	stream   []string
	err      error
	calls    int
	messages []llm.Message
}

func (c *fakeLLM) Chat(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	c.calls++
	c.messages = messages
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func (c *fakeLLM) StreamChatMessages(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, writer llm.MessageWriter) error {
	c.calls++
	c.messages = messages
	if c.err != nil {
		return c.err
	}
	chunks := c.stream
	if len(chunks) == 0 {
		chunks = []string{c.answer}
	}
	for _, chunk := range chunks {
		if err := writer.WriteMessage(1, []byte(chunk)); err != nil {
			return err
		}
	}
	return nil
}

type fakePublisher struct {
	events []kafka.DocumentIngestedEvent
	err    error
}

func (p *fakePublisher) PublishDocumentIngested(ctx context.Context, event kafka.DocumentIngestedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

// failingVectorStore 的所有操作均返回 infrastructure 错误。
type failingVectorStore struct{}

func (failingVectorStore) EnsureCollection(ctx context.Context) error {
	return apperr.Infraf("vector store unreachable")
}

func (failingVectorStore) Upsert(ctx context.Context, points []vector.Point) error {
	return apperr.Infraf("vector store unreachable")
}

func (failingVectorStore) Search(ctx context.Context, vec []float32, ownerID uint, subject string, topK int) ([]vector.ScoredPoint, error) {
	return nil, apperr.Infraf("vector store unreachable")
}

// countingVectorStore 包装真实 Store，统计调用次数并记录最近一次检索的 topK。
type countingVectorStore struct {
	vector.Store
	upserts  int
	searches int
	lastTopK int
}

func (s *countingVectorStore) Upsert(ctx context.Context, points []vector.Point) error {
	s.upserts++
	return s.Store.Upsert(ctx, points)
}

func (s *countingVectorStore) Search(ctx context.Context, vec []float32, ownerID uint, subject string, topK int) ([]vector.ScoredPoint, error) {
	s.searches++
	s.lastTopK = topK
	return s.Store.Search(ctx, vec, ownerID, subject, topK)
}
