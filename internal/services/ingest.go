package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fyerfyer/doc-quiz-system/internal/document"
	"github.com/fyerfyer/doc-quiz-system/internal/embedding"
	"github.com/fyerfyer/doc-quiz-system/internal/metrics"
	"github.com/fyerfyer/doc-quiz-system/internal/models"
	"github.com/fyerfyer/doc-quiz-system/internal/repository"
	"github.com/fyerfyer/doc-quiz-system/internal/vectordb"
	"github.com/fyerfyer/doc-quiz-system/pkg/storage"
	"github.com/fyerfyer/doc-quiz-system/pkg/taskqueue"
	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultIngestWorkers = 4
	defaultBatchSize     = 16
	defaultIngestTimeout = 10 * time.Minute
)

// ErrAsyncDisabled 未配置暂存存储或任务队列
var ErrAsyncDisabled = errors.New("async ingestion not enabled")

// IngestRequest 一份待入库的文档
type IngestRequest struct {
	Data     []byte
	Name     string // 展示名，扩展名决定解析器
	Category string
}

// IngestResult 入库结果，失败时 SegmentCount 为 0
type IngestResult struct {
	DocumentID   string `json:"documentId,omitempty"`
	Success      bool   `json:"success"`
	SegmentCount int    `json:"segmentCount"`
	Error        string `json:"error,omitempty"`
}

func failedResult(docID string, err error) IngestResult {
	return IngestResult{DocumentID: docID, Error: err.Error()}
}

// IngestService 文档入库：解析、分段、向量化、写入知识库
// 任一分段失败则整份文档失败，已写入的分段全部回滚
type IngestService struct {
	chunker  *document.Chunker
	embedder *embedding.Shared
	store    vectordb.Repository
	status   *StatusManager
	files    storage.Storage
	queue    taskqueue.Queue

	workers   int
	batchSize int
	timeout   time.Duration
	maxBytes  int64
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// IngestOption 入库服务配置选项
type IngestOption func(*IngestService)

// WithWorkers 设置并发写入的 worker 数
func WithWorkers(n int) IngestOption {
	return func(s *IngestService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBatchSize 设置每次批量向量化的分段数
func WithBatchSize(n int) IngestOption {
	return func(s *IngestService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithTimeout 设置单份文档的处理超时
func WithTimeout(d time.Duration) IngestOption {
	return func(s *IngestService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMaxBytes 设置文档大小上限，0 表示不限制
func WithMaxBytes(n int64) IngestOption {
	return func(s *IngestService) {
		s.maxBytes = n
	}
}

// WithStatusManager 设置入库记录管理器，不设置则不记录
func WithStatusManager(m *StatusManager) IngestOption {
	return func(s *IngestService) {
		s.status = m
	}
}

// WithAsync 启用异步入库
func WithAsync(files storage.Storage, queue taskqueue.Queue) IngestOption {
	return func(s *IngestService) {
		s.files = files
		s.queue = queue
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) IngestOption {
	return func(s *IngestService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) IngestOption {
	return func(s *IngestService) {
		s.metrics = m
	}
}

// NewIngestService 创建入库服务
// embedder 与检索共用同一个 Shared
func NewIngestService(chunker *document.Chunker, embedder *embedding.Shared, store vectordb.Repository, opts ...IngestOption) *IngestService {
	s := &IngestService{
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		workers:   defaultIngestWorkers,
		batchSize: defaultBatchSize,
		timeout:   defaultIngestTimeout,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AsyncEnabled 是否支持异步入库
func (s *IngestService) AsyncEnabled() bool {
	return s.files != nil && s.queue != nil && s.status != nil
}

// Ingest 同步入库一份文档
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) IngestResult {
	name := strings.TrimSpace(req.Name)
	category, parser, err := s.check(name, req.Category)
	if err != nil {
		return failedResult("", err)
	}
	if len(req.Data) == 0 {
		return failedResult("", models.ErrEmptyDocument)
	}
	if s.maxBytes > 0 && int64(len(req.Data)) > s.maxBytes {
		return failedResult("", fmt.Errorf("document exceeds %d bytes", s.maxBytes))
	}

	doc := &models.Document{
		ID:       uuid.New().String(),
		FileName: name,
		FileType: string(document.DetectContentType(name)),
		FileSize: int64(len(req.Data)),
		Category: category,
	}
	if err := s.createRecord(ctx, doc); err != nil {
		return failedResult("", err)
	}

	count, err := s.process(ctx, doc, func() ([]document.Unit, error) {
		return parser.Parse(bytes.NewReader(req.Data), name)
	})
	if err != nil {
		return failedResult(doc.ID, err)
	}
	return IngestResult{DocumentID: doc.ID, Success: true, SegmentCount: count}
}

// IngestText 直接入库一段文本
func (s *IngestService) IngestText(ctx context.Context, name, category, content string) IngestResult {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "text"
	}
	if document.DetectContentType(name) == document.Unknown {
		name += ".txt"
	}
	return s.Ingest(ctx, IngestRequest{Data: []byte(content), Name: name, Category: category})
}

// Submit 暂存文件并投递异步入库任务，返回 pending 状态的记录
func (s *IngestService) Submit(ctx context.Context, r io.Reader, name, category string) (*models.Document, error) {
	if !s.AsyncEnabled() {
		return nil, ErrAsyncDisabled
	}
	name = strings.TrimSpace(name)
	cat, _, err := s.check(name, category)
	if err != nil {
		return nil, err
	}

	info, err := s.files.Save(ctx, r, name)
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}

	doc := &models.Document{
		ID:          uuid.New().String(),
		FileName:    name,
		FileType:    string(document.DetectContentType(name)),
		FileSize:    info.Size,
		StoragePath: info.ID,
		Category:    cat,
	}
	if err := s.status.Create(ctx, doc); err != nil {
		s.files.Delete(ctx, info.ID)
		return nil, err
	}

	taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskIngestDocument, doc.ID, taskqueue.IngestPayload{
		DocumentID: doc.ID,
		FileID:     info.ID,
		FileName:   name,
		Category:   string(cat),
	})
	if err != nil {
		s.markFailed(ctx, doc.ID, err)
		s.files.Delete(ctx, info.ID)
		return nil, fmt.Errorf("failed to enqueue ingest task: %w", err)
	}
	if err := s.status.SetTaskID(ctx, doc.ID, taskID); err != nil {
		s.logger.WithError(err).WithField("doc_id", doc.ID).Warn("Failed to link ingest task")
	}
	doc.TaskID = taskID

	s.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"task_id":  taskID,
		"filename": name,
	}).Info("Document queued for ingestion")
	return doc, nil
}

// ProcessStored 处理已暂存的文档，由异步任务调用
// 成功后删除暂存文件，失败时保留以便重试
func (s *IngestService) ProcessStored(ctx context.Context, docID string) (IngestResult, error) {
	if !s.AsyncEnabled() {
		return IngestResult{}, ErrAsyncDisabled
	}
	doc, err := s.status.Get(ctx, docID)
	if err != nil {
		return failedResult(docID, err), err
	}
	parser, err := document.ParserFactory(doc.FileName)
	if err != nil {
		s.markFailed(ctx, docID, err)
		return failedResult(docID, err), err
	}

	count, err := s.process(ctx, doc, func() ([]document.Unit, error) {
		rc, err := s.files.Open(ctx, doc.StoragePath)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return parser.Parse(rc, doc.FileName)
	})
	if err != nil {
		return failedResult(docID, err), err
	}

	if err := s.files.Delete(ctx, doc.StoragePath); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Warn("Failed to remove staged upload")
	}
	return IngestResult{DocumentID: docID, Success: true, SegmentCount: count}, nil
}

// PurgeCategory 删除知识库中某个分类的全部分段
func (s *IngestService) PurgeCategory(ctx context.Context, category string) (int, error) {
	cat, err := models.ParseCategory(category)
	if err != nil {
		return 0, err
	}
	if cat == "" {
		return 0, fmt.Errorf("%w: category is required", models.ErrInvalidCategory)
	}
	n, err := s.store.DeleteByCategory(ctx, string(cat))
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"category": cat,
		"deleted":  n,
	}).Info("Category purged from knowledge store")
	return n, nil
}

// GetRecord 获取入库记录
func (s *IngestService) GetRecord(ctx context.Context, id string) (*models.Document, error) {
	if s.status == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
	}
	return s.status.Get(ctx, id)
}

// ListRecords 分页列出入库记录
func (s *IngestService) ListRecords(ctx context.Context, offset, limit int, filter repository.ListFilter) ([]*models.Document, int64, error) {
	if s.status == nil {
		return []*models.Document{}, 0, nil
	}
	return s.status.List(ctx, offset, limit, filter)
}

// check 校验分类和文件格式
func (s *IngestService) check(name, category string) (models.Category, document.Parser, error) {
	cat, err := models.ParseCategory(category)
	if err != nil {
		return "", nil, err
	}
	if cat == "" {
		return "", nil, fmt.Errorf("%w: category is required", models.ErrInvalidCategory)
	}
	if name == "" {
		return "", nil, errors.New("document name cannot be empty")
	}
	parser, err := document.ParserFactory(name)
	if err != nil {
		return "", nil, err
	}
	return cat, parser, nil
}

func (s *IngestService) createRecord(ctx context.Context, doc *models.Document) error {
	if s.status == nil {
		return nil
	}
	return s.status.Create(ctx, doc)
}

// process 解析、分段并写入知识库，同时维护入库记录
func (s *IngestService) process(ctx context.Context, doc *models.Document, parse func() ([]document.Unit, error)) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"filename": doc.FileName,
		"category": doc.Category,
	})

	fail := func(err error) (int, error) {
		s.markFailed(ctx, doc.ID, err)
		s.metrics.IngestDone(false, 0)
		log.WithError(err).Error("Document ingestion failed")
		return 0, err
	}

	if s.status != nil {
		if err := s.status.MarkProcessing(ctx, doc.ID); err != nil {
			return fail(err)
		}
	}

	units, err := safeParse(parse)
	if err != nil {
		return fail(fmt.Errorf("failed to parse document: %w", err))
	}
	if document.TotalLength(units) == 0 {
		return fail(models.ErrEmptyDocument)
	}

	s.updateStage(ctx, doc.ID, models.StageChunking, 10)
	segments, err := s.split(units, document.SegmentMeta{Source: doc.FileName, Category: doc.Category})
	if err != nil {
		return fail(err)
	}
	if len(segments) == 0 {
		return fail(models.ErrEmptyDocument)
	}

	s.updateStage(ctx, doc.ID, models.StageIndexing, 20)
	ids, err := s.index(ctx, doc.ID, segments)
	if err != nil {
		return fail(err)
	}

	if s.status != nil {
		mapping := make([]*models.DocumentSegment, len(segments))
		for i, seg := range segments {
			mapping[i] = &models.DocumentSegment{
				DocumentID: doc.ID,
				VectorID:   ids[i],
				Position:   seg.Index,
				Page:       seg.Page,
				StartPos:   seg.Start,
				EndPos:     seg.End,
			}
		}
		if err := s.status.SaveSegments(ctx, mapping); err != nil {
			log.WithError(err).Warn("Failed to save segment mapping")
		}
		if err := s.status.MarkCompleted(ctx, doc.ID, len(segments)); err != nil {
			log.WithError(err).Error("Failed to mark document as completed")
		}
	}

	s.metrics.IngestDone(true, len(segments))
	log.WithField("segment_count", len(segments)).Info("Document ingested")
	return len(segments), nil
}

// split 分段并丢弃纯空白分段
func (s *IngestService) split(units []document.Unit, meta document.SegmentMeta) ([]document.Segment, error) {
	all, err := s.chunker.Split(units, meta)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, seg := range all {
		if strings.TrimSpace(seg.Text) != "" {
			out = append(out, seg)
		}
	}
	return out, nil
}

// index 分批向量化并写入，批次在固定大小的 worker 池中执行
// 第一个错误取消其余批次，随后删除所有已写入的分段；返回的 ID 与 segments 一一对应
func (s *IngestService) index(ctx context.Context, docID string, segments []document.Segment) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		ids      = make([]string, len(segments))
		inserted []string
		firstErr error
		done     int32
	)
	setErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	batches := (len(segments) + s.batchSize - 1) / s.batchSize
	pool := workerpool.New(s.workers)
	for start := 0; start < len(segments); start += s.batchSize {
		end := start + s.batchSize
		if end > len(segments) {
			end = len(segments)
		}
		lo, batch := start, segments[start:end]

		pool.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			texts := make([]string, len(batch))
			for i, seg := range batch {
				texts[i] = seg.Text
			}
			vectors, err := s.embedder.EmbedBatch(ctx, texts)
			if err != nil {
				setErr(fmt.Errorf("embed segments: %w", err))
				return
			}
			if len(vectors) != len(batch) {
				setErr(fmt.Errorf("embed segments: %w: got %d vectors for %d segments",
					models.ErrEmbeddingUnavailable, len(vectors), len(batch)))
				return
			}

			for i, seg := range batch {
				if ctx.Err() != nil {
					setErr(ctx.Err())
					return
				}
				start := time.Now()
				id, err := s.store.Insert(ctx, vectordb.Document{
					Text:     seg.Text,
					Vector:   vectors[i],
					Source:   seg.Source,
					Category: string(seg.Category),
					Page:     seg.Page,
					Index:    seg.Index,
				})
				s.metrics.ObserveCall("store", "insert", outcome(err), time.Since(start))
				if err != nil {
					setErr(fmt.Errorf("insert segment %d: %w", seg.Index, err))
					return
				}
				mu.Lock()
				ids[lo+i] = id
				inserted = append(inserted, id)
				mu.Unlock()
			}

			n := atomic.AddInt32(&done, 1)
			s.updateStage(ctx, docID, models.StageIndexing, 20+int(n)*75/batches)
		})
	}
	pool.StopWait()

	if firstErr != nil {
		s.rollback(ctx, docID, inserted)
		return nil, firstErr
	}
	return ids, nil
}

// rollback 删除已写入的分段，不受已取消的 ctx 影响
func (s *IngestService) rollback(ctx context.Context, docID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), ids...); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"doc_id":   docID,
			"segments": len(ids),
		}).Error("Failed to roll back inserted segments")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"doc_id":   docID,
		"segments": len(ids),
	}).Warn("Rolled back inserted segments")
}

func (s *IngestService) updateStage(ctx context.Context, docID string, stage models.ProcessStage, progress int) {
	if s.status == nil {
		return
	}
	if err := s.status.UpdateStage(ctx, docID, stage, progress); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Debug("Failed to update ingest progress")
	}
}

func (s *IngestService) markFailed(ctx context.Context, docID string, cause error) {
	if s.status == nil {
		return
	}
	if err := s.status.MarkFailed(context.WithoutCancel(ctx), docID, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("doc_id", docID).Error("Failed to mark document as failed")
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// safeParse 解析器内部的 panic 转为错误，保证记录能进入 failed 状态
func safeParse(parse func() ([]document.Unit, error)) (units []document.Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			units, err = nil, fmt.Errorf("parser panic: %v", r)
		}
	}()
	return parse()
}
