//go:build faiss

package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于 Faiss 扁平索引的向量仓库
// 删除只做标记，索引中的向量保留，查询时跳过
type FaissRepository struct {
	mu        sync.RWMutex
	index     faiss.Index
	documents map[string]Document
	positions []string // 索引位置 -> 片段 ID，已删除为空串
	indexPath string
	metaPath  string
	dimension int
	distType  DistanceType
	seq       int64
}

// faissMeta 索引旁的元数据文件
type faissMeta struct {
	Documents map[string]Document `json:"documents"`
	Positions []string            `json:"positions"`
	Seq       int64               `json:"seq"`
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	distType, err := ParseDistanceType(string(config.DistanceType))
	if err != nil {
		return nil, err
	}

	repo := &FaissRepository{
		documents: make(map[string]Document),
		dimension: config.Dimension,
		distType:  distType,
	}
	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		repo.indexPath = config.Path
		repo.metaPath = config.Path + ".meta.json"
	}

	if repo.indexPath != "" && fileExists(repo.indexPath) {
		index, err := faiss.ReadIndex(repo.indexPath, 0)
		if err == nil {
			err = repo.loadMetadata()
		}
		if err == nil {
			repo.index = index
			return repo, nil
		}
		if !config.CreateIfNotExists {
			return nil, storeError("load index", err)
		}
		repo.documents = make(map[string]Document)
		repo.positions = nil
	}

	index, err := createFaissIndex(config.Dimension, distType)
	if err != nil {
		return nil, storeError("create index", err)
	}
	repo.index = index
	return repo, nil
}

// createFaissIndex 余弦距离用归一化向量 + 内积
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	metric := faiss.MetricL2
	if distType == Cosine {
		metric = faiss.MetricInnerProduct
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Insert 写入单个片段
func (r *FaissRepository) Insert(ctx context.Context, doc Document) (string, error) {
	doc, err := prepareDocument(doc, r.dimension)
	if err != nil {
		return "", err
	}
	vec := doc.Vector
	if r.distType == Cosine {
		vec = normalizeVector(vec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.index.Add(vec); err != nil {
		return "", storeError("insert", err)
	}
	r.seq++
	doc.Seq = r.seq
	if _, ok := r.documents[doc.ID]; ok {
		r.tombstone(doc.ID)
	}
	r.documents[doc.ID] = doc
	r.positions = append(r.positions, doc.ID)
	return doc.ID, nil
}

func (r *FaissRepository) tombstone(id string) {
	for i, pid := range r.positions {
		if pid == id {
			r.positions[i] = ""
		}
	}
}

// NearestNeighbors 扁平索引全量检索，再按分类过滤
func (r *FaissRepository) NearestNeighbors(ctx context.Context, vector []float32, k int, category string) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	total := r.index.Ntotal()
	if total == 0 || len(r.documents) == 0 {
		return []SearchResult{}, nil
	}
	scores, labels, err := r.index.Search(vector, total)
	if err != nil {
		return nil, storeError("search", err)
	}

	results := make([]SearchResult, 0, k)
	for i, label := range labels {
		if label < 0 || int(label) >= len(r.positions) {
			continue
		}
		id := r.positions[label]
		if id == "" {
			continue
		}
		doc, ok := r.documents[id]
		if !ok || (category != "" && doc.Category != category) {
			continue
		}
		results = append(results, SearchResult{Document: doc, Distance: r.toDistance(scores[i])})
	}
	return topK(results, k), nil
}

// toDistance 内积换算为余弦距离，L2 平方换算为欧氏距离
func (r *FaissRepository) toDistance(score float32) float32 {
	if r.distType == Cosine {
		return 1 - score
	}
	if score < 0 {
		score = 0
	}
	return float32(math.Sqrt(float64(score)))
}

// Delete 按 ID 删除
func (r *FaissRepository) Delete(ctx context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, ok := r.documents[id]; !ok {
			continue
		}
		delete(r.documents, id)
		r.tombstone(id)
	}
	return nil
}

// DeleteByCategory 删除分类下全部片段
func (r *FaissRepository) DeleteByCategory(ctx context.Context, category string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i, id := range r.positions {
		if id == "" {
			continue
		}
		if doc, ok := r.documents[id]; ok && doc.Category == category {
			delete(r.documents, id)
			r.positions[i] = ""
			n++
		}
	}
	return n, nil
}

// Count 获取片段总数
func (r *FaissRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Dimension 返回向量维数
func (r *FaissRepository) Dimension() int {
	return r.dimension
}

// Close 落盘后释放索引
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexPath != "" {
		if err := r.save(); err != nil {
			return fmt.Errorf("failed to save index on close: %w", err)
		}
	}
	r.index.Delete()
	return nil
}

// save 保存索引和元数据
func (r *FaissRepository) save() error {
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %w", err)
	}
	data, err := json.Marshal(faissMeta{Documents: r.documents, Positions: r.positions, Seq: r.seq})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return os.WriteFile(r.metaPath, data, 0644)
}

func (r *FaissRepository) loadMetadata() error {
	if !fileExists(r.metaPath) {
		return fmt.Errorf("metadata file %s missing", r.metaPath)
	}
	data, err := os.ReadFile(r.metaPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %w", err)
	}
	var meta faissMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if meta.Documents == nil {
		meta.Documents = make(map[string]Document)
	}
	r.documents = meta.Documents
	r.positions = meta.Positions
	r.seq = meta.Seq
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
