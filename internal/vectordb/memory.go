package vectordb

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// parallelThreshold 候选片段超过该数量时并发计算距离
const parallelThreshold = 512

// MemoryRepository 内存向量仓库
// 进程内使用，重启后数据丢失
type MemoryRepository struct {
	mu         sync.RWMutex
	dimension  int
	distType   DistanceType
	documents  map[string]Document
	byCategory map[string]map[string]struct{}
	seq        int64
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	distType, err := ParseDistanceType(string(config.DistanceType))
	if err != nil {
		return nil, err
	}

	return &MemoryRepository{
		dimension:  config.Dimension,
		distType:   distType,
		documents:  make(map[string]Document),
		byCategory: make(map[string]map[string]struct{}),
	}, nil
}

// Insert 写入单个片段，重复内容不去重
func (r *MemoryRepository) Insert(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", storeError("insert", err)
	}
	doc, err := prepareDocument(doc, r.dimension)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	doc.Seq = r.seq
	if old, ok := r.documents[doc.ID]; ok {
		r.unindex(old)
	}
	r.documents[doc.ID] = doc
	ids, ok := r.byCategory[doc.Category]
	if !ok {
		ids = make(map[string]struct{})
		r.byCategory[doc.Category] = ids
	}
	ids[doc.ID] = struct{}{}
	return doc.ID, nil
}

func (r *MemoryRepository) unindex(doc Document) {
	if ids, ok := r.byCategory[doc.Category]; ok {
		delete(ids, doc.ID)
		if len(ids) == 0 {
			delete(r.byCategory, doc.Category)
		}
	}
}

// NearestNeighbors 暴力计算全部候选的距离
func (r *MemoryRepository) NearestNeighbors(ctx context.Context, vector []float32, k int, category string) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, storeError("search", err)
	}

	r.mu.RLock()
	var candidates []Document
	if category != "" {
		ids := r.byCategory[category]
		candidates = make([]Document, 0, len(ids))
		for id := range ids {
			candidates = append(candidates, r.documents[id])
		}
	} else {
		candidates = make([]Document, 0, len(r.documents))
		for _, doc := range r.documents {
			candidates = append(candidates, doc)
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return []SearchResult{}, nil
	}

	threads := runtime.NumCPU() * 4 / 5
	if threads < 1 {
		threads = 1
	}
	var results []SearchResult
	if len(candidates) < parallelThreshold || threads == 1 {
		results = r.serialSearch(vector, candidates)
	} else {
		results = r.parallelSearch(vector, candidates, threads)
	}
	return topK(results, k), nil
}

// serialSearch 串行计算距离
func (r *MemoryRepository) serialSearch(vector []float32, docs []Document) []SearchResult {
	results := make([]SearchResult, 0, len(docs))
	for _, doc := range docs {
		dist, err := ComputeDistance(vector, doc.Vector, r.distType)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{Document: doc, Distance: dist})
	}
	return results
}

// parallelSearch 将候选切分给多个 goroutine，结果合并后统一排序
func (r *MemoryRepository) parallelSearch(vector []float32, docs []Document, threads int) []SearchResult {
	perThread := (len(docs) + threads - 1) / threads
	parts := make([][]SearchResult, threads)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		start := i * perThread
		end := start + perThread
		if end > len(docs) {
			end = len(docs)
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(i, start, end int) {
			defer wg.Done()
			parts[i] = r.serialSearch(vector, docs[start:end])
		}(i, start, end)
	}
	wg.Wait()

	all := make([]SearchResult, 0, len(docs))
	for _, p := range parts {
		all = append(all, p...)
	}
	return all
}

// Delete 按 ID 删除
func (r *MemoryRepository) Delete(ctx context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		doc, ok := r.documents[id]
		if !ok {
			continue
		}
		delete(r.documents, id)
		r.unindex(doc)
	}
	return nil
}

// DeleteByCategory 删除分类下全部片段
func (r *MemoryRepository) DeleteByCategory(ctx context.Context, category string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byCategory[category]
	for id := range ids {
		delete(r.documents, id)
	}
	delete(r.byCategory, category)
	return len(ids), nil
}

// Count 获取片段总数
func (r *MemoryRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Dimension 返回向量维数
func (r *MemoryRepository) Dimension() int {
	return r.dimension
}

// Close 对于内存实现这是一个空操作
func (r *MemoryRepository) Close() error {
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
