package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PGVectorRepository 基于 PostgreSQL + pgvector 扩展的向量仓库
type PGVectorRepository struct {
	db        *sql.DB
	dimension int
	distType  DistanceType
	ownsDB    bool
}

// NewPGVectorRepository 通过 DSN 连接数据库并建表
func NewPGVectorRepository(config Config) (Repository, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("pgvector repository requires a DSN")
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, storeError("open", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storeError("ping", err)
	}

	repo, err := NewPGVectorRepositoryWithDB(ctx, db, config)
	if err != nil {
		db.Close()
		return nil, err
	}
	repo.ownsDB = true
	return repo, nil
}

// NewPGVectorRepositoryWithDB 复用已有连接，连接由调用方关闭
func NewPGVectorRepositoryWithDB(ctx context.Context, db *sql.DB, config Config) (*PGVectorRepository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	distType, err := ParseDistanceType(string(config.DistanceType))
	if err != nil {
		return nil, err
	}

	r := &PGVectorRepository{db: db, dimension: config.Dimension, distType: distType}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PGVectorRepository) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_segments (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			category TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, r.dimension),
		`CREATE INDEX IF NOT EXISTS knowledge_segments_category_idx ON knowledge_segments (category)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return storeError("migrate", err)
		}
	}
	return nil
}

// distanceOperator cosine 用 <=>，l2 用 <->
func (r *PGVectorRepository) distanceOperator() string {
	if r.distType == Euclidean {
		return "<->"
	}
	return "<=>"
}

// Insert 写入单个片段
func (r *PGVectorRepository) Insert(ctx context.Context, doc Document) (string, error) {
	doc, err := prepareDocument(doc, r.dimension)
	if err != nil {
		return "", err
	}
	meta, err := json.Marshal(doc.metadata())
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO knowledge_segments (id, content, category, metadata, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		doc.ID, doc.Text, doc.Category, meta, pgvector.NewVector(doc.Vector), doc.CreatedAt,
	)
	if err != nil {
		return "", storeError("insert", err)
	}
	return doc.ID, nil
}

// NearestNeighbors 由数据库排序，距离相同按 seq
func (r *PGVectorRepository) NearestNeighbors(ctx context.Context, vector []float32, k int, category string) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT id, content, category, metadata, seq, created_at, embedding %s $1 AS distance
		 FROM knowledge_segments
		 WHERE ($2 = '' OR category = $2)
		 ORDER BY distance, seq
		 LIMIT $3`, r.distanceOperator())

	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vector), category, k)
	if err != nil {
		return nil, storeError("search", err)
	}
	defer rows.Close()

	results := make([]SearchResult, 0, k)
	for rows.Next() {
		var (
			res  SearchResult
			meta []byte
			dist float64
		)
		if err := rows.Scan(&res.ID, &res.Text, &res.Category, &meta, &res.Seq, &res.CreatedAt, &dist); err != nil {
			return nil, storeError("scan", err)
		}
		if len(meta) > 0 {
			var m Metadata
			if err := json.Unmarshal(meta, &m); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", res.ID, err)
			}
			m.apply(&res.Document)
		}
		res.Distance = float32(dist)
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("search", err)
	}
	return results, nil
}

// Delete 按 ID 删除
func (r *PGVectorRepository) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_segments WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return storeError("delete", err)
	}
	return nil
}

// DeleteByCategory 删除分类下全部片段
func (r *PGVectorRepository) DeleteByCategory(ctx context.Context, category string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_segments WHERE category = $1`, category)
	if err != nil {
		return 0, storeError("delete by category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storeError("delete by category", err)
	}
	return int(n), nil
}

// Count 获取片段总数
func (r *PGVectorRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM knowledge_segments`).Scan(&n); err != nil {
		return 0, storeError("count", err)
	}
	return n, nil
}

// Dimension 返回向量维数
func (r *PGVectorRepository) Dimension() int {
	return r.dimension
}

// Close 仅关闭自己打开的连接
func (r *PGVectorRepository) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.db.Close()
}

func init() {
	RegisterRepository("pgvector", NewPGVectorRepository)
}
