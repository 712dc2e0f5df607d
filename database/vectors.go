package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/model"
	loadSql "github.com/siherrmann/fusionrag/sql"
)

// VectorsDBHandlerFunctions defines the interface for the vector index.
type VectorsDBHandlerFunctions interface {
	UpsertChunks(ctx context.Context, chunks []*model.Chunk) error
	SelectChunk(id string) (*model.Chunk, error)
	SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
	DeleteByDocument(ctx context.Context, documentRID uuid.UUID) (int, error)
	Search(ctx context.Context, embedding []float32, limit int, threshold float64, documentRID *uuid.UUID) ([]*model.VectorHit, error)
	CountChunks() (int64, error)
	ClearChunks(ctx context.Context) (int64, error)
}

// VectorsDBHandler handles chunk vector operations. Vectors are never
// mutated in place: re-embedding goes through delete-then-upsert on the
// parent document.
type VectorsDBHandler struct {
	db           *helper.Database
	embeddingDim int
}

// NewVectorsDBHandler creates a new vector index handler.
// It loads the vector SQL functions and creates the table with the
// configured embedding dimension. If force is true, it will reload the
// SQL functions even if they already exist.
func NewVectorsDBHandler(db *helper.Database, embeddingDim int, force bool) (*VectorsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	vectorsDbHandler := &VectorsDBHandler{
		db:           db,
		embeddingDim: embeddingDim,
	}

	err := loadSql.LoadVectorsSql(vectorsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load vectors sql", err)
	}

	err = vectorsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized VectorsDBHandler")

	return vectorsDbHandler, nil
}

// CreateTable creates the 'chunk_vectors' table in the database.
// If the table already exists, it does not create it again.
func (h *VectorsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_vectors($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing chunk_vectors table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunk_vectors")

	return nil
}

// checkDimension rejects vectors that do not match the index dimension
// before they reach the database.
func (h *VectorsDBHandler) checkDimension(embedding []float32) error {
	if len(embedding) != h.embeddingDim {
		return errors.Join(
			model.ErrVectorStore,
			fmt.Errorf("embedding dimension mismatch: index has %d, got %d", h.embeddingDim, len(embedding)),
		)
	}
	return nil
}

// UpsertChunks writes all chunks of a document to the index.
func (h *VectorsDBHandler) UpsertChunks(ctx context.Context, chunks []*model.Chunk) error {
	for _, chunk := range chunks {
		if err := h.upsertChunk(ctx, chunk); err != nil {
			return helper.NewError(fmt.Sprintf("upsert chunk %s", chunk.ID), err)
		}
	}
	return nil
}

func (h *VectorsDBHandler) upsertChunk(ctx context.Context, chunk *model.Chunk) error {
	if err := h.checkDimension(chunk.Embedding); err != nil {
		return err
	}

	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM upsert_chunk($1, $2, $3, $4, $5, $6, $7, $8)`,
		chunk.ID,
		chunk.DocumentRID,
		chunk.Index,
		chunk.Content,
		chunk.StartPos,
		chunk.EndPos,
		pgvector.NewVector(chunk.Embedding),
		chunk.Metadata,
	)

	var embedding pgvector.Vector
	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentRID,
		&chunk.Index,
		&chunk.Content,
		&chunk.StartPos,
		&chunk.EndPos,
		&embedding,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return errors.Join(model.ErrVectorStore, err)
	}
	chunk.Embedding = embedding.Slice()

	return nil
}

// SelectChunk retrieves a chunk by id
func (h *VectorsDBHandler) SelectChunk(id string) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	var embedding pgvector.Vector

	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_chunk($1)`,
		id,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentRID,
		&chunk.Index,
		&chunk.Content,
		&chunk.StartPos,
		&chunk.EndPos,
		&embedding,
		&chunk.Metadata,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}
	chunk.Embedding = embedding.Slice()

	return chunk, nil
}

// SelectChunksByDocument retrieves all chunks of a document in sequence order
func (h *VectorsDBHandler) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		var embedding pgvector.Vector
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentRID,
			&chunk.Index,
			&chunk.Content,
			&chunk.StartPos,
			&chunk.EndPos,
			&embedding,
			&chunk.Metadata,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunk.Embedding = embedding.Slice()
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// DeleteByDocument removes every chunk of a document from the index.
// Re-ingestion must call this before upserting the new chunks so the
// index never serves stale chunks for a replaced document.
func (h *VectorsDBHandler) DeleteByDocument(ctx context.Context, documentRID uuid.UUID) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_chunks_by_document($1)`,
		documentRID,
	).Scan(&deleted)
	if err != nil {
		return 0, errors.Join(model.ErrVectorStore, err)
	}

	return deleted, nil
}

// Search performs cosine similarity search, descending similarity with
// ascending chunk id on ties.
func (h *VectorsDBHandler) Search(ctx context.Context, embedding []float32, limit int, threshold float64, documentRID *uuid.UUID) ([]*model.VectorHit, error) {
	if err := h.checkDimension(embedding); err != nil {
		return nil, err
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM search_chunks($1, $2, $3, $4)`,
		pgvector.NewVector(embedding),
		limit,
		threshold,
		documentRID,
	)
	if err != nil {
		return nil, errors.Join(model.ErrVectorStore, err)
	}
	defer rows.Close()

	var hits []*model.VectorHit
	for rows.Next() {
		hit := &model.VectorHit{Chunk: &model.Chunk{}}
		err := rows.Scan(
			&hit.Chunk.ID,
			&hit.Chunk.DocumentRID,
			&hit.Chunk.Index,
			&hit.Chunk.Content,
			&hit.Chunk.StartPos,
			&hit.Chunk.EndPos,
			&hit.Chunk.Metadata,
			&hit.Chunk.CreatedAt,
			&hit.Chunk.Similarity,
			&hit.DocumentSource,
			&hit.DocumentCreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		hits = append(hits, hit)
	}

	return hits, rows.Err()
}

// CountChunks returns the total number of indexed chunks
func (h *VectorsDBHandler) CountChunks() (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(`SELECT count_chunks()`).Scan(&count)
	if err != nil {
		return 0, helper.NewError("count chunks", err)
	}
	return count, nil
}

// ClearChunks removes every chunk from the index and returns the number
// of deleted rows.
func (h *VectorsDBHandler) ClearChunks(ctx context.Context) (int64, error) {
	var deleted int64
	err := h.db.Instance.QueryRowContext(ctx, `SELECT clear_chunks()`).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("clear chunks", err)
	}
	return deleted, nil
}
