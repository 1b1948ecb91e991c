// Package storage persists uploaded files: bytes in a pluggable backend,
// metadata in the _files table. Resources link to files through their own
// join tables and only ever hold file ids.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"transit-backend/internal/store"
)

// FileRecord is the stored metadata of one file.
type FileRecord struct {
	ID          string
	Name        string
	Mime        string
	Size        int64
	StoragePath string
}

type Service struct {
	Backend Backend
	Dialect store.Dialect
}

func NewService(backend Backend, dialect store.Dialect) *Service {
	return &Service{Backend: backend, Dialect: dialect}
}

// SaveStream stores file content from a reader and records its metadata.
func (s *Service) SaveStream(ctx context.Context, q store.Querier, name, mime string, reader io.Reader) (*FileRecord, error) {
	id := uuid.NewString()
	if name == "" {
		name = id
	}

	cr := &countingReader{r: reader}
	storagePath, err := s.Backend.Save(ctx, id, sanitizeName(name), cr)
	if err != nil {
		return nil, err
	}

	rec := &FileRecord{ID: id, Name: name, Mime: mime, Size: cr.n, StoragePath: storagePath}
	pb := s.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("INSERT INTO _files (id, filename, mime_type, size, storage_path, created_at) VALUES (%s, %s, %s, %s, %s, %s)",
		pb.Add(rec.ID), pb.Add(rec.Name), pb.Add(rec.Mime), pb.Add(rec.Size), pb.Add(rec.StoragePath), s.Dialect.NowExpr())
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		s.Backend.Delete(ctx, storagePath)
		return nil, s.Dialect.MapError(err)
	}
	return rec, nil
}

// SaveBase64 materializes an inline upload from a write payload.
func (s *Service) SaveBase64(ctx context.Context, q store.Querier, name, mime, data string) (*FileRecord, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode upload data: %w", err)
	}
	return s.SaveStream(ctx, q, name, mime, bytes.NewReader(raw))
}

// Get returns a file's metadata.
func (s *Service) Get(ctx context.Context, q store.Querier, id string) (*FileRecord, error) {
	pb := s.Dialect.NewParamBuilder()
	sql := "SELECT id, filename, mime_type, size, storage_path FROM _files WHERE id = " + pb.Add(id)
	row, err := store.QueryRow(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, err
	}
	return &FileRecord{
		ID:          asString(row["id"]),
		Name:        asString(row["filename"]),
		Mime:        asString(row["mime_type"]),
		Size:        asInt64(row["size"]),
		StoragePath: asString(row["storage_path"]),
	}, nil
}

// Open returns the file content stream together with its metadata.
func (s *Service) Open(ctx context.Context, q store.Querier, id string) (*FileRecord, io.ReadCloser, error) {
	rec, err := s.Get(ctx, q, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.Backend.Open(ctx, rec.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return rec, rc, nil
}

// Remove deletes both the metadata row and the stored content. Missing
// content is not an error; the row is authoritative.
func (s *Service) Remove(ctx context.Context, q store.Querier, id string) error {
	rec, err := s.Get(ctx, q, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pb := s.Dialect.NewParamBuilder()
	sql := "DELETE FROM _files WHERE id = " + pb.Add(id)
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return err
	}
	return s.Backend.Delete(ctx, rec.StoragePath)
}

func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" {
		name = "file"
	}
	return name
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
