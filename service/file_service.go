package service

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/tieubaoca/knowledge-be/types"
	"github.com/tieubaoca/knowledge-be/utils"
)

// FileService accepts uploaded files, ingests them and keeps a timestamped
// copy under uploadDir.
type FileService struct {
	uploadDir string
	maxSize   int64
	knowledge *KnowledgeService
	logger    *zap.Logger
}

func NewFileService(uploadDir string, maxSize int64, knowledge *KnowledgeService, logger *zap.Logger) (*FileService, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileService{
		uploadDir: uploadDir,
		maxSize:   maxSize,
		knowledge: knowledge,
		logger:    logger,
	}, nil
}

// CheckFile rejects names with an unsupported extension and oversized files.
func (s *FileService) CheckFile(fileName string, size int64) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if _, ok := SupportedExtensions[ext]; !ok {
		return types.NewError("upload", types.ErrUnsupportedType, fmt.Errorf("extension %q", ext))
	}
	if s.maxSize > 0 && size > s.maxSize {
		return types.NewError("upload", types.ErrInvalidInput, fmt.Errorf("file is %d bytes, limit is %d", size, s.maxSize))
	}
	return nil
}

// UploadFile ingests a multipart upload.
func (s *FileService) UploadFile(ctx context.Context, header *multipart.FileHeader) (*types.UploadResponse, error) {
	if err := s.CheckFile(header.Filename, header.Size); err != nil {
		return nil, err
	}
	src, err := header.Open()
	if err != nil {
		return nil, types.NewError("upload", types.ErrInvalidInput, err)
	}
	defer src.Close()

	content, err := io.ReadAll(io.LimitReader(src, s.limit()))
	if err != nil {
		return nil, types.NewError("upload", types.ErrInvalidInput, err)
	}
	if err := s.CheckFile(header.Filename, int64(len(content))); err != nil {
		return nil, err
	}
	return s.ingest(ctx, types.UploadedFile{
		FileName: filepath.Base(header.Filename),
		FileType: header.Header.Get("Content-Type"),
		Content:  content,
	})
}

// UploadPath ingests a file from the local disk.
func (s *FileService) UploadPath(ctx context.Context, path string) (*types.UploadResponse, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, types.NewError("upload", types.ErrInvalidInput, err)
	}
	if err := s.CheckFile(path, info.Size()); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError("upload", types.ErrInvalidInput, err)
	}
	return s.ingest(ctx, types.UploadedFile{FileName: filepath.Base(path), Content: content})
}

func (s *FileService) ingest(ctx context.Context, file types.UploadedFile) (*types.UploadResponse, error) {
	res, err := s.knowledge.Ingest(ctx, file)
	if err != nil {
		return nil, err
	}

	resp := &types.UploadResponse{
		OriginalName: file.FileName,
		ChunkCount:   res.ChunkCount,
		Metadata:     res.Metadata,
	}
	// the document is already searchable, a failed archive copy is only logged
	archived, err := utils.SaveWithTimestamp(file.Content, file.FileName, s.uploadDir)
	if err != nil {
		s.logger.Warn("failed to archive upload", zap.String("file", file.FileName), zap.Error(err))
		return resp, nil
	}
	resp.ArchivedPath = archived
	return resp, nil
}

// MaxSize is the largest accepted file in bytes, 0 when unlimited.
func (s *FileService) MaxSize() int64 {
	return s.maxSize
}

func (s *FileService) limit() int64 {
	if s.maxSize > 0 {
		return s.maxSize + 1
	}
	return 1<<63 - 1
}
