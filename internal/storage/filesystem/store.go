package filesystem

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"fileoff/backend/internal/storage"
)

// Store 文件系统 Blob 存储实现。
//
// 内容按不透明 ID 寻址，目录按 ID 前两位分片：
// {basePath}/blobs/{id[:2]}/{id}
// 写入先落到 {basePath}/tmp 下的临时文件，完整写入后 rename 到最终路径，
// 任何中途失败都会删除临时文件，最终路径上不会出现不完整的内容。
type Store struct {
	basePath string
}

// NewStore 创建文件系统 Blob 存储实例。
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("blob store base path is empty")
	}

	for _, dir := range []string{
		filepath.Join(basePath, "blobs"),
		filepath.Join(basePath, "tmp"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}

	return &Store{basePath: basePath}, nil
}

// Save 将 r 的全部内容流式写入 id 对应的 Blob，返回写入的字节数。
//
// 写入中途出错（I/O 错误、客户端断开、ctx 取消）时清理临时文件并返回错误，
// 不会留下可被读到的部分内容。
func (s *Store) Save(ctx context.Context, id string, r io.Reader) (int64, error) {
	tmpFile, err := os.CreateTemp(filepath.Join(s.basePath, "tmp"), "upload-*-"+uuid.NewString())
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, err := io.Copy(tmpFile, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write blob: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to sync blob: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close blob: %w", err)
	}

	finalPath := s.blobPath(id)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to commit blob: %w", err)
	}

	return written, nil
}

// Open 返回 Blob 内容的读取流，调用方负责关闭。
func (s *Store) Open(id string) (io.ReadCloser, error) {
	f, err := os.Open(s.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Delete 删除 Blob。内容不存在时返回 ErrBlobNotFound。
func (s *Store) Delete(id string) error {
	err := os.Remove(s.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	// 分片目录空了就顺手移除，失败不影响结果
	os.Remove(filepath.Dir(s.blobPath(id)))
	return nil
}

// Exists 检查 Blob 是否存在。
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.blobPath(id))
	return err == nil
}

// blobPath 返回 Blob 的最终存储路径。
func (s *Store) blobPath(id string) string {
	shard := id
	if len(id) > 2 {
		shard = id[:2]
	}
	return filepath.Join(s.basePath, "blobs", shard, id)
}

// ctxReader 在每次读取前检查 ctx，使上传可以随请求取消而中止。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
