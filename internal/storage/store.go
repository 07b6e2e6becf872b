package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mindleaf/backend/internal/config"
	"github.com/mindleaf/backend/pkg/logger"
)

// LocalPathPrefix marks references that live on local disk instead of S3.
// Such references are served statically and returned to clients unchanged.
const LocalPathPrefix = "/files/"

const pdfFolder = "pdfs"

// Store persists lesson PDFs. With an S3 client configured, uploads go to
// the bucket and references are object keys; without one, or when an S3
// upload fails, files land under uploadsDir and references carry the
// local-path sentinel.
type Store struct {
	client          *minio.Client
	bucket          string
	uploadsDir      string
	signedURLExpiry time.Duration
}

func New(cfg config.S3Config, uploadsDir string) (*Store, error) {
	store := &Store{
		bucket:          cfg.Bucket,
		uploadsDir:      uploadsDir,
		signedURLExpiry: cfg.SignedURLExpiry,
	}

	if !cfg.Enabled || cfg.Bucket == "" {
		logger.Info("storage_local_only", map[string]interface{}{
			"uploads_dir": uploadsDir,
		})
		return store, nil
	}

	var creds *credentials.Credentials
	if cfg.AccessKey == "" {
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	store.client = client
	logger.Info("storage_s3_enabled", map[string]interface{}{
		"bucket":   cfg.Bucket,
		"endpoint": cfg.Endpoint,
	})
	return store, nil
}

// NewLocal returns a Store that only ever writes to local disk.
func NewLocal(uploadsDir string) *Store {
	return &Store{uploadsDir: uploadsDir}
}

// UploadPDF stores the file and returns its reference: the S3 object key, or
// a /files/... path when stored locally. A failed S3 upload degrades to the
// local fallback rather than failing the request.
func (s *Store) UploadPDF(ctx context.Context, originalName string, reader io.Reader, size int64) (string, error) {
	filename := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(originalName))

	if s.client != nil {
		key := fmt.Sprintf("%s/%s", pdfFolder, filename)
		_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{
			ContentType: "application/pdf",
		})
		if err == nil {
			logger.Info("pdf_upload_s3", map[string]interface{}{
				"object_key": key,
				"size":       size,
				"bucket":     s.bucket,
			})
			return key, nil
		}

		logger.Error("pdf_upload_s3_failed_falling_back", err, map[string]interface{}{
			"object_key": key,
			"bucket":     s.bucket,
		})
		if seeker, ok := reader.(io.Seeker); ok {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return "", err
			}
		}
	}

	dir := filepath.Join(s.uploadsDir, pdfFolder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dest, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, reader); err != nil {
		return "", err
	}

	logger.Info("pdf_upload_local", map[string]interface{}{
		"filename": filename,
		"size":     size,
	})
	return LocalPathPrefix + pdfFolder + "/" + filename, nil
}

// ResolveURL turns a stored reference into something a client can fetch:
// local references pass through unchanged, object keys get a time-limited
// presigned URL. On presign failure the raw reference is returned, which
// keeps reads degrading instead of erroring.
func (s *Store) ResolveURL(ctx context.Context, reference string) string {
	if strings.HasPrefix(reference, LocalPathPrefix) {
		return reference
	}
	if s.client == nil {
		return reference
	}

	signed, err := s.client.PresignedGetObject(ctx, s.bucket, reference, s.signedURLExpiry, nil)
	if err != nil {
		logger.Error("pdf_presign_failed", err, map[string]interface{}{
			"object_key": reference,
			"bucket":     s.bucket,
		})
		return reference
	}
	return signed.String()
}

// EnsureBucket creates the bucket when S3 is active and it does not exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", s.bucket, err)
	}
	return nil
}
