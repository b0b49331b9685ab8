package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cppla/we-api/config"
)

// ErrUnsupportedImage is returned for uploads that are not jpeg, png, gif or webp.
var ErrUnsupportedImage = errors.New("unsupported image type")

// ErrImageTooLarge is returned when an upload exceeds the configured size.
var ErrImageTooLarge = errors.New("image too large")

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore persists post images and returns the URL clients load them from.
type ImageStore interface {
	Save(ctx context.Context, r io.Reader, size int64) (string, error)
}

// NewImageStore selects the backend named by cfg.Driver.
func NewImageStore(ctx context.Context, cfg config.StorageSection) (ImageStore, error) {
	maxBytes := int64(nz(cfg.MaxImageMB, 10)) << 20
	if cfg.Driver == "minio" {
		return NewMinioImageStore(ctx, cfg, maxBytes)
	}
	return &LocalImageStore{Dir: cfg.UploadDir, BaseURL: cfg.PublicBaseURL, MaxBytes: maxBytes}, nil
}

// sniffImage reads the head of r, validates the content type and returns a reader that
// still yields the whole stream.
func sniffImage(r io.Reader) (io.Reader, string, string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", "", err
	}
	head = head[:n]
	ct := http.DetectContentType(head)
	ext, ok := imageExt[ct]
	if !ok {
		return nil, "", "", ErrUnsupportedImage
	}
	return io.MultiReader(bytes.NewReader(head), r), ct, ext, nil
}

// LocalImageStore writes images under Dir/YYYYMMDD and serves them from BaseURL.
type LocalImageStore struct {
	Dir      string
	BaseURL  string
	MaxBytes int64
}

func (s *LocalImageStore) Save(_ context.Context, r io.Reader, size int64) (string, error) {
	if s.MaxBytes > 0 && size > s.MaxBytes {
		return "", ErrImageTooLarge
	}
	body, _, ext, err := sniffImage(r)
	if err != nil {
		return "", err
	}
	day := time.Now().UTC().Format("20060102")
	dir := filepath.Join(s.Dir, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	name := uuid.NewString() + ext
	dst := filepath.Join(dir, name)
	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	// enforce limit while writing in case size was misreported
	src := body
	if s.MaxBytes > 0 {
		src = &io.LimitedReader{R: body, N: s.MaxBytes + 1}
	}
	written, err := io.Copy(f, src)
	_ = f.Close()
	if err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if s.MaxBytes > 0 && written > s.MaxBytes {
		_ = os.Remove(dst)
		return "", ErrImageTooLarge
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + day + "/" + name, nil
}

// MinioImageStore puts images into an S3-compatible bucket.
type MinioImageStore struct {
	cli      *minio.Client
	bucket   string
	maxBytes int64
}

func NewMinioImageStore(ctx context.Context, cfg config.StorageSection, maxBytes int64) (*MinioImageStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioUser, cfg.MinioPassword, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio bucket create: %w", err)
		}
	}
	return &MinioImageStore{cli: client, bucket: cfg.MinioBucket, maxBytes: maxBytes}, nil
}

func (s *MinioImageStore) Save(ctx context.Context, r io.Reader, size int64) (string, error) {
	if s.maxBytes > 0 && size > s.maxBytes {
		return "", ErrImageTooLarge
	}
	body, ct, ext, err := sniffImage(r)
	if err != nil {
		return "", err
	}
	objectName := uuid.NewString() + ext
	if _, err := s.cli.PutObject(ctx, s.bucket, objectName, body, size, minio.PutObjectOptions{ContentType: ct}); err != nil {
		return "", fmt.Errorf("minio put: %w", err)
	}
	return s.cli.EndpointURL().String() + "/" + s.bucket + "/" + objectName, nil
}
