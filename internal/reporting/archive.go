package reporting

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Content types of rendered artifacts.
const (
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
	ContentTypeCSV      = "text/csv; charset=utf-8"
	ContentTypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Archiver stores rendered report artifacts.
type Archiver interface {
	// Archive stores data under name and returns its location.
	Archive(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ObjectKey builds the archive key for an artifact:
//
//	<prefix>/<tenant>/YYYY/MM/DD/<name>
func ObjectKey(prefix, tenantID string, at time.Time, name string) string {
	year, month, day := at.UTC().Date()
	return path.Join(prefix, tenantID,
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		name,
	)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver uploads artifacts to an S3 bucket.
type S3Archiver struct {
	bucket   string
	uploader uploader
}

// NewS3Archiver creates an S3Archiver using the default AWS credential chain
// (AWS_REGION, AWS_PROFILE, AWS_ACCESS_KEY_ID etc.).
func NewS3Archiver(ctx context.Context, bucket string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Archiver{
		bucket:   bucket,
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
	}, nil
}

// Archive uploads data with SSE-S3 encryption.
func (a *S3Archiver) Archive(ctx context.Context, name, contentType string, data []byte) (string, error) {
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(name),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", name, err)
	}
	return "s3://" + a.bucket + "/" + name, nil
}

// DirArchiver writes artifacts below a local directory.
type DirArchiver struct {
	root string
}

// NewDirArchiver creates a DirArchiver rooted at dir.
func NewDirArchiver(dir string) *DirArchiver {
	return &DirArchiver{root: dir}
}

// Archive writes data to root/name, creating parent directories.
func (a *DirArchiver) Archive(_ context.Context, name, _ string, data []byte) (string, error) {
	p := filepath.Join(a.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	return p, nil
}

var (
	_ Archiver = (*S3Archiver)(nil)
	_ Archiver = (*DirArchiver)(nil)
)
