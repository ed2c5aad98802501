// Copyright 2026 The workflow-agent Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sudden-network/workflow-agent/lib/clock"
)

// S3StoreConfig configures an S3-compatible artifact store.
type S3StoreConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool

	// RunID is recorded in each uploaded object's key as its origin.
	// Defaults to LocalRunID.
	RunID string

	// TempDir holds archives in transit. Defaults to os.TempDir().
	TempDir string

	Clock  clock.Clock
	Logger *slog.Logger
}

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps snapshots as zstd zip objects in an S3-compatible
// bucket. Each snapshot is one object under
//
//	<prefix>/<name>/<created-unix-nanos>-<expires-unix>-<origin-run>.zip
//
// so listing needs no per-object metadata requests. S3 does not expire
// objects on its own schedule here: expiry is read from the key, and a
// bucket lifecycle rule may delete old objects.
type S3Store struct {
	client  s3API
	bucket  string
	prefix  string
	runID   string
	tempDir string
	clock   clock.Clock
	logger  *slog.Logger
}

// NewS3Store creates an S3-backed artifact store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsConfig, func(options *s3.Options) {
		if endpoint != "" {
			options.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			options.UsePathStyle = true
		}
	})

	cfg.Bucket = bucket
	return newS3Store(client, cfg), nil
}

func newS3Store(client s3API, cfg S3StoreConfig) *S3Store {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runID := cfg.RunID
	if runID == "" {
		runID = LocalRunID
	}
	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		runID:   runID,
		tempDir: cfg.TempDir,
		clock:   clk,
		logger:  logger,
	}
}

// List returns every snapshot object stored under name. Objects whose
// keys do not follow the snapshot layout are skipped.
func (store *S3Store) List(ctx context.Context, name string) ([]Artifact, error) {
	prefix := store.namePrefix(name)
	paginator := s3.NewListObjectsV2Paginator(store.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(store.bucket),
		Prefix: aws.String(prefix),
	})

	var artifacts []Artifact
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects under %s: %w", prefix, classifyS3Error(err))
		}
		for _, object := range page.Contents {
			key := aws.ToString(object.Key)
			artifact, ok := parseObjectKey(name, strings.TrimPrefix(key, prefix))
			if !ok {
				store.logger.Debug("skipping foreign object", "key", key)
				continue
			}
			artifact.Size = aws.ToInt64(object.Size)
			artifacts = append(artifacts, artifact)
		}
	}
	return artifacts, nil
}

// Download fetches the snapshot object and extracts it.
func (store *S3Store) Download(ctx context.Context, artifact Artifact, destination string) error {
	key := store.objectKey(artifact)
	output, err := store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(store.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 get object %s: %w", key, classifyS3Error(err))
	}
	defer output.Body.Close()

	spool, err := os.CreateTemp(store.tempDir, "workflow-agent-download-*.zip")
	if err != nil {
		return fmt.Errorf("creating download spool: %w", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	size, err := io.Copy(spool, output.Body)
	if err != nil {
		return fmt.Errorf("s3 get object %s: %w", key, err)
	}
	if err := ExtractArchive(spool, size, destination); err != nil {
		return fmt.Errorf("extracting %s: %w", key, err)
	}
	return nil
}

// Upload archives files with zstd and stores them as a new object.
func (store *S3Store) Upload(ctx context.Context, name string, files []string, root string, retention time.Duration) (*Artifact, error) {
	spool, err := os.CreateTemp(store.tempDir, "workflow-agent-upload-*.zip")
	if err != nil {
		return nil, fmt.Errorf("creating upload spool: %w", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	info, err := WriteArchive(spool, root, files, CompressionZstd)
	if err != nil {
		return nil, fmt.Errorf("archiving artifact %q: %w", name, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewinding upload spool: %w", err)
	}

	now := store.clock.Now()
	artifact := Artifact{
		ID:          now.UnixNano(),
		Name:        name,
		CreatedAt:   time.Unix(0, now.UnixNano()),
		OriginRunID: store.runID,
		Size:        info.Size,
	}
	if retention > 0 {
		artifact.ExpiresAt = time.Unix(now.Add(retention).Unix(), 0)
	}

	key := store.objectKey(artifact)
	_, err = store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(store.bucket),
		Key:           aws.String(key),
		Body:          spool,
		ContentLength: aws.Int64(info.Size),
		ContentType:   aws.String("application/zip"),
		Metadata: map[string]string{
			"sha256": info.SHA256,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put object %s: %w", key, classifyS3Error(err))
	}
	return &artifact, nil
}

func (store *S3Store) namePrefix(name string) string {
	if store.prefix == "" {
		return name + "/"
	}
	return path.Join(store.prefix, name) + "/"
}

func (store *S3Store) objectKey(artifact Artifact) string {
	var expires int64
	if !artifact.ExpiresAt.IsZero() {
		expires = artifact.ExpiresAt.Unix()
	}
	return fmt.Sprintf("%s%d-%d-%s.zip", store.namePrefix(artifact.Name), artifact.CreatedAt.UnixNano(), expires, artifact.OriginRunID)
}

// parseObjectKey decodes the base name of a snapshot object. The origin
// run may be empty; an expiry of zero means none was recorded.
func parseObjectKey(name, base string) (Artifact, bool) {
	stem, ok := strings.CutSuffix(base, ".zip")
	if !ok || strings.Contains(stem, "/") {
		return Artifact{}, false
	}
	parts := strings.SplitN(stem, "-", 3)
	if len(parts) != 3 {
		return Artifact{}, false
	}
	created, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || created <= 0 {
		return Artifact{}, false
	}
	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || expires < 0 {
		return Artifact{}, false
	}

	artifact := Artifact{
		ID:          created,
		Name:        name,
		CreatedAt:   time.Unix(0, created),
		OriginRunID: parts[2],
	}
	if expires > 0 {
		artifact.ExpiresAt = time.Unix(expires, 0)
	}
	return artifact, true
}

// classifyS3Error attaches the store sentinels to S3 failures.
func classifyS3Error(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %w", ErrForbidden, err)
		}
	}
	return err
}
