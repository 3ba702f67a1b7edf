package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"
	"github.com/gurre/filesystemsink/awsclient"
)

// maxS3Parts is the hard ceiling the S3 API imposes on a single multipart
// upload, independent of any rolling policy configured above it.
const maxS3Parts = 10000

// S3Store implements Port against an S3-compatible bucket.
//
// Example:
//
//	store := objectstore.NewS3Store(awsclient.NewS3Client(client), "my-bucket", "exports", "us-west-2", "")
//	id, err := store.StartMultipart(ctx, "00000-000.json")
type S3Store struct {
	client   awsclient.S3Client
	bucket   string
	prefix   string
	region   string
	endpoint string
}

var _ Port = (*S3Store)(nil)

// NewS3Store creates an S3-backed object store rooted at bucket/prefix.
func NewS3Store(client awsclient.S3Client, bucket, prefix, region, endpoint string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, region: region, endpoint: endpoint}
}

func (s *S3Store) fullKey(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}

// StartMultipart initiates a new multipart upload at path.
func (s *S3Store) StartMultipart(ctx context.Context, path string) (string, error) {
	key := s.fullKey(path)
	resp, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: create multipart upload for %s: %w", path, err)
	}
	if resp.UploadId == nil {
		return "", fmt.Errorf("objectstore: create multipart upload for %s: empty upload id", path)
	}
	return *resp.UploadId, nil
}

// AddMultipart uploads one numbered part of an in-progress multipart
// upload. S3 part numbers are 1-indexed; PartSpec.Index is the 0-indexed
// position used throughout the rest of the core, so it's translated here
// and nowhere else.
func (s *S3Store) AddMultipart(ctx context.Context, path, multipartID string, part PartSpec) (UploadedPart, error) {
	if part.Index < 0 || part.Index >= maxS3Parts {
		return UploadedPart{}, fmt.Errorf("objectstore: part index %d exceeds S3's %d-part limit", part.Index, maxS3Parts)
	}

	key := s.fullKey(path)
	partNumber := int32(part.Index + 1)
	contentLength := int64(len(part.Data))

	resp, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        &s.bucket,
		Key:           &key,
		PartNumber:    &partNumber,
		UploadId:      &multipartID,
		Body:          bytes.NewReader(part.Data),
		ContentLength: &contentLength,
	})
	if err != nil {
		return UploadedPart{}, fmt.Errorf("objectstore: upload part %d for %s: %w", part.Index, path, err)
	}
	if resp.ETag == nil || *resp.ETag == "" {
		return UploadedPart{}, fmt.Errorf("objectstore: upload part %d for %s: empty ETag", part.Index, path)
	}

	return UploadedPart{Index: part.Index, ContentID: *resp.ETag}, nil
}

// CloseMultipart finalizes the multipart upload. orderedContentIDs must
// already be in part-index order; the caller (the multipart manager) is
// responsible for that ordering.
func (s *S3Store) CloseMultipart(ctx context.Context, path, multipartID string, orderedContentIDs []string) error {
	if len(orderedContentIDs) == 0 {
		return fmt.Errorf("objectstore: cannot complete multipart upload for %s with zero parts", path)
	}

	key := s.fullKey(path)
	parts := make([]types.CompletedPart, len(orderedContentIDs))
	for i, contentID := range orderedContentIDs {
		etag := contentID
		partNumber := int32(i + 1)
		parts[i] = types.CompletedPart{ETag: &etag, PartNumber: &partNumber}
	}

	_, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &s.bucket,
		Key:      &key,
		UploadId: &multipartID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("objectstore: complete multipart upload for %s with %d parts: %w", path, len(parts), err)
	}
	return nil
}

// AbortMultipart cancels an in-progress multipart upload, so a caller that
// gives up on a file (a fatal error mid-write, an upload recovered into a
// state the caller decides not to resume) doesn't leave it consuming
// storage forever.
func (s *S3Store) AbortMultipart(ctx context.Context, path, multipartID string) error {
	key := s.fullKey(path)
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   &s.bucket,
		Key:      &key,
		UploadId: &multipartID,
	})
	if err != nil {
		return fmt.Errorf("objectstore: abort multipart upload for %s: %w", path, err)
	}
	return nil
}

var _ Aborter = (*S3Store)(nil)

// DeleteIfPresent removes path, absorbing a not-found response into a
// successful return.
func (s *S3Store) DeleteIfPresent(ctx context.Context, path string) error {
	key := s.fullKey(path)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return nil
	}
	return fmt.Errorf("objectstore: delete %s: %w", path, err)
}

// CanonicalURL reports the URL a caller can use to reference path: the
// s3::<endpoint> form when a custom endpoint is set, otherwise the https
// form.
func (s *S3Store) CanonicalURL(path string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("s3::%s/%s/%s", s.endpoint, s.bucket, s.fullKey(path))
	}
	if s.region != "" {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.region, s.bucket, s.fullKey(path))
	}
	return fmt.Sprintf("https://s3.amazonaws.com/%s/%s", s.bucket, s.fullKey(path))
}
