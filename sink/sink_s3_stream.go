package sink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
)

// uploadAPI is the slice of the transfer manager client used by S3Stream.
type uploadAPI interface {
	PutObject(ctx context.Context, input *transfermanager.PutObjectInput, optFns ...func(*transfermanager.Options)) (*transfermanager.PutObjectOutput, error)
}

// S3Stream uploads payloads through the S3 transfer manager, which splits
// large bodies into concurrent multipart uploads while the payload is still
// being produced.
type S3Stream struct {
	client uploadAPI
	bucket string
	prefix string
}

func NewS3Stream(client uploadAPI, bucket, prefix string) *S3Stream {
	if client == nil {
		panic("transfer manager client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		panic("bucket is required")
	}
	return &S3Stream{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Write uploads an in-memory payload.
func (s *S3Stream) Write(ctx context.Context, req WriteRequest) error {
	if req.Key == "" {
		return fmt.Errorf("empty key")
	}
	key := objectKey(s.prefix, req.Key)

	var body bytes.Reader
	body.Reset(req.Data)

	input := transfermanager.PutObjectInput{
		Bucket: s.bucket,
		Key:    key,
		Body:   &body,
	}
	if req.ContentType != "" {
		input.ContentType = req.ContentType
	}

	if _, err := s.client.PutObject(ctx, &input); err != nil {
		return fmt.Errorf("put s3 object key=%q: %w", key, err)
	}
	return nil
}

// WriteStream pipes the producer straight into the upload, so the full
// payload never sits in memory.
func (s *S3Stream) WriteStream(ctx context.Context, req StreamWriteRequest) error {
	if req.Key == "" {
		return fmt.Errorf("empty key")
	}
	if req.Writer == nil {
		return fmt.Errorf("nil stream writer")
	}
	key := objectKey(s.prefix, req.Key)

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(req.Writer.WriteTo(pw))
	}()

	input := transfermanager.PutObjectInput{
		Bucket: s.bucket,
		Key:    key,
		Body:   pr,
	}
	if req.ContentType != "" {
		input.ContentType = req.ContentType
	}

	_, err := s.client.PutObject(ctx, &input)
	// Unblocks the producer if the upload stopped reading early.
	_ = pr.CloseWithError(err)
	if err != nil {
		return fmt.Errorf("stream put s3 object key=%q: %w", key, err)
	}
	return nil
}
