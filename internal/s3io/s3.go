// Package s3io stores claim attachments and profile pictures in S3.
package s3io

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Presigner defines the interface for presigning S3 requests.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ObjectAPI is the subset of the S3 client used for direct writes and reads.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Bucket binds the S3 clients to one bucket.
type Bucket struct {
	API      ObjectAPI
	Presign  Presigner
	Name     string
	Region   string
	Endpoint string // non-empty for LocalStack style endpoints
	TTL      time.Duration
}

// Object describes a stored object.
type Object struct {
	Key  string
	URL  string
	Size int64
}

// URL returns the stable object URL for key.
func (b *Bucket) URL(key string) string {
	if b.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(b.Endpoint, "/"), b.Name, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.Name, b.Region, key)
}

// Put uploads body under key with server side encryption.
func (b *Bucket) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (Object, error) {
	_, err := b.API.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(b.Name),
		Key:                  aws.String(key),
		Body:                 body,
		ContentLength:        aws.Int64(size),
		ContentType:          aws.String(contentType),
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	})
	if err != nil {
		return Object{}, fmt.Errorf("s3 put %s: %w", key, err)
	}
	return Object{Key: key, URL: b.URL(key), Size: size}, nil
}

// Head returns the user metadata of an object.
func (b *Bucket) Head(ctx context.Context, key string) (map[string]string, error) {
	out, err := b.API.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.Name), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("s3 head %s: %w", key, err)
	}
	return out.Metadata, nil
}

// PresignPut generates a presigned URL for uploading an object with the
// specified parameters.
func (b *Bucket) PresignPut(ctx context.Context, key, contentType string, meta map[string]string) (string, time.Duration, error) {
	input := &s3.PutObjectInput{
		Bucket:               aws.String(b.Name),
		Key:                  aws.String(key),
		ContentType:          aws.String(contentType),
		Metadata:             meta,
		ServerSideEncryption: types.ServerSideEncryptionAwsKms,
	}
	req, err := b.Presign.PresignPutObject(ctx, input, func(o *s3.PresignOptions) { o.Expires = b.TTL })
	if err != nil {
		return "", 0, err
	}
	return req.URL, b.TTL, nil
}

// PresignGet returns a temporary download URL for key.
func (b *Bucket) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := b.Presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Name),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = b.TTL })
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
