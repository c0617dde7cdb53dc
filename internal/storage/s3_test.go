package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	put     *s3.PutObjectInput
	body    []byte
	objects map[string]string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	content, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(content))}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://bucket.s3.test/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc"}, nil
}

func TestS3StorePut(t *testing.T) {
	api := &fakeS3{}
	store := &S3Store{client: api, presign: &fakePresigner{}, bucket: "ai-remaster"}
	if err := store.Put(context.Background(), "/media/1/1.png", []byte("abc"), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if aws.ToString(api.put.Key) != "media/1/1.png" || aws.ToString(api.put.Bucket) != "ai-remaster" {
		t.Fatalf("unexpected put input: %+v", api.put)
	}
	if aws.ToString(api.put.ContentType) != "image/png" || aws.ToInt64(api.put.ContentLength) != 3 {
		t.Fatalf("content headers not set: %+v", api.put)
	}
	if string(api.body) != "abc" {
		t.Fatalf("body = %q", api.body)
	}
}

func TestS3StoreGetMissing(t *testing.T) {
	store := &S3Store{client: &fakeS3{objects: map[string]string{"media/1/1.jpg": "x"}}, bucket: "b"}
	data, err := store.Get(context.Background(), "media/1/1.jpg")
	if err != nil || string(data) != "x" {
		t.Fatalf("Get = %q, %v", data, err)
	}
	if _, err := store.Get(context.Background(), "media/2/2.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestS3StoreSignPassesTTL(t *testing.T) {
	presigner := &fakePresigner{}
	store := &S3Store{client: &fakeS3{}, presign: presigner, bucket: "b"}
	u, err := store.Sign(context.Background(), "media/3/3.jpg", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !strings.Contains(u, "media/3/3.jpg") || presigner.expires != 7*24*time.Hour {
		t.Fatalf("Sign = %q (expires %s)", u, presigner.expires)
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Options{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
