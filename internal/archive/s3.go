package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3 uploads the files of a finished job under <prefix>/<id>/.
type S3 struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
}

func NewS3(region, bucket, prefix string) (*S3, error) {
	sess, err := session.NewSession(&aws.Config{Region: &region})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return newS3(s3manager.NewUploader(sess), bucket, prefix), nil
}

func newS3(uploader s3manageriface.UploaderAPI, bucket, prefix string) *S3 {
	return &S3{uploader: uploader, bucket: bucket, prefix: prefix}
}

func (a *S3) Key(id, file string) string {
	return path.Join(a.prefix, id, filepath.Base(file))
}

func (a *S3) Archive(ctx context.Context, id string, paths ...string) error {
	for _, p := range paths {
		if err := a.upload(ctx, a.Key(id, p), p); err != nil {
			return fmt.Errorf("failed to upload %s to s3://%s: %w", p, a.bucket, err)
		}
	}
	return nil
}

func (a *S3) upload(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/json"),
	})
	return err
}
