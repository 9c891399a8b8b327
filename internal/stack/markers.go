package stack

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client used for markers, bucket emptying and
// asset staging.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutPublicAccessBlock(ctx context.Context, params *s3.PutPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.PutPublicAccessBlockOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// EnsureMarkers materializes each folder-like prefix as a zero-byte marker
// object. The marker key is the prefix itself, so re-running leaves exactly
// one marker per prefix.
func EnsureMarkers(ctx context.Context, client S3API, bucket string, prefixes []string) error {
	logger := zerolog.Ctx(ctx)

	for _, prefix := range prefixes {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(prefix),
			Body:   bytes.NewReader(nil),
		})
		if err != nil {
			return fmt.Errorf("failed to create marker %s in bucket %s: %w", prefix, bucket, err)
		}
		logger.Info().Str("bucket", bucket).Str("prefix", prefix).Msg("Ensured folder marker")
	}
	return nil
}

// EmptyBucket deletes every object in the bucket so CloudFormation can
// remove it. A bucket that no longer exists is not an error.
func EmptyBucket(ctx context.Context, client S3API, bucket string) error {
	logger := zerolog.Ctx(ctx)

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			if isNoSuchBucket(err) {
				logger.Info().Str("bucket", bucket).Msg("Bucket already gone, nothing to empty")
				return nil
			}
			return fmt.Errorf("failed to list objects in bucket %s: %w", bucket, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		identifiers := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, object := range page.Contents {
			identifiers = append(identifiers, s3types.ObjectIdentifier{Key: object.Key})
		}
		_, err = client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{
				Objects: identifiers,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects from bucket %s: %w", bucket, err)
		}
		deleted += len(identifiers)
	}

	logger.Info().Str("bucket", bucket).Int("objects", deleted).Msg("Emptied bucket")
	return nil
}
