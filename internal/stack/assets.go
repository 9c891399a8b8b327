package stack

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// Stager bootstraps the asset bucket and uploads the function and layer
// bundles the manifest references. Object keys embed the bundle's content
// hash, so restaging an unchanged bundle is a no-op.
type Stager struct {
	client S3API
	region string
}

func NewStager(client S3API, region string) *Stager {
	return &Stager{client: client, region: region}
}

// AssetBucketName derives the staging bucket name from the pipeline bucket.
func AssetBucketName(bucketName string) string {
	return bucketName + "-assets"
}

// Stage ensures the asset bucket exists and uploads the three bundles,
// returning the locations the template embeds.
func (s *Stager) Stage(ctx context.Context, bucketName, functionBundle, depsLayerBundle, geoLayerBundle string) (AssetLocations, error) {
	assetBucket := AssetBucketName(bucketName)
	if err := s.ensureBucket(ctx, assetBucket); err != nil {
		return AssetLocations{}, err
	}

	locations := AssetLocations{Bucket: assetBucket}
	for _, bundle := range []struct {
		path string
		dest *string
	}{
		{functionBundle, &locations.FunctionKey},
		{depsLayerBundle, &locations.DepsLayerKey},
		{geoLayerBundle, &locations.GeoLayerKey},
	} {
		key, err := s.upload(ctx, assetBucket, bundle.path)
		if err != nil {
			return AssetLocations{}, err
		}
		*bundle.dest = key
	}
	return locations, nil
}

func (s *Stager) ensureBucket(ctx context.Context, bucket string) error {
	logger := zerolog.Ctx(ctx)

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	if err == nil {
		return nil
	}
	if !isBucketNotFound(err) {
		return fmt.Errorf("failed to check asset bucket %s: %w", bucket, err)
	}

	logger.Info().Str("bucket", bucket).Msg("Creating asset bucket")
	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	// us-east-1 rejects an explicit location constraint.
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create asset bucket %s: %w", bucket, err)
	}

	_, err = s.client.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: aws.String(bucket),
		PublicAccessBlockConfiguration: &s3types.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to block public access on %s: %w", bucket, err)
	}
	return nil
}

func (s *Stager) upload(ctx context.Context, bucket, path string) (string, error) {
	logger := zerolog.Ctx(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read bundle %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	name := filepath.Base(path)
	key := fmt.Sprintf("assets/%s/%s", hex.EncodeToString(sum[:]), name)

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		logger.Info().Str("key", key).Msg("Bundle already staged, skipping upload")
		return key, nil
	}
	if !isObjectNotFound(err) {
		return "", fmt.Errorf("failed to check staged bundle %s: %w", key, err)
	}

	logger.Info().Str("key", key).Int("bytes", len(data)).Msg("Uploading bundle")
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload bundle %s: %w", path, err)
	}
	return key, nil
}

func isBucketNotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	return isNoSuchBucket(err)
}

func isNoSuchBucket(err error) bool {
	var noSuchBucket *s3types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchBucket"
}

func isObjectNotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "404")
}
