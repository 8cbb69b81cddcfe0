// Package archive exports roost tables as JSON Lines to S3-compatible
// object storage such as DigitalOcean Spaces.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// SpacesConfig contains the bucket endpoint and credentials
type SpacesConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PathStyle addresses the bucket in the path, as MinIO expects
	PathStyle bool
}

// LoadSpacesConfig reads ROOST_SPACES_* variables
func LoadSpacesConfig() SpacesConfig {
	return SpacesConfig{
		Endpoint:  getEnvString("ROOST_SPACES_ENDPOINT", "nyc3.digitaloceanspaces.com"),
		Region:    getEnvString("ROOST_SPACES_REGION", "nyc3"),
		Bucket:    getEnvString("ROOST_SPACES_BUCKET", "roost-archives"),
		AccessKey: os.Getenv("ROOST_SPACES_ACCESS_KEY"),
		SecretKey: os.Getenv("ROOST_SPACES_SECRET_KEY"),
		PathStyle: os.Getenv("ROOST_SPACES_PATH_STYLE") == "true",
	}
}

// Validate reports missing settings
func (c SpacesConfig) Validate() error {
	switch {
	case c.Endpoint == "":
		return fmt.Errorf("spaces endpoint is required")
	case c.Bucket == "":
		return fmt.Errorf("spaces bucket is required")
	case c.AccessKey == "" || c.SecretKey == "":
		return fmt.Errorf("spaces credentials are required")
	}
	return nil
}

// SpacesClient uploads and manages archives in one bucket
type SpacesClient struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

// NewSpacesClient creates a client for the configured bucket
func NewSpacesClient(config SpacesConfig) (*SpacesClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		Credentials:      credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(config.PathStyle),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := s3.New(sess)
	return &SpacesClient{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   config.Bucket,
	}, nil
}

// Bucket returns the bucket name
func (s *SpacesClient) Bucket() string {
	return s.bucket
}

// Upload streams body to key. The body is read once; multipart upload is
// used for large archives.
func (s *SpacesClient) Upload(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		Metadata:    aws.StringMap(metadata),
		ContentType: aws.String(ContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}
	return nil
}

// GetArchive opens an archive for reading
func (s *SpacesClient) GetArchive(ctx context.Context, key string) (io.ReadCloser, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get archive: %w", err)
	}
	return result.Body, nil
}

// ListArchives returns the archive keys written on date
func (s *SpacesClient) ListArchives(ctx context.Context, date time.Time) ([]string, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(datePrefix(date)),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	return keys, nil
}

// DeleteArchive removes an archive
func (s *SpacesClient) DeleteArchive(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
