package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

// API is the subset of the S3 client the driver calls.
type API interface {
	s3.ListObjectsV2APIClient
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Config selects the bucket and endpoint. Endpoint is set for MinIO or R2;
// credentials fall back to the default AWS chain when the keys are empty.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Pattern         string
	Location        *time.Location
}

type S3Driver struct {
	client   API
	bucket   string
	pattern  string
	location *time.Location
}

func New(ctx context.Context, cfg Config) (*S3Driver, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is not set")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" || cfg.SecretAccessKey != "" {
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, errors.New("s3 access key id and secret access key must be set together")
		}
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	endpoint := cfg.Endpoint
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg)
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, cfg Config) (*S3Driver, error) {
	if client == nil {
		return nil, errors.New("s3 client is nil")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is not set")
	}
	if cfg.Pattern != "" && !doublestar.ValidatePattern(cfg.Pattern) {
		return nil, fmt.Errorf("invalid snapshot pattern %q", cfg.Pattern)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &S3Driver{client: client, bucket: cfg.Bucket, pattern: cfg.Pattern, location: loc}, nil
}

// List returns the objects directly under prefix, sorted by key. Objects in
// deeper "folders" are not snapshots of this tier.
func (d *S3Driver) List(ctx context.Context, prefix string) ([]retention.Snapshot, error) {
	prefix = normalizePrefix(prefix)

	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(d.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var snapshots []retention.Snapshot
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects s3://%s/%s: %w", d.bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			if d.pattern != "" {
				ok, err := doublestar.Match(d.pattern, name)
				if err != nil {
					return nil, fmt.Errorf("match snapshot pattern %q: %w", d.pattern, err)
				}
				if !ok {
					continue
				}
			}

			snapshots = append(snapshots, retention.Snapshot{
				ID:       key,
				Location: prefix,
				Created:  retention.DateOf(aws.ToTime(obj.LastModified).In(d.location)),
				Size:     aws.ToInt64(obj.Size),
			})
		}
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })
	return snapshots, nil
}

// Delete removes an expired snapshot object.
func (d *S3Driver) Delete(ctx context.Context, snapshot retention.Snapshot) error {
	if snapshot.Location != "" {
		prefix := normalizePrefix(snapshot.Location)
		if !strings.HasPrefix(snapshot.ID, prefix) || path.Dir(strings.TrimPrefix(snapshot.ID, prefix)) != "." {
			return fmt.Errorf("delete object %s is not directly under %s", snapshot.ID, prefix)
		}
	}

	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(snapshot.ID),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("delete object s3://%s/%s: %w", d.bucket, snapshot.ID, err)
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
