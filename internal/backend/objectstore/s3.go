package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const presignExpiry = 7 * 24 * time.Hour

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	s3.ListObjectsV2APIClient
}

type s3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL is prefixed to "<bucket>/<key>" when set; otherwise
	// PublicURL hands out presigned GET URLs.
	PublicBaseURL string
}

// S3Store stores objects in any S3-compatible service.
type S3Store struct {
	client        s3API
	presigner     s3Presigner
	publicBaseURL string
}

func NewS3Store(config S3Config) (*S3Store, error) {
	if config.Region == "" {
		return nil, fmt.Errorf("s3 object store requires a region")
	}
	if config.AccessKeyID == "" || config.SecretAccessKey == "" {
		return nil, fmt.Errorf("s3 object store requires access key credentials")
	}

	options := s3.Options{
		Region: config.Region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     config.AccessKeyID,
				SecretAccessKey: config.SecretAccessKey,
				Source:          "bannerforge",
			}, nil
		})),
	}
	if config.Endpoint != "" {
		options.BaseEndpoint = aws.String(config.Endpoint)
		options.UsePathStyle = true
	}
	client := s3.New(options)

	return &S3Store{
		client:        client,
		presigner:     s3.NewPresignClient(client),
		publicBaseURL: strings.TrimRight(config.PublicBaseURL, "/"),
	}, nil
}

func (s *S3Store) Bucket(name string) Bucket {
	return &s3Bucket{store: s, name: name}
}

type s3Bucket struct {
	store *S3Store
	name  string
}

func (b *s3Bucket) Upload(ctx context.Context, objectPath string, data []byte, opts UploadOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(strings.TrimLeft(objectPath, "/")),
		Body:   bytes.NewReader(data),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if !opts.Upsert {
		input.IfNoneMatch = aws.String("*")
	}
	if _, err := b.store.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (b *s3Bucket) PublicURL(ctx context.Context, objectPath string) (string, error) {
	key := strings.TrimLeft(objectPath, "/")
	if key == "" {
		return "", fmt.Errorf("empty object path")
	}
	if b.store.publicBaseURL != "" {
		return b.store.publicBaseURL + "/" + escapePath(b.name+"/"+key), nil
	}
	presigned, err := b.store.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign object url: %w", err)
	}
	return presigned.URL, nil
}

func (b *s3Bucket) List(ctx context.Context, prefix string, opts ListOptions) ([]Object, error) {
	folder := strings.Trim(prefix, "/")
	if folder != "" {
		folder += "/"
	}

	paginator := s3.NewListObjectsV2Paginator(b.store.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.name),
		Prefix:    aws.String(folder),
		Delimiter: aws.String("/"),
	})

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, item := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(item.Key), folder)
			if name == "" {
				continue
			}
			objects = append(objects, Object{
				Name:      name,
				Size:      aws.ToInt64(item.Size),
				CreatedAt: aws.ToTime(item.LastModified),
			})
		}
	}

	sort.SliceStable(objects, func(i, j int) bool {
		return objects[i].CreatedAt.After(objects[j].CreatedAt)
	})
	if objects == nil {
		objects = []Object{}
	}
	return applyPage(objects, opts), nil
}
