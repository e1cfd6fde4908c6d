package aurmake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MirrorClient wraps an S3-compatible bucket used to mirror built package
// artifacts (any S3 endpoint works; R2 and MinIO are the tested ones).
type MirrorClient struct {
	Client     *s3.Client
	BucketName string
}

// NewMirrorClient initializes the mirror client from configuration values.
func NewMirrorClient(cfg *Config) (*MirrorClient, error) {
	endpoint := cfg.Values["MIRROR_ENDPOINT"]
	accessKey := cfg.Values["MIRROR_ACCESS_KEY_ID"]
	secretKey := cfg.Values["MIRROR_SECRET_ACCESS_KEY"]
	bucketName := cfg.Values["MIRROR_BUCKET_NAME"]

	if endpoint == "" || accessKey == "" || secretKey == "" || bucketName == "" {
		return nil, fmt.Errorf("mirror credentials missing in configuration (MIRROR_ENDPOINT, MIRROR_ACCESS_KEY_ID, MIRROR_SECRET_ACCESS_KEY, MIRROR_BUCKET_NAME)")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{URL: endpoint}, nil
	})

	options := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithRegion("auto"),
	}
	if Debug {
		options = append(options, awsconfig.WithClientLogMode(aws.LogSigning|aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &MirrorClient{Client: client, BucketName: bucketName}, nil
}

// UploadLocalFile uploads a file from disk to the mirror bucket.
func (m *MirrorClient) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(key, ".zst"):
		contentType = "application/zstd"
	case strings.HasSuffix(key, ".xz"):
		contentType = "application/x-xz"
	}

	_, err = m.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType),
	})
	return err
}

// MirrorObject is the metadata for one mirrored artifact.
type MirrorObject struct {
	Key  string
	Size int64
}

// ListObjects returns the mirrored objects under prefix.
func (m *MirrorClient) ListObjects(ctx context.Context, prefix string) ([]MirrorObject, error) {
	var objects []MirrorObject
	paginator := s3.NewListObjectsV2Paginator(m.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(m.BucketName),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, MirrorObject{Key: *obj.Key, Size: *obj.Size})
		}
	}
	return objects, nil
}

// syncMirror uploads every cache artifact missing from (or differently
// sized on) the mirror. Sidecar checksums go up alongside the artifacts.
func syncMirror(ctx context.Context, m *MirrorClient, cacheDir string) error {
	remote, err := m.ListObjects(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list mirror objects: %w", err)
	}
	remoteSize := make(map[string]int64, len(remote))
	for _, obj := range remote {
		remoteSize[obj.Key] = obj.Size
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return err
	}

	uploaded := 0
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if _, ok := parseArtifactName(de.Name()); !ok && !strings.HasSuffix(de.Name(), ".b3") {
			continue
		}
		path := filepath.Join(cacheDir, de.Name())
		info, err := de.Info()
		if err != nil {
			return err
		}
		if size, ok := remoteSize[de.Name()]; ok && size == info.Size() {
			continue
		}
		cPrintf(colInfo, "Uploading %s\n", de.Name())
		if err := m.UploadLocalFile(ctx, de.Name(), path); err != nil {
			return fmt.Errorf("failed to upload %s: %w", de.Name(), err)
		}
		uploaded++
	}
	cPrintf(colSuccess, "Mirror sync complete: %d file(s) uploaded\n", uploaded)
	return nil
}

// handleUploadCommand implements `aurmake upload`.
func handleUploadCommand(ctx context.Context, cfg *Config) error {
	client, err := NewMirrorClient(cfg)
	if err != nil {
		return err
	}
	return syncMirror(ctx, client, pkgDir)
}
