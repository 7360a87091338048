// Package payload resolves finished media payloads for upload. Payloads are
// produced by the generation pipeline and referenced by items as either a
// path under the payload directory or an s3:// key.
package payload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"video-publish-scheduler/internal/platform"
)

// Source resolves a payload reference into a readable payload. Close the
// returned body when done.
type Source interface {
	Open(ctx context.Context, ref string) (platform.Payload, io.Closer, error)
}

// S3Options configures the S3-backed source.
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// NewS3Client builds an S3 client, honoring a custom endpoint for
// S3-compatible stores.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: opts.PathStyle,
					SigningRegion:     opts.Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
	}), nil
}

// LocalSource reads payloads from a base directory.
type LocalSource struct {
	BaseDir  string
	MaxBytes int64
}

func (l *LocalSource) Open(_ context.Context, ref string) (platform.Payload, io.Closer, error) {
	clean := sanitizeRef(ref)
	path := filepath.Join(l.BaseDir, clean)
	info, err := os.Stat(path)
	if err != nil {
		return platform.Payload{}, nil, &platform.ValidationError{Op: "open payload", Err: fmt.Errorf("missing payload %s: %w", ref, err)}
	}
	if l.MaxBytes > 0 && info.Size() > l.MaxBytes {
		return platform.Payload{}, nil, &platform.ValidationError{Op: "open payload", Err: fmt.Errorf("payload %s is %d bytes (max %d)", ref, info.Size(), l.MaxBytes)}
	}
	f, err := os.Open(path)
	if err != nil {
		return platform.Payload{}, nil, fmt.Errorf("open payload %s: %w", ref, err)
	}
	return platform.Payload{
		Name:        filepath.Base(path),
		ContentType: contentTypeFor(path),
		Size:        info.Size(),
		Body:        f,
	}, f, nil
}

// S3Source reads payloads from an S3 bucket; refs may carry an s3:// prefix.
type S3Source struct {
	Client   *s3.Client
	Bucket   string
	MaxBytes int64
}

func (s *S3Source) Open(ctx context.Context, ref string) (platform.Payload, io.Closer, error) {
	key := strings.TrimPrefix(ref, "s3://"+s.Bucket+"/")
	key = strings.TrimPrefix(key, "s3://")
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return platform.Payload{}, nil, &platform.TransientError{Op: "get payload object", Err: err}
	}
	size := aws.ToInt64(out.ContentLength)
	if s.MaxBytes > 0 && size > s.MaxBytes {
		out.Body.Close()
		return platform.Payload{}, nil, &platform.ValidationError{Op: "get payload object", Err: fmt.Errorf("payload %s is %d bytes (max %d)", ref, size, s.MaxBytes)}
	}
	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = contentTypeFor(key)
	}
	return platform.Payload{
		Name:        filepath.Base(key),
		ContentType: contentType,
		Size:        size,
		Body:        out.Body,
	}, out.Body, nil
}

// Router picks local or S3 by ref prefix.
type Router struct {
	Local *LocalSource
	S3    *S3Source
}

func (r *Router) Open(ctx context.Context, ref string) (platform.Payload, io.Closer, error) {
	if strings.HasPrefix(ref, "s3://") {
		if r.S3 == nil {
			return platform.Payload{}, nil, &platform.ValidationError{Op: "open payload", Err: errors.New("s3 payload requested but no bucket configured")}
		}
		return r.S3.Open(ctx, ref)
	}
	if r.Local == nil {
		return platform.Payload{}, nil, &platform.ValidationError{Op: "open payload", Err: errors.New("no local payload directory configured")}
	}
	return r.Local.Open(ctx, ref)
}

func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "video/mp4"
}

func sanitizeRef(ref string) string {
	ref = filepath.Clean(ref)
	ref = strings.TrimPrefix(ref, string(filepath.Separator))
	ref = strings.TrimPrefix(ref, "./")
	for strings.HasPrefix(ref, "../") {
		ref = strings.TrimPrefix(ref, "../")
	}
	return ref
}
