package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/vecstore/blobstore"
	minioblob "github.com/hupe1980/vecstore/blobstore/minio"
	s3blob "github.com/hupe1980/vecstore/blobstore/s3"
)

// openBlobStore resolves a backup target URL to a blob store.
//
//	/some/dir or file:///some/dir   local directory
//	s3://bucket/prefix              S3, credentials from the AWS SDK chain
//	minio://host:port/bucket/prefix MinIO, credentials from MINIO_ACCESS_KEY
//	                                and MINIO_SECRET_KEY (add ?tls=true for HTTPS)
func openBlobStore(ctx context.Context, target string) (blobstore.BlobStore, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid backup target %q: %w", target, err)
	}

	switch u.Scheme {
	case "", "file":
		dir := strings.TrimPrefix(target, "file://")
		if dir == "" {
			return nil, fmt.Errorf("backup target %q missing directory", target)
		}
		return blobstore.NewLocalStore(dir), nil

	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("s3 target %q missing bucket", target)
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		prefix := blobPrefix(strings.TrimPrefix(u.Path, "/"))
		return s3blob.New(s3.NewFromConfig(cfg), u.Host, func(o *s3blob.Options) {
			o.Prefix = prefix
		}), nil

	case "minio":
		if u.Host == "" {
			return nil, fmt.Errorf("minio target %q missing endpoint", target)
		}
		bucket, prefix, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if bucket == "" {
			return nil, fmt.Errorf("minio target %q missing bucket", target)
		}
		client, err := minio.New(u.Host, &minio.Options{
			Creds:  credentials.NewStaticV4(os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY"), ""),
			Secure: u.Query().Get("tls") == "true",
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minioblob.NewStore(client, bucket, blobPrefix(prefix)), nil

	default:
		return nil, fmt.Errorf("unsupported backup target scheme %q", u.Scheme)
	}
}

func blobPrefix(p string) string {
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
