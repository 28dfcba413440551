// Package s3 provides an S3 implementation of the blobstore.BlobStore
// interface, plus a DynamoDB-backed commit store for atomic CURRENT
// pointer updates between concurrent writers.
//
// # Usage
//
//	client := awss3.NewFromConfig(cfg)
//	store := s3.New(client, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "vecstore/"
//	})
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large backups
//   - CRC32C integrity checksums on uploads
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
