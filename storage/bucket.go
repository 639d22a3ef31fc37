package storage

import (
	"context"
	"fmt"
	"io"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/s3blob"   // s3:// buckets
)

// ReadObject fetches one object from a bucket URL such as
// file:///data/projects or s3://my-bucket.
func ReadObject(ctx context.Context, bucketURL, key string) ([]byte, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %v", bucketURL, err)
	}
	defer bucket.Close()
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, fmt.Errorf("opening %s in %s: %v", key, bucketURL, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s from %s: %v", key, bucketURL, err)
	}
	return data, nil
}

// WriteObject stores one object in a bucket URL.
func WriteObject(ctx context.Context, bucketURL, key string, data []byte) error {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return fmt.Errorf("opening bucket %s: %v", bucketURL, err)
	}
	defer bucket.Close()
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("creating %s in %s: %v", key, bucketURL, err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("writing %s to %s: %v", key, bucketURL, err)
	}
	return w.Close()
}
