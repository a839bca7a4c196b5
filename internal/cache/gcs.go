package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS stores entries in a Cloud Storage bucket
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects to Cloud Storage. credentialsFile may be empty to use
// application default credentials.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	logrus.WithFields(logrus.Fields{"bucket": bucket}).Info("Portfolio cache backed by GCS")
	return &GCS{client: client, bucket: bucket}, nil
}

// Close releases the client
func (g *GCS) Close() error {
	return g.client.Close()
}

// Put writes e to its timestamped object
func (g *GCS) Put(ctx context.Context, key string, e Entry) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	w := g.client.Bucket(g.bucket).Object(ObjectName(key, e.Timestamp)).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("write cache object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close cache object: %w", err)
	}
	return nil
}

// Latest lists the key's objects and downloads the newest
func (g *GCS) Latest(ctx context.Context, key string) (Entry, error) {
	bucket := g.client.Bucket(g.bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix(key)})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return Entry{}, fmt.Errorf("list cache objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	name, ok := newest(key, names)
	if !ok {
		return Entry{}, ErrNotFound
	}

	r, err := bucket.Object(name).NewReader(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("open cache object: %w", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return Entry{}, fmt.Errorf("read cache object: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	return e, nil
}
