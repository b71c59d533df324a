// Package snapshot archives point-in-time copies of hotel trees to
// S3-compatible object storage. Snapshots are gzipped JSON; a template is a
// snapshot with values stripped, used to bootstrap new hotels from an
// existing structure.
package snapshot

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"concierge/api/internal/tree"
)

const contentType = "application/gzip"

// Info describes one stored snapshot.
type Info struct {
	Key       string    `json:"key"`
	HotelID   string    `json:"hotelId"`
	Label     string    `json:"label"`
	Template  bool      `json:"template"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service stores snapshots in one bucket, keyed
// snapshots/<hotelID>/<timestamp>-<label>.json.gz and
// templates/<label>.json.gz.
type Service struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and ensures the bucket exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: bucket}, nil
}

// Store archives the tree under the hotel's snapshot prefix.
func (s *Service) Store(ctx context.Context, hotelID, label string, root *tree.Node) (Info, error) {
	key := fmt.Sprintf("snapshots/%s/%s-%s.json.gz",
		hotelID, time.Now().UTC().Format("20060102T150405Z"), slugify(label))
	return s.put(ctx, key, hotelID, label, false, root)
}

// StoreTemplate strips values from the tree and archives it as a reusable
// structure.
func (s *Service) StoreTemplate(ctx context.Context, label string, root *tree.Node) (Info, error) {
	key := fmt.Sprintf("templates/%s.json.gz", slugify(label))
	return s.put(ctx, key, "", label, true, tree.StripValues(root))
}

func (s *Service) put(ctx context.Context, key, hotelID, label string, template bool, root *tree.Node) (Info, error) {
	payload, err := json.Marshal(root)
	if err != nil {
		return Info{}, fmt.Errorf("marshal tree: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return Info{}, fmt.Errorf("compress tree: %w", err)
	}
	if err := gz.Close(); err != nil {
		return Info{}, fmt.Errorf("finish compression: %w", err)
	}

	meta := map[string]string{"hotel-id": hotelID, "label": label}
	_, err = s.client.PutObject(ctx, s.bucket, key, &buf, int64(buf.Len()), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: meta,
	})
	if err != nil {
		return Info{}, fmt.Errorf("upload snapshot: %w", err)
	}

	return Info{
		Key:       key,
		HotelID:   hotelID,
		Label:     label,
		Template:  template,
		Size:      int64(buf.Len()),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Fetch retrieves and decodes a snapshot or template by key.
func (s *Service) Fetch(ctx context.Context, key string) (*tree.Node, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	defer obj.Close()

	gz, err := gzip.NewReader(obj)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", key, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}

	var root tree.Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &root, nil
}

// List returns a hotel's snapshots newest first. An empty hotelID lists
// templates instead.
func (s *Service) List(ctx context.Context, hotelID string) ([]Info, error) {
	prefix := "templates/"
	if hotelID != "" {
		prefix = "snapshots/" + hotelID + "/"
	}

	var items []Info
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list snapshots: %w", obj.Err)
		}
		items = append(items, Info{
			Key:       obj.Key,
			HotelID:   hotelID,
			Template:  hotelID == "",
			Size:      obj.Size,
			CreatedAt: obj.LastModified,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// Delete removes a snapshot or template by key.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

func slugify(label string) string {
	out := make([]rune, 0, len(label))
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == ' ', r == '-', r == '_':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "snapshot"
	}
	return string(out)
}
