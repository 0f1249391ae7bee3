package cache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	updatedAtMetaKey = "updated_at"
	statusMetaKey    = "status"
	methodMetaKey    = "method"
	urlMetaKey       = "url"
	headerMetaKey    = "header"

	generationMarker = ".generation"
	entriesDir       = "entries"

	// user metadata is capped at 2KB per object
	maxHeaderMetaLen = 1500
)

// S3 lays generations out as <prefix>/<name>/ with a marker object and one
// object per entry under entries/.
type S3 struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

func NewS3(bucket, prefix string, client *s3.Client) *S3 {
	return &S3{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

func (s *S3) generationPrefix(name string) string {
	if s.prefix == "" {
		return name + "/"
	}
	return s.prefix + "/" + name + "/"
}

func (s *S3) markerKey(name string) string {
	return s.generationPrefix(name) + generationMarker
}

func (s *S3) Open(ctx context.Context, name string) (Generation, error) {
	ok, err := s.Has(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.markerKey(name)),
			Body:   bytes.NewReader(nil),
			Metadata: map[string]string{
				updatedAtMetaKey: strconv.FormatInt(time.Now().UTC().Unix(), 10),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("open generation %q: %w", name, err)
		}
	}
	return &s3Generation{store: s, name: name}, nil
}

func (s *S3) Has(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3) Names(ctx context.Context) ([]string, error) {
	root := ""
	if s.prefix != "" {
		root = s.prefix + "/"
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(root),
		Delimiter: aws.String("/"),
	})

	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list generations: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), root), "/")
			if name == "" {
				continue
			}
			ok, err := s.Has(ctx, name)
			if err != nil {
				return nil, err
			}
			if ok {
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *S3) Delete(ctx context.Context, name string) (bool, error) {
	existed, err := s.Has(ctx, name)
	if err != nil {
		return false, err
	}

	// marker goes first so readers stop seeing the generation before its
	// entries disappear
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(name)),
	})
	if err != nil {
		return false, fmt.Errorf("delete generation %q: %w", name, err)
	}

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.generationPrefix(name)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list generation %q: %w", name, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return false, fmt.Errorf("delete generation %q entries: %w", name, err)
		}
	}
	return existed, nil
}

type s3Generation struct {
	store *S3
	name  string
}

func (g *s3Generation) Name() string { return g.name }

func (g *s3Generation) objectKey(key Key) string {
	sum := sha256.Sum256([]byte(key.String()))
	return path.Join(g.store.generationPrefix(g.name), entriesDir, hex.EncodeToString(sum[:]))
}

func (g *s3Generation) Match(ctx context.Context, key Key) (Entry, error) {
	out, err := g.store.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.store.bucket),
		Key:    aws.String(g.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Entry{}, err
	}

	header := decodeHeaderMeta(out.Metadata)
	if ct := aws.ToString(out.ContentType); ct != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", ct)
	}
	if enc := aws.ToString(out.ContentEncoding); enc != "" && header.Get("Content-Encoding") == "" {
		header.Set("Content-Encoding", enc)
	}
	status, _ := strconv.Atoi(out.Metadata[statusMetaKey])
	if status == 0 {
		status = http.StatusOK
	}

	return Entry{
		Status:   status,
		Header:   header,
		Body:     body,
		StoredAt: parseUpdatedAt(out.Metadata),
	}, nil
}

func (g *s3Generation) Put(ctx context.Context, key Key, entry Entry) error {
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	meta := map[string]string{
		updatedAtMetaKey: strconv.FormatInt(storedAt.Unix(), 10),
		statusMetaKey:    strconv.Itoa(entry.Status),
		methodMetaKey:    key.Method,
		urlMetaKey:       base64.RawURLEncoding.EncodeToString([]byte(key.URL)),
	}
	if h := encodeHeaderMeta(entry.Header); h != "" {
		meta[headerMetaKey] = h
	}

	input := &s3.PutObjectInput{
		Bucket:   aws.String(g.store.bucket),
		Key:      aws.String(g.objectKey(key)),
		Body:     bytes.NewReader(entry.Body),
		Metadata: meta,
	}
	if ct := entry.Header.Get("Content-Type"); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if enc := entry.Header.Get("Content-Encoding"); enc != "" {
		input.ContentEncoding = aws.String(enc)
	}

	_, err := g.store.uploader.Upload(ctx, input)
	return err
}

func (g *s3Generation) Keys(ctx context.Context) ([]Key, error) {
	p := s3.NewListObjectsV2Paginator(g.store.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.store.bucket),
		Prefix: aws.String(g.store.generationPrefix(g.name) + entriesDir + "/"),
	})

	var keys []Key
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		for _, obj := range page.Contents {
			head, err := g.store.client.HeadObject(ctx, &s3.HeadObjectInput{
				Bucket: aws.String(g.store.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return nil, err
			}
			rawURL, err := base64.RawURLEncoding.DecodeString(head.Metadata[urlMetaKey])
			if err != nil {
				continue
			}
			keys = append(keys, Key{Method: head.Metadata[methodMetaKey], URL: string(rawURL)})
		}
	}
	sortKeys(keys)
	return keys, nil
}

// encodeHeaderMeta falls back to the representation headers when the full
// set would not fit in object metadata.
func encodeHeaderMeta(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	enc := func(v http.Header) string {
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return base64.RawURLEncoding.EncodeToString(raw)
	}
	out := enc(h)
	if len(out) <= maxHeaderMetaLen {
		return out
	}
	small := http.Header{}
	for _, name := range []string{"Content-Type", "Content-Encoding", "Content-Language", "Etag", "Last-Modified", "Cache-Control"} {
		if v := h.Values(name); len(v) > 0 {
			small[name] = v
		}
	}
	out = enc(small)
	if len(out) <= maxHeaderMetaLen {
		return out
	}
	return ""
}

func decodeHeaderMeta(meta map[string]string) http.Header {
	h := http.Header{}
	raw, ok := meta[headerMetaKey]
	if !ok {
		return h
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return h
	}
	_ = json.Unmarshal(data, &h)
	if h == nil {
		h = http.Header{}
	}
	return h
}

func parseUpdatedAt(meta map[string]string) time.Time {
	if meta == nil {
		return time.Time{}
	}
	val, ok := meta[updatedAtMetaKey]
	if !ok {
		return time.Time{}
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}
