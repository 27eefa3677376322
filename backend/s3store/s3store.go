// Package s3store provides a keyfs.ObjectStore over an S3-compatible
// endpoint. Directories are zero-byte marker objects whose key carries a
// trailing slash; a prefix with objects under it but no marker is still
// reported as a directory, so trees written by other tools list
// correctly.
//
// Calls run on context.Background(); timeouts and retry policy are the
// SDK's to enforce, configured on the client's HTTP transport.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/keyfs-io/keyfs"
)

const DefaultPageSize = 1000

// Config holds connection settings for an S3-compatible endpoint. An
// empty Endpoint uses the AWS default resolution; a non-empty one points
// the client at a compatible service such as MinIO.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type Option func(s *Store)

func WithPageSize(n int) Option {
	return func(s *Store) { s.pageSize = int32(n) }
}

type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	pageSize int32
}

var _ keyfs.ObjectStore = &Store{}

func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3store: bucket is required")
	}

	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client, cfg.Bucket, opts...), nil
}

// NewWithClient wraps an existing S3 client; useful for tests and for
// callers with their own client configuration.
func NewWithClient(client *s3.Client, bucket string, opts ...Option) *Store {
	s := &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// objectKey strips the slashes a canonical key may carry at either end;
// S3 keys never start with one.
func objectKey(key keyfs.Key) string {
	return strings.Trim(string(key), "/")
}

func markerKey(key keyfs.Key) string {
	return objectKey(key) + "/"
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		code := ae.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func (s *Store) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	return s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
}

// hasPrefix reports whether any object exists under prefix.
func (s *Store) hasPrefix(ctx context.Context, prefix string) (bool, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, err
	}
	return len(out.Contents) > 0, nil
}

func (s *Store) Head(key keyfs.Key) (*keyfs.ObjectInfo, error) {
	ctx := context.Background()

	k := objectKey(key)
	if k == "" {
		return &keyfs.ObjectInfo{Key: key, Dir: true}, nil
	}

	out, err := s.head(ctx, k)
	if err == nil {
		info := &keyfs.ObjectInfo{
			Key:         key,
			Size:        aws.ToInt64(out.ContentLength),
			ContentType: aws.ToString(out.ContentType),
			ETag:        aws.ToString(out.ETag),
		}
		if out.LastModified != nil {
			info.LastModified = *out.LastModified
		}
		return info, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	// No object at the key itself; it may still be a directory, either
	// by marker or implicitly by prefix.
	marker := markerKey(key)
	if out, err := s.head(ctx, marker); err == nil {
		info := &keyfs.ObjectInfo{Key: key, Dir: true}
		if out.LastModified != nil {
			info.LastModified = *out.LastModified
		}
		return info, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	found, err := s.hasPrefix(ctx, marker)
	if err != nil {
		return nil, err
	}
	if found {
		return &keyfs.ObjectInfo{Key: key, Dir: true}, nil
	}
	return nil, keyfs.KeyNotFound(key)
}

func (s *Store) Exists(key keyfs.Key) (bool, error) {
	_, err := s.Head(key)
	if err != nil {
		if keyfs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Reader(key keyfs.Key) (keyfs.ReadAtSeekCloser, error) {
	info, err := s.Head(key)
	if err != nil {
		return nil, err
	}
	if info.Dir {
		return nil, keyfs.ResourceError(keyfs.ErrIsADirectory, string(key))
	}
	return &objectReader{
		store: s,
		key:   objectKey(key),
		size:  info.Size,
	}, nil
}

// objectReader satisfies random access with ranged GETs, so seeking far
// into a large object does not stream the skipped bytes.
type objectReader struct {
	store *Store
	key   string
	size  int64
	pos   int64
}

func (r *objectReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}

func (r *objectReader) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if rem := r.size - off; want > rem {
		want = rem
	}
	if want == 0 {
		return 0, nil
	}

	out, err := r.store.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(r.store.bucket),
		Key:    aws.String(r.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+want-1)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, keyfs.KeyNotFound(keyfs.Key(r.key))
		}
		return 0, err
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, p[:want])
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err == nil && int64(n) < int64(len(p)) {
		err = io.EOF
	}
	return n, err
}

func (r *objectReader) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = r.pos + offset
	case io.SeekEnd:
		next = r.size + offset
	default:
		return 0, fmt.Errorf("s3store: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("s3store: negative seek position %d", next)
	}
	r.pos = next
	return next, nil
}

func (r *objectReader) Close() error { return nil }

func (s *Store) Writer(key keyfs.Key, headers keyfs.PutHeaders) (io.WriteCloser, error) {
	pr, pw := io.Pipe()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
		Body:   pr,
	}
	if headers.ContentType != "" {
		input.ContentType = aws.String(headers.ContentType)
	}

	w := &uploadWriter{pw: pw, done: make(chan error, 1)}
	go func() {
		_, err := s.uploader.Upload(context.Background(), input)
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

type uploadWriter struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *uploadWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *uploadWriter) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	return <-w.done
}

func (s *Store) Put(key keyfs.Key, data []byte, headers keyfs.PutHeaders) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
		Body:   bytes.NewReader(data),
	}
	if headers.ContentType != "" {
		input.ContentType = aws.String(headers.ContentType)
	}
	_, err := s.client.PutObject(context.Background(), input)
	return err
}

func (s *Store) Delete(key keyfs.Key) error {
	ctx := context.Background()

	info, err := s.Head(key)
	if err != nil {
		return err
	}

	target := objectKey(key)
	if info.Dir {
		marker := markerKey(key)
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(s.bucket),
			Prefix:  aws.String(marker),
			MaxKeys: aws.Int32(2),
		})
		if err != nil {
			return err
		}
		for _, obj := range out.Contents {
			if aws.ToString(obj.Key) != marker {
				return fmt.Errorf("s3store: directory not empty: %s", target)
			}
		}
		target = marker
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(target),
	})
	return err
}

func (s *Store) DeleteRecursive(key keyfs.Key) error {
	ctx := context.Background()

	if _, err := s.Head(key); err != nil {
		return err
	}

	marker := markerKey(key)
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(marker),
			ContinuationToken: token,
		})
		if err != nil {
			return err
		}
		var victims []types.ObjectIdentifier
		for _, obj := range out.Contents {
			victims = append(victims, types.ObjectIdentifier{Key: obj.Key})
		}
		if len(victims) > 0 {
			_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(s.bucket),
				Delete: &types.Delete{Objects: victims, Quiet: aws.Bool(true)},
			})
			if err != nil {
				return err
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	// The object at the key itself (file content or directory marker).
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(key)),
	})
	return err
}

func (s *Store) copyObject(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + src),
		Key:        aws.String(dst),
	})
	return err
}

func (s *Store) Move(sourceKey, destKey keyfs.Key) error {
	ctx := context.Background()

	info, err := s.Head(sourceKey)
	if err != nil {
		return err
	}

	src := objectKey(sourceKey)
	dst := objectKey(destKey)

	if !info.Dir {
		if err := s.copyObject(ctx, src, dst); err != nil {
			return err
		}
		_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(src),
		})
		return err
	}

	// Directory: move the marker and every key below it.
	srcPrefix := markerKey(sourceKey)
	dstPrefix := markerKey(destKey)
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(srcPrefix),
			ContinuationToken: token,
		})
		if err != nil {
			return err
		}
		for _, obj := range out.Contents {
			from := aws.ToString(obj.Key)
			to := dstPrefix + strings.TrimPrefix(from, srcPrefix)
			if err := s.copyObject(ctx, from, to); err != nil {
				return err
			}
			_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(from),
			})
			if err != nil {
				return err
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	if _, err := s.head(ctx, dstPrefix); isNotFound(err) {
		_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(dstPrefix),
			Body:   bytes.NewReader(nil),
		})
		return err
	}
	return nil
}

func (s *Store) PutDirectory(key keyfs.Key) (bool, error) {
	ctx := context.Background()

	k := objectKey(key)
	if k == "" {
		return true, nil
	}

	segments := strings.Split(k, "/")
	prefix := ""
	for _, seg := range segments {
		if prefix == "" {
			prefix = seg
		} else {
			prefix = prefix + "/" + seg
		}

		// A file sitting where a directory is needed fails the call.
		if _, err := s.head(ctx, prefix); err == nil {
			return false, keyfs.NotADirectory(keyfs.Key(prefix))
		} else if !isNotFound(err) {
			return false, err
		}

		marker := prefix + "/"
		if _, err := s.head(ctx, marker); err == nil {
			continue
		} else if !isNotFound(err) {
			return false, err
		}

		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(marker),
			Body:   bytes.NewReader(nil),
		})
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) ListPage(key keyfs.Key, token string) (*keyfs.ListPage, error) {
	ctx := context.Background()

	prefix := ""
	if k := objectKey(key); k != "" {
		prefix = k + "/"
	}

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(s.pageSize),
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, err
	}

	page := &keyfs.ListPage{}
	for _, obj := range out.Contents {
		k := aws.ToString(obj.Key)
		if k == prefix {
			// The directory's own marker is not a child.
			continue
		}
		info := keyfs.ObjectInfo{
			Key:  keyfs.Key(k),
			Size: aws.ToInt64(obj.Size),
			ETag: aws.ToString(obj.ETag),
		}
		if obj.LastModified != nil {
			info.LastModified = *obj.LastModified
		}
		if strings.HasSuffix(k, "/") {
			// Marker of a child directory that also appears as a
			// common prefix; skip it in favour of the prefix entry.
			continue
		}
		page.Entries = append(page.Entries, info)
	}
	for _, cp := range out.CommonPrefixes {
		p := strings.TrimSuffix(aws.ToString(cp.Prefix), "/")
		page.Entries = append(page.Entries, keyfs.ObjectInfo{
			Key: keyfs.Key(p),
			Dir: true,
		})
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}

	// An empty result covers both an empty directory and a missing one;
	// only a Head can tell them apart.
	if len(page.Entries) == 0 && page.NextToken == "" && prefix != "" {
		info, err := s.Head(key)
		if err != nil {
			return nil, err
		}
		if !info.Dir {
			return nil, keyfs.NotADirectory(key)
		}
	}
	return page, nil
}
