package storage

import (
	"context"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/stregato/owndata/internal/core"
)

// S3 is a store backed by an S3-compatible service, addressed as
// s3://accessKey:secretKey@endpoint/bucket/prefix. Query parameter
// insecure=1 disables TLS (local minio fixtures).
type S3 struct {
	id     string
	client *minio.Client
	bucket string
	prefix string
}

func OpenS3(connectionURL string) (Store, error) {
	u, err := url.Parse(connectionURL)
	if err != nil || u.Scheme != "s3" {
		return nil, core.Errf(core.CodeNotFound, "invalid s3 store url %s", connectionURL)
	}

	accessKey := u.User.Username()
	secretKey, _ := u.User.Password()
	secure := u.Query().Get("insecure") != "1"

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if parts[0] == "" {
		return nil, core.Errf(core.CodeNotFound, "missing bucket in s3 store url %s", connectionURL)
	}
	bucket := parts[0]
	var prefix string
	if len(parts) == 2 {
		prefix = parts[1]
	}

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, core.Errf(core.CodeNotFound, "cannot connect to s3 endpoint %s: %v", u.Host, err)
	}

	return &S3{
		id:     "s3://" + u.Host + "/" + bucket + "/" + prefix,
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3) key(name string) string {
	return path.Join(s.prefix, strings.Trim(name, "/"))
}

func (s *S3) ReadDir(ctx context.Context, name string, filter Filter) ([]FileInfo, error) {
	dir := s.key(name)
	if dir != "" {
		dir += "/"
	}

	var ls []FileInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: dir}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		rest := strings.TrimPrefix(obj.Key, dir)
		fi := FileInfo{Name: strings.TrimSuffix(rest, "/"), Size: obj.Size, ModTime: obj.LastModified}
		if strings.HasSuffix(rest, "/") {
			fi.IsDir = true
		}
		if filter.Match(fi) {
			ls = append(ls, fi)
		}
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Name < ls[j].Name })
	if filter.MaxResults > 0 && int64(len(ls)) > filter.MaxResults {
		ls = ls[:filter.MaxResults]
	}
	return ls, nil
}

func (s *S3) Read(ctx context.Context, name string, dest io.Writer) error {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()
	if _, err = io.Copy(dest, obj); err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return core.Errf(core.CodeNotFound, "object %s not found in %s", name, s.id)
		}
		return err
	}
	return nil
}

func (s *S3) Write(ctx context.Context, name string, source io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), source, -1, minio.PutObjectOptions{})
	return err
}

func (s *S3) Stat(ctx context.Context, name string) (FileInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucket, s.key(name), minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return FileInfo{}, core.Errf(core.CodeNotFound, "object %s not found in %s", name, s.id)
		}
		return FileInfo{}, err
	}
	return FileInfo{Name: path.Base(name), Size: info.Size, ModTime: info.LastModified}, nil
}

func (s *S3) Delete(ctx context.Context, name string) error {
	if _, err := s.Stat(ctx, name); err != nil {
		return err
	}
	return s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
}

func (s *S3) ID() string   { return s.id }
func (s *S3) Close() error { return nil }
