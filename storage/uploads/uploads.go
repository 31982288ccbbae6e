// Package uploads stores the documents of assignments and submissions.
package uploads

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"

	"github.com/odinschool/odin/core"
	"github.com/odinschool/odin/core/assignment"
)

const (
	EngineLocal = "local"
	EngineB2    = "b2"
)

var errInvalidKey = errors.New("invalid storage key")

// NewFileStore returns the file store selected by conf.Uploads.Engine.
func NewFileStore(ctx context.Context, conf *core.Config) (assignment.FileStore, error) {
	switch conf.Uploads.Engine {
	case EngineLocal, "":
		return NewLocalStore(conf.Uploads.Dir), nil
	case EngineB2:
		return NewB2Store(ctx, conf.Uploads.B2AccountID, conf.Uploads.B2AppKey, conf.Uploads.B2Bucket)
	default:
		return nil, errors.Errorf("unsupported uploads engine %q", conf.Uploads.Engine)
	}
}

// cleanKey rejects keys that would escape the store root.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != key || strings.HasPrefix(cleaned, "../") {
		return "", errors.Wrap(errInvalidKey, key)
	}
	return cleaned, nil
}

// LocalStore keeps files on the local filesystem, under its root directory.
type LocalStore struct {
	root string
}

var _ assignment.FileStore = (*LocalStore)(nil) // interface compliance check

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

func (s *LocalStore) Save(_ context.Context, key string, content io.Reader) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	fp := filepath.Join(s.root, filepath.FromSlash(key))
	if err = os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return errors.Wrap(err, "creating upload dir")
	}

	f, err := os.Create(fp)
	if err != nil {
		return errors.Wrap(err, "creating upload file")
	}
	if _, err = io.Copy(f, content); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "writing upload file")
	}
	return errors.Wrap(f.Close(), "closing upload file")
}

// B2Store keeps files in a Backblaze B2 bucket.
type B2Store struct {
	client *b2.Client
	bucket *b2.Bucket
}

var _ assignment.FileStore = (*B2Store)(nil) // interface compliance check

func NewB2Store(ctx context.Context, accountID, appKey, bucketName string) (*B2Store, error) {
	client, err := b2.NewClient(ctx, accountID, appKey)
	if err != nil {
		return nil, errors.Wrap(err, "creating b2 client")
	}
	bucket, err := client.Bucket(ctx, bucketName)
	if err != nil {
		return nil, errors.Wrap(err, "getting b2 bucket")
	}
	return &B2Store{client: client, bucket: bucket}, nil
}

func (s *B2Store) Save(ctx context.Context, key string, content io.Reader) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	if _, err = io.Copy(w, content); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "writing b2 object")
	}
	return errors.Wrap(w.Close(), "closing b2 object")
}
