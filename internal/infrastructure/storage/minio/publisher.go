package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/famsim/pkg/errors"
)

// ManifestName is the object written last under each run prefix.
const ManifestName = "manifest.json"

// PublishedObject describes one uploaded file.
type PublishedObject struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
	ETag string `json:"etag"`
}

// Manifest lists everything uploaded for a run.
type Manifest struct {
	RunID       string            `json:"run_id"`
	Bucket      string            `json:"bucket"`
	Prefix      string            `json:"prefix"`
	PublishedAt time.Time         `json:"published_at"`
	Objects     []PublishedObject `json:"objects"`
}

// Publisher uploads a run's output directory.
type Publisher struct {
	client *MinIOClient
	logger logging.Logger
	now    func() time.Time
}

// NewPublisher returns a Publisher writing through client.
func NewPublisher(client *MinIOClient, log logging.Logger) *Publisher {
	if log == nil {
		log = logging.Default()
	}
	return &Publisher{client: client, logger: log, now: time.Now}
}

// PublishDir uploads every regular file below dir to
// <prefix>/<runID>/<relative path> and then writes the manifest. Files are
// uploaded in lexical order.
func (p *Publisher) PublishDir(ctx context.Context, dir, runID string) (*Manifest, error) {
	var files []string
	err := filepath.WalkDir(dir, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, fp)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePublish, "failed to list output directory").
			WithDetailf("dir=%s", dir)
	}
	sort.Strings(files)

	prefix := path.Join(p.client.config.Prefix, runID)
	m := &Manifest{
		RunID:   runID,
		Bucket:  p.client.Bucket(),
		Prefix:  prefix,
		Objects: make([]PublishedObject, 0, len(files)),
	}
	for _, fp := range files {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCanceled, "publish canceled")
		}
		rel, err := filepath.Rel(dir, fp)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodePublish, "failed to resolve output path")
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		info, err := p.client.client.FPutObject(ctx, m.Bucket, key, fp, minio.PutObjectOptions{
			ContentType:  contentType(fp),
			UserMetadata: map[string]string{"run-id": runID},
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodePublish, "failed to upload output file").
				WithDetailf("file=%s key=%s", fp, key)
		}
		m.Objects = append(m.Objects, PublishedObject{Key: key, Size: info.Size, ETag: info.ETag})
		p.logger.Debug("Uploaded object", logging.String("key", key), logging.Int64("size", info.Size))
	}

	m.PublishedAt = p.now().UTC()
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode manifest")
	}
	key := path.Join(prefix, ManifestName)
	if _, err := p.client.client.PutObject(ctx, m.Bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePublish, "failed to upload manifest").WithDetailf("key=%s", key)
	}

	p.logger.Info("Published run outputs",
		logging.String("run_id", runID),
		logging.String("bucket", m.Bucket),
		logging.String("prefix", prefix),
		logging.Int("objects", len(m.Objects)))
	return m, nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tsv":
		return "text/tab-separated-values"
	case ".json":
		return "application/json"
	case ".prom", ".txt", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
