package audit

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/storage"
)

// ArchiveResult describes one archive run
type ArchiveResult struct {
	Key     string
	Events  int
	Skipped bool
}

// S3Archiver uploads windows of the audit trail to object storage as NDJSON
type S3Archiver struct {
	objects storage.ObjectStore
	trail   Searcher
	prefix  string
	logger  *logrus.Logger
}

// NewS3Archiver creates an archiver. prefix defaults to "audit".
func NewS3Archiver(objects storage.ObjectStore, trail Searcher, prefix string, logger *logrus.Logger) *S3Archiver {
	if prefix == "" {
		prefix = "audit"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &S3Archiver{objects: objects, trail: trail, prefix: prefix, logger: logger}
}

// Key returns the object key for the window [from, to)
func (a *S3Archiver) Key(from, to time.Time) string {
	from, to = from.UTC(), to.UTC()
	return path.Join(a.prefix, from.Format("2006/01/02"),
		fmt.Sprintf("%s_%s.ndjson", from.Format("20060102T150405Z"), to.Format("20060102T150405Z")))
}

// Archive uploads every event in [from, to). A window that is already
// archived or holds no events is skipped.
func (a *S3Archiver) Archive(ctx context.Context, from, to time.Time) (ArchiveResult, error) {
	if !from.Before(to) {
		return ArchiveResult{}, fmt.Errorf("archive window is empty: %s >= %s", from, to)
	}

	key := a.Key(from, to)
	exists, err := a.objects.ObjectExists(ctx, key)
	if err != nil {
		return ArchiveResult{}, err
	}
	if exists {
		a.logger.WithField("key", key).Info("audit window already archived")
		return ArchiveResult{Key: key, Skipped: true}, nil
	}

	end := to.Add(-time.Nanosecond)
	events, err := a.trail.Search(ctx, SearchFilter{StartTime: &from, EndTime: &end})
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("failed to read audit trail: %w", err)
	}
	if len(events) == 0 {
		return ArchiveResult{Key: key, Skipped: true}, nil
	}

	data, err := exportNDJSON(events)
	if err != nil {
		return ArchiveResult{}, err
	}
	if err := a.objects.PutObject(ctx, key, bytes.NewReader(data), "application/x-ndjson"); err != nil {
		return ArchiveResult{}, err
	}

	a.logger.WithFields(logrus.Fields{
		"key":    key,
		"events": len(events),
	}).Info("audit window archived")

	return ArchiveResult{Key: key, Events: len(events)}, nil
}
