// Package storage archives generated digests in Cloud Storage or a local directory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/api/iterator"
)

const prefix = "digests/"

// ErrNotFound is returned when an archived digest does not exist.
var ErrNotFound = errors.New("storage: object doesn't exist")

var nameRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{4}-\d{2}-\d{2}\.json$`)

// Entry describes one archived digest.
type Entry struct {
	Key     string          `json:"key"`
	Period  notifier.Period `json:"period"`
	Name    string          `json:"name"`
	Size    int64           `json:"size"`
	Updated time.Time       `json:"updated"`
}

// Archive stores digests as JSON objects keyed by period and date range.
type Archive struct {
	client     *storage.Client
	logger     *slog.Logger
	localPath  string
	bucket     string
	retryDelay time.Duration
}

// New creates an archive. A non-empty localPath wins over the bucket.
func New(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Archive {
	return &Archive{
		client:     client,
		logger:     logger,
		localPath:  localPath,
		bucket:     bucket,
		retryDelay: time.Second,
	}
}

// Key returns the object key of a digest.
func Key(d *notifier.DigestResult) string {
	return fmt.Sprintf("%s%s/%s_%s.json", prefix, d.Period, d.StartDate, d.EndDate)
}

// objectKey validates period and name and joins them into a key.
// Invalid input yields "" so callers never touch arbitrary paths.
func objectKey(period notifier.Period, name string) string {
	if p, err := notifier.ParsePeriod(string(period)); err != nil || p != period {
		return ""
	}
	if !nameRE.MatchString(name) {
		return ""
	}
	return prefix + string(period) + "/" + name
}

func (a *Archive) retryOpts(ctx context.Context, op, key string) []retry.Option {
	return []retry.Option{
		retry.Attempts(3),
		retry.Delay(a.retryDelay),
		retry.MaxDelay(2 * time.Minute),
		retry.MaxJitter(10 * a.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			a.logger.Info("Retrying archive operation after error", "op", op, "attempt", n, "key", key, "error", retryErr)
		}),
	}
}

// Save stores d and returns its key.
func (a *Archive) Save(ctx context.Context, d *notifier.DigestResult) (string, error) {
	key := Key(d)
	if objectKey(d.Period, path.Base(key)) == "" {
		return "", fmt.Errorf("invalid archive key %q", key)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal digest: %w", err)
	}

	if a.localPath != "" {
		filePath := filepath.Join(a.localPath, filepath.FromSlash(key))
		if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
			return "", fmt.Errorf("create archive directory: %w", err)
		}
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return "", fmt.Errorf("write to local storage: %w", err)
		}
		a.logger.Info("Digest archived to local storage", "path", filePath, "period", d.Period)
		return key, nil
	}

	err = retry.Do(
		func() error {
			w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					a.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		a.retryOpts(ctx, "save", key)...,
	)
	if err != nil {
		return "", fmt.Errorf("save after retries: %w", err)
	}

	a.logger.Info("Digest archived", "bucket", a.bucket, "key", key, "period", d.Period)
	return key, nil
}

// Load returns an archived digest.
func (a *Archive) Load(ctx context.Context, period notifier.Period, name string) (*notifier.DigestResult, error) {
	key := objectKey(period, name)
	if key == "" {
		return nil, ErrNotFound
	}

	var data []byte
	if a.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(a.localPath, filepath.FromSlash(key)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		err := retry.Do(
			func() error {
				r, openErr := a.client.Bucket(a.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						return retry.Unrecoverable(ErrNotFound)
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						a.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				data, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			a.retryOpts(ctx, "load", key)...,
		)
		if err != nil {
			if IsNotFound(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("load after retries: %w", err)
		}
	}

	var d notifier.DigestResult
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("unmarshal digest: %w", err)
	}
	return &d, nil
}

// List returns archived digests, newest first. An empty period lists all periods.
func (a *Archive) List(ctx context.Context, period notifier.Period) ([]Entry, error) {
	listPrefix := prefix
	if period != "" {
		p, err := notifier.ParsePeriod(string(period))
		if err != nil {
			return nil, err
		}
		listPrefix = prefix + string(p) + "/"
	}

	var entries []Entry
	if a.localPath != "" {
		root := filepath.Join(a.localPath, filepath.FromSlash(prefix))
		err := filepath.WalkDir(root, func(p string, de fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipAll
				}
				return err
			}
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(a.localPath, p)
			if err != nil {
				return err
			}
			key := filepath.ToSlash(rel)
			if !strings.HasPrefix(key, listPrefix) {
				return nil
			}
			info, err := de.Info()
			if err != nil {
				return err
			}
			if e, ok := entryFor(key, info.Size(), info.ModTime()); ok {
				entries = append(entries, e)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk local storage: %w", err)
		}
	} else {
		it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: listPrefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("iterate storage: %w", err)
			}
			if e, ok := entryFor(attrs.Name, attrs.Size, attrs.Updated); ok {
				entries = append(entries, e)
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name > entries[j].Name
		}
		return entries[i].Period < entries[j].Period
	})
	return entries, nil
}

func entryFor(key string, size int64, updated time.Time) (Entry, bool) {
	rest, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return Entry{}, false
	}
	period, name, ok := strings.Cut(rest, "/")
	if !ok || objectKey(notifier.Period(period), name) == "" {
		return Entry{}, false
	}
	return Entry{Key: key, Period: notifier.Period(period), Name: name, Size: size, Updated: updated.UTC()}, true
}

// IsNotFound checks if an error indicates a digest was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || (err != nil && strings.Contains(err.Error(), ErrNotFound.Error()))
}
