// Package datastore persists notifications with gorm on sqlite or mysql.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/config"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// notificationRow is the persisted form of notifier.Notification.
type notificationRow struct {
	ID      int64      `gorm:"primaryKey;autoIncrement"`
	Name    string     `gorm:"size:255;not null"`
	Email   string     `gorm:"size:255;not null;index"`
	Phone   string     `gorm:"size:50;not null"`
	Body    string     `gorm:"type:text;not null"`
	Subject string     `gorm:"size:255;not null"`
	SentAt  time.Time  `gorm:"not null;index"`
	ReadAt  *time.Time `gorm:"index"`
}

func (notificationRow) TableName() string {
	return "notifications"
}

func (r *notificationRow) toNotification() *notifier.Notification {
	n := &notifier.Notification{
		ID:      r.ID,
		Name:    r.Name,
		Email:   r.Email,
		Phone:   r.Phone,
		Body:    r.Body,
		Subject: r.Subject,
		SentAt:  r.SentAt.UTC(),
	}
	if r.ReadAt != nil {
		t := r.ReadAt.UTC()
		n.ReadAt = &t
	}
	return n
}

// Filter narrows FindMany and Count. Zero values mean "no constraint".
type Filter struct {
	SentFrom   *time.Time // inclusive
	SentBefore *time.Time // exclusive
	UnreadOnly bool
	IDs        []int64 // restricts to these ids when non-empty
	Search     string // substring of name or email
	Limit      int
	Offset     int
}

// Store is the notification store.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the configured database and migrates the schema.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger, cfg.SlowThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	s := New(db, logger)
	if err := s.Migrate(context.Background()); err != nil {
		return nil, err
	}
	logger.Info("Notification store ready", "driver", cfg.Driver)
	return s, nil
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger, now: time.Now}
}

// Migrate creates or updates the notifications table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&notificationRow{}); err != nil {
		return fmt.Errorf("migrate notifications: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql handle: %w", err)
	}
	return sqlDB.Close()
}

// Create stores a new unread notification sent now.
func (s *Store) Create(ctx context.Context, req *notifier.CreateRequest) (*notifier.Notification, error) {
	row := notificationRow{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Body:    req.Body,
		Subject: req.Subject,
		SentAt:  s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, storeError("create notification", err)
	}
	s.logger.Info("Notification created", "id", row.ID, "email", row.Email)
	return row.toNotification(), nil
}

// Get loads one notification by id.
func (s *Store) Get(ctx context.Context, id int64) (*notifier.Notification, error) {
	var row notificationRow
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &notifier.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, storeError("get notification", err)
	}
	return row.toNotification(), nil
}

// FindMany returns notifications matching f, newest first.
func (s *Store) FindMany(ctx context.Context, f Filter) ([]*notifier.Notification, error) {
	q := s.apply(s.db.WithContext(ctx).Model(&notificationRow{}), f).
		Order("sent_at DESC").
		Order("id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var rows []notificationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, storeError("find notifications", err)
	}

	out := make([]*notifier.Notification, len(rows))
	for i := range rows {
		out[i] = rows[i].toNotification()
	}
	return out, nil
}

// Count returns how many notifications match f. Limit and Offset are ignored.
func (s *Store) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	if err := s.apply(s.db.WithContext(ctx).Model(&notificationRow{}), f).Count(&n).Error; err != nil {
		return 0, storeError("count notifications", err)
	}
	return n, nil
}

// UpdateMany marks the given notifications read in one statement.
// Rows that are already read keep their original read_at, and read_at
// never precedes sent_at.
func (s *Store) UpdateMany(ctx context.Context, ids []int64, readAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	readAt = readAt.UTC()
	res := s.db.WithContext(ctx).
		Model(&notificationRow{}).
		Where("id IN ? AND read_at IS NULL", ids).
		Update("read_at", gorm.Expr("CASE WHEN sent_at > ? THEN sent_at ELSE ? END", readAt, readAt))
	if res.Error != nil {
		return 0, storeError("mark notifications read", res.Error)
	}
	s.logger.Info("Notifications marked as read", "requested", len(ids), "updated", res.RowsAffected)
	return res.RowsAffected, nil
}

// MarkRead marks a single notification read. It returns a NotFoundError when
// the id does not exist and a ConflictError when it was already read.
func (s *Store) MarkRead(ctx context.Context, id int64, readAt time.Time) (*notifier.Notification, error) {
	var out *notifier.Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row notificationRow
		if err := tx.First(&row, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &notifier.NotFoundError{ID: id}
			}
			return err
		}
		if row.ReadAt != nil {
			return &notifier.ConflictError{ID: id, Message: "already marked as read"}
		}

		at := readAt.UTC()
		if at.Before(row.SentAt) {
			at = row.SentAt
		}
		res := tx.Model(&notificationRow{}).
			Where("id = ? AND read_at IS NULL", id).
			Update("read_at", at)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &notifier.ConflictError{ID: id, Message: "already marked as read"}
		}
		row.ReadAt = &at
		out = row.toNotification()
		return nil
	})
	if err != nil {
		if notifier.IsNotFound(err) || notifier.IsConflict(err) {
			return nil, err
		}
		return nil, storeError("mark notification read", err)
	}
	return out, nil
}

func (s *Store) apply(q *gorm.DB, f Filter) *gorm.DB {
	if f.SentFrom != nil {
		q = q.Where("sent_at >= ?", f.SentFrom.UTC())
	}
	if f.SentBefore != nil {
		q = q.Where("sent_at < ?", f.SentBefore.UTC())
	}
	if f.UnreadOnly {
		q = q.Where("read_at IS NULL")
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + term + "%"
		q = q.Where("(name LIKE ? OR email LIKE ?)", like, like)
	}
	return q
}

func storeError(op string, err error) error {
	return &notifier.ExternalServiceError{Service: "store", Err: fmt.Errorf("%s: %w", op, err)}
}
