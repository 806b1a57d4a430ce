// Package backup keeps encrypted snapshots of the meal collection in
// S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/mealplan/internal/model"
	"github.com/dukerupert/mealplan/internal/store"
)

var (
	ErrNotConfigured = errors.New("backup not configured: S3 credentials missing")
	ErrNoPassphrase  = errors.New("backup passphrase is required")
	ErrInProgress    = errors.New("backup already in progress")
)

const (
	DefaultPrefix        = "meals/"
	DefaultRetentionDays = 30
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Collection is the data being backed up.
type Collection interface {
	Export() ([]byte, error)
	Import(data []byte) (int, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration. Scheduled backups run only
// when both Interval and Passphrase are set.
type Config struct {
	S3            S3Config
	Passphrase    string
	Interval      time.Duration
	RetentionDays int
	Prefix        string
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Status holds the current backup manager status.
type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"lastBackup,omitempty"`
	LastKey    string     `json:"lastKey,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"inProgress"`
}

// StatusCallback is called whenever the backup state changes.
type StatusCallback func(Status)

// Manager manages encrypted backups to S3-compatible storage.
type Manager struct {
	mu       sync.RWMutex
	runMu    sync.Mutex
	cfg      Config
	status   Status
	callback StatusCallback
	logger   *slog.Logger
	now      func() time.Time

	collection  Collection
	backupStore *store.BackupStore
	client      s3Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a backup manager. It starts disabled when the S3
// configuration is incomplete.
func NewManager(cfg Config, coll Collection, bs *store.BackupStore, logger *slog.Logger, callback StatusCallback) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:         cfg,
		collection:  coll,
		backupStore: bs,
		callback:    callback,
		logger:      logger,
		now:         time.Now,
		status:      Status{State: StateDisabled},
	}
	if cfg.S3.complete() {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// UpdateS3Config hot-reloads the S3 configuration.
func (m *Manager) UpdateS3Config(s3cfg S3Config) {
	m.mu.Lock()
	m.cfg.S3 = s3cfg
	if s3cfg.complete() {
		m.client = newS3Client(s3cfg)
		m.status.State = StateIdle
	} else {
		m.client = nil
		m.status.State = StateDisabled
	}
	status := m.status
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(status)
	}
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cfg.Interval <= 0 || m.cfg.Passphrase == "" || m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	m.logger.Info("scheduled backups enabled", "interval", interval)

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.scheduled(ctx)
			}
		}
	}()
}

// Stop gracefully stops the backup manager.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
	if m.callback != nil {
		m.callback(s)
	}
}

func (m *Manager) scheduled(ctx context.Context) {
	m.mu.RLock()
	passphrase := m.cfg.Passphrase
	retention := m.cfg.RetentionDays
	m.mu.RUnlock()

	if _, err := m.RunNow(ctx, passphrase); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
	if err := m.Cleanup(ctx, retention); err != nil {
		m.logger.Error("backup cleanup failed", "error", err)
	}
}

// RunNow exports the collection, encrypts it with passphrase and uploads it.
// An empty passphrase falls back to the configured one.
func (m *Manager) RunNow(ctx context.Context, passphrase string) (*model.Backup, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	prefix := m.cfg.Prefix
	if passphrase == "" {
		passphrase = m.cfg.Passphrase
	}
	m.mu.RUnlock()

	if client == nil {
		return nil, ErrNotConfigured
	}
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}
	if !m.runMu.TryLock() {
		return nil, ErrInProgress
	}
	defer m.runMu.Unlock()

	m.setStatus(Status{State: StateRunning, InProgress: true})

	started := m.now().UTC()
	s3Key := prefix + "backup-" + started.Format("2006-01-02T150405.000Z") + ".json.enc"

	record, err := m.backupStore.Create(s3Key)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	fail := func(stage string, err error) (*model.Backup, error) {
		if uerr := m.backupStore.UpdateStatus(record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Warn("backup status not recorded", "id", record.ID, "error", uerr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, fmt.Errorf("%s: %w", stage, err)
	}

	if err := m.backupStore.UpdateStatus(record.ID, model.BackupStatusUploading, ""); err != nil {
		return fail("mark uploading", err)
	}

	plaintext, err := m.collection.Export()
	if err != nil {
		return fail("export meals", err)
	}
	encrypted, err := Encrypt(plaintext, passphrase)
	if err != nil {
		return fail("encrypt", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(s3Key),
		Body:          bytes.NewReader(encrypted),
		ContentLength: aws.Int64(int64(len(encrypted))),
	})
	if err != nil {
		return fail("upload to s3", err)
	}

	size := int64(len(encrypted))
	if err := m.backupStore.UpdateCompleted(record.ID, size); err != nil {
		return fail("mark completed", err)
	}

	finished := m.now().UTC()
	m.setStatus(Status{State: StateIdle, LastBackup: &finished, LastKey: s3Key})
	m.logger.Info("backup uploaded", "key", s3Key, "bytes", size)

	record.Status = model.BackupStatusCompleted
	record.SizeBytes = size
	record.CompletedAt = &finished
	return record, nil
}

// Restore downloads the object at s3Key, decrypts it and replaces the
// collection with its contents. The collection is untouched on any error.
func (m *Manager) Restore(ctx context.Context, s3Key, passphrase string) (int, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	if passphrase == "" {
		passphrase = m.cfg.Passphrase
	}
	m.mu.RUnlock()

	if client == nil {
		return 0, ErrNotConfigured
	}
	if passphrase == "" {
		return 0, ErrNoPassphrase
	}
	if strings.TrimSpace(s3Key) == "" {
		return 0, errors.New("backup key is required")
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		return 0, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	encrypted, err := io.ReadAll(result.Body)
	if err != nil {
		return 0, fmt.Errorf("read backup: %w", err)
	}
	plaintext, err := Decrypt(encrypted, passphrase)
	if err != nil {
		return 0, fmt.Errorf("decrypt backup: %w", err)
	}

	n, err := m.collection.Import(plaintext)
	if err != nil {
		return 0, fmt.Errorf("import backup: %w", err)
	}
	m.logger.Info("backup restored", "key", s3Key, "meals", n)
	return n, nil
}

// List returns the most recent backup records.
func (m *Manager) List(limit int) ([]model.Backup, error) {
	return m.backupStore.List(limit)
}

// Cleanup deletes backups older than the retention period.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil {
		return nil
	}
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	before := m.now().UTC().AddDate(0, 0, -retentionDays)
	keys, err := m.backupStore.DeleteOlderThan(before)
	if err != nil {
		return fmt.Errorf("delete old backups: %w", err)
	}

	for _, key := range keys {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("failed to delete S3 object", "key", key, "error", err)
		}
	}
	return nil
}
