package gcp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/quotebridge-backend/internal/platform/logger"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
	// StorageModeStatic builds unsigned URLs under a fixed base; local development only.
	StorageModeStatic StorageMode = "static"
)

const defaultSignedURLTTL = 15 * time.Minute

// AttachmentStore hands out time-limited read URLs for opaque attachment storage paths.
// Upload mechanics live with the client; this service never proxies blob bytes.
type AttachmentStore interface {
	SignedReadURL(ctx context.Context, storagePath string, ttl time.Duration) (string, time.Time, error)
	Close() error
}

type AttachmentStoreConfig struct {
	Mode          StorageMode
	Bucket        string
	EmulatorHost  string
	PublicBaseURL string
}

// Validate checks that the mode is known and carries what it needs.
func (cfg AttachmentStoreConfig) Validate() error {
	switch cfg.Mode {
	case StorageModeGCS:
		if strings.TrimSpace(cfg.Bucket) == "" {
			return fmt.Errorf("attachment store mode %q requires ATTACHMENT_BUCKET", cfg.Mode)
		}
	case StorageModeGCSEmulator:
		if strings.TrimSpace(cfg.Bucket) == "" {
			return fmt.Errorf("attachment store mode %q requires ATTACHMENT_BUCKET", cfg.Mode)
		}
		if !isAbsoluteURL(cfg.EmulatorHost) {
			return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost)
		}
	case StorageModeStatic:
		if !isAbsoluteURL(cfg.PublicBaseURL) {
			return fmt.Errorf("invalid ATTACHMENT_PUBLIC_BASE_URL=%q", cfg.PublicBaseURL)
		}
	default:
		return fmt.Errorf("invalid ATTACHMENT_STORAGE_MODE=%q (allowed: %q, %q, %q)",
			cfg.Mode, StorageModeGCS, StorageModeGCSEmulator, StorageModeStatic)
	}
	return nil
}

type attachmentStore struct {
	log           *logger.Logger
	client        *storage.Client
	mode          StorageMode
	bucket        string
	emulatorHost  string
	publicBaseURL string
}

func NewAttachmentStore(ctx context.Context, log *logger.Logger, cfg AttachmentStoreConfig) (AttachmentStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &attachmentStore{
		log:           log.With("service", "AttachmentStore"),
		mode:          cfg.Mode,
		bucket:        strings.TrimSpace(cfg.Bucket),
		emulatorHost:  strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
	}
	switch cfg.Mode {
	case StorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadOnly))
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		s.client = client
	case StorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", s.emulatorHost)
		client, err := storage.NewClient(ctx, option.WithoutAuthentication())
		if err != nil {
			return nil, fmt.Errorf("create emulator storage client: %w", err)
		}
		s.client = client
	}
	s.log.Info("Attachment store initialized", "mode", cfg.Mode, "bucket", s.bucket)
	return s, nil
}

func (s *attachmentStore) SignedReadURL(ctx context.Context, storagePath string, ttl time.Duration) (string, time.Time, error) {
	key := strings.TrimLeft(strings.TrimSpace(storagePath), "/")
	if key == "" {
		return "", time.Time{}, fmt.Errorf("empty storage path")
	}
	if ttl <= 0 {
		ttl = defaultSignedURLTTL
	}
	expires := time.Now().UTC().Add(ttl)

	switch s.mode {
	case StorageModeGCS:
		if err := ctx.Err(); err != nil {
			return "", time.Time{}, err
		}
		u, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
			Scheme:  storage.SigningSchemeV4,
			Method:  "GET",
			Expires: expires,
		})
		if err != nil {
			return "", time.Time{}, fmt.Errorf("sign url for %q: %w", key, err)
		}
		return u, expires, nil
	case StorageModeGCSEmulator:
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			s.emulatorHost, url.PathEscape(s.bucket), url.PathEscape(key)), expires, nil
	default:
		return StaticObjectURL(s.publicBaseURL, s.bucket, key, expires), expires, nil
	}
}

func (s *attachmentStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// StaticObjectURL joins base, optional bucket and key, appending the expiry as a query param.
func StaticObjectURL(base, bucket, key string, expires time.Time) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	parts := []string{base}
	if b := strings.Trim(strings.TrimSpace(bucket), "/"); b != "" {
		parts = append(parts, url.PathEscape(b))
	}
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	parts = append(parts, strings.Join(segments, "/"))
	return fmt.Sprintf("%s?expires=%d", strings.Join(parts, "/"), expires.Unix())
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && strings.TrimSpace(u.Scheme) != "" && strings.TrimSpace(u.Host) != ""
}
