package sessions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vendorsec-backend/internal/extract"
	"vendorsec-backend/internal/frameworks"
	"vendorsec-backend/internal/shared/apperr"
	"vendorsec-backend/internal/shared/metrics"
	"vendorsec-backend/internal/shared/storage/object"
	"vendorsec-backend/internal/shared/telemetry"
	"vendorsec-backend/internal/shared/util"
)

const (
	maxSessionIDLen = 64
	maxMetaLen      = 200
	sniffLen        = 512
)

var allowedExtensions = map[string]string{
	".pdf":  extract.MimePDF,
	".docx": extract.MimeDOCX,
	".xlsx": extract.MimeXLSX,
	".csv":  extract.MimeCSV,
	".txt":  extract.MimeText,
	".md":   extract.MimeMarkdown,
}

// Limits bounds what a single session may hold.
type Limits struct {
	MaxFileBytes    int64
	MaxSessionBytes int64
	TTL             time.Duration
}

// ResetHook releases state other packages keep for a session. A hook error
// aborts the reset before any files are removed.
type ResetHook func(ctx context.Context, sessionID string) error

// Registry owns per-session state. Mutations for one session id are
// serialized; different sessions proceed independently.
type Registry struct {
	Repo   SessionsRepo
	Store  object.ObjectStore
	Limits Limits
	Now    func() time.Time

	locks *keyedLocks

	hooksMu    sync.RWMutex
	resetHooks []ResetHook
}

// NewRegistry constructs a Registry.
func NewRegistry(repo SessionsRepo, store object.ObjectStore, limits Limits) *Registry {
	return &Registry{
		Repo:   repo,
		Store:  store,
		Limits: limits,
		Now:    func() time.Time { return time.Now().UTC() },
		locks:  newKeyedLocks(),
	}
}

// ValidateID checks the session id format.
func ValidateID(id string) error {
	if id == "" || len(id) > maxSessionIDLen {
		return apperr.Validation("session_id must be 1-%d characters", maxSessionIDLen)
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
			return apperr.Validation("session_id must be alphanumeric with hyphens only")
		}
	}
	return nil
}

// OnReset registers a hook run by Reset, in registration order.
func (r *Registry) OnReset(h ResetHook) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.resetHooks = append(r.resetHooks, h)
}

// WithLock runs fn while holding the session's mutation lock. fn must not
// call other mutating Registry methods for the same session.
func (r *Registry) WithLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	if err := ValidateID(sessionID); err != nil {
		return err
	}
	unlock, err := r.locks.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(ctx)
}

// Ensure returns the session, creating it on first contact.
func (r *Registry) Ensure(ctx context.Context, sessionID string) (Session, error) {
	var s Session
	err := r.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		s, err = r.ensureLocked(ctx, sessionID)
		return err
	})
	return s, err
}

func (r *Registry) ensureLocked(ctx context.Context, sessionID string) (Session, error) {
	s, err := r.Repo.Get(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}
	now := r.Now()
	s = Session{
		ID:                 sessionID,
		Files:              []FileRecord{},
		SelectedFrameworks: []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := r.Repo.Create(ctx, s); err != nil {
		return Session{}, err
	}
	return r.Repo.Get(ctx, sessionID)
}

// Get returns the session without creating it.
func (r *Registry) Get(ctx context.Context, sessionID string) (Session, error) {
	if err := ValidateID(sessionID); err != nil {
		return Session{}, err
	}
	return r.Repo.Get(ctx, sessionID)
}

// Files lists a session's files; unknown sessions have none.
func (r *Registry) Files(ctx context.Context, sessionID string) ([]FileRecord, error) {
	s, err := r.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return []FileRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Files, nil
}

// AddFile stores an upload and records it on the session.
func (r *Registry) AddFile(ctx context.Context, sessionID, fileName string, body io.Reader) (FileRecord, error) {
	safeName, err := util.SanitizeFileName(strings.TrimSpace(filepath.Base(fileName)))
	if err != nil || safeName == "" {
		return FileRecord{}, apperr.Validation("invalid file name")
	}
	ext := strings.ToLower(filepath.Ext(safeName))
	canonical, ok := allowedExtensions[ext]
	if !ok {
		return FileRecord{}, apperr.New(apperr.ErrUnsupportedFormat,
			"file extension %q not allowed; allowed: .pdf, .docx, .xlsx, .csv, .txt, .md", ext)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return FileRecord{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return FileRecord{}, apperr.Validation("file is empty")
	}
	if err := checkContent(head, ext); err != nil {
		return FileRecord{}, err
	}

	var rec FileRecord
	err = r.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := r.ensureLocked(ctx, sessionID)
		if err != nil {
			return err
		}

		fileID := uuid.NewString()
		key := path.Join("sessions", sessionID, fileID+"_"+safeName)
		limited := io.LimitReader(io.MultiReader(bytes.NewReader(head), body), r.Limits.MaxFileBytes+1)

		size, err := r.Store.Put(ctx, key, canonical, limited)
		if err != nil {
			return fmt.Errorf("store upload: %w", err)
		}
		if size > r.Limits.MaxFileBytes {
			r.deleteObject(ctx, key)
			return apperr.Validation("file exceeds the %d MB limit", r.Limits.MaxFileBytes>>20)
		}
		if s.TotalBytes()+size > r.Limits.MaxSessionBytes {
			r.deleteObject(ctx, key)
			return apperr.Validation("session storage limit of %d MB exceeded", r.Limits.MaxSessionBytes>>20)
		}

		now := r.Now()
		rec = FileRecord{
			ID:           fileID,
			OriginalName: safeName,
			SizeBytes:    size,
			MimeType:     canonical,
			StorageKey:   key,
			UploadedAt:   now,
		}
		if err := r.Repo.AddFile(ctx, sessionID, rec, now); err != nil {
			r.deleteObject(ctx, key)
			return err
		}
		return nil
	})
	if err != nil {
		return FileRecord{}, err
	}

	metrics.AddUploadedBytes(rec.SizeBytes)
	telemetry.Info("session.file_added", map[string]any{
		"session_id": sessionID,
		"file_id":    rec.ID,
		"size_bytes": rec.SizeBytes,
		"mime_type":  rec.MimeType,
	})
	return rec, nil
}

// checkContent rejects bytes whose signature contradicts the extension.
func checkContent(head []byte, ext string) error {
	sniffed := http.DetectContentType(head)
	ok := true
	switch ext {
	case ".pdf":
		ok = sniffed == extract.MimePDF
	case ".docx", ".xlsx":
		ok = sniffed == "application/zip"
	case ".txt", ".md", ".csv":
		ok = strings.HasPrefix(sniffed, "text/")
	}
	if !ok {
		return apperr.New(apperr.ErrUnsupportedFormat, "file content (%s) does not match extension %s", sniffed, ext)
	}
	return nil
}

// RemoveFile deletes a file from the session and the object store.
func (r *Registry) RemoveFile(ctx context.Context, sessionID, fileID string) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return apperr.Validation("file id is required")
	}
	return r.WithLock(ctx, sessionID, func(ctx context.Context) error {
		rec, err := r.Repo.RemoveFile(ctx, sessionID, fileID, r.Now())
		if err != nil {
			return err
		}
		r.deleteObject(ctx, rec.StorageKey)
		return nil
	})
}

// SetFrameworks replaces the session's framework selection.
func (r *Registry) SetFrameworks(ctx context.Context, sessionID string, ids []string) (Session, error) {
	normalized, err := frameworks.Validate(ids)
	if err != nil {
		return Session{}, err
	}
	var out Session
	err = r.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := r.ensureLocked(ctx, sessionID)
		if err != nil {
			return err
		}
		s.SelectedFrameworks = normalized
		s.UpdatedAt = r.Now()
		if err := r.Repo.Update(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

// SetAssessmentMeta replaces the reviewer metadata.
func (r *Registry) SetAssessmentMeta(ctx context.Context, sessionID string, meta AssessmentMeta) (Session, error) {
	meta = AssessmentMeta{
		VendorName:   cleanMeta(meta.VendorName),
		ReviewedBy:   cleanMeta(meta.ReviewedBy),
		TicketNumber: cleanMeta(meta.TicketNumber),
	}
	var out Session
	err := r.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := r.ensureLocked(ctx, sessionID)
		if err != nil {
			return err
		}
		s.AssessmentMeta = meta
		s.UpdatedAt = r.Now()
		if err := r.Repo.Update(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func cleanMeta(v string) string {
	v = strings.TrimSpace(util.SanitizeText(v))
	v = strings.Join(strings.Fields(v), " ")
	if len(v) > maxMetaLen {
		v = v[:maxMetaLen]
	}
	return v
}

// Reset tears a session down: hooks first, then stored objects, then the record.
func (r *Registry) Reset(ctx context.Context, sessionID string) error {
	return r.WithLock(ctx, sessionID, func(ctx context.Context) error {
		return r.resetLocked(ctx, sessionID)
	})
}

func (r *Registry) resetLocked(ctx context.Context, sessionID string) error {
	r.hooksMu.RLock()
	hooks := append([]ResetHook(nil), r.resetHooks...)
	r.hooksMu.RUnlock()
	for _, h := range hooks {
		if err := h(ctx, sessionID); err != nil {
			return err
		}
	}

	s, err := r.Repo.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, f := range s.Files {
		r.deleteObject(ctx, f.StorageKey)
	}
	return r.Repo.Delete(ctx, sessionID)
}

// SweepExpired resets sessions idle longer than the TTL and returns how many went.
func (r *Registry) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if r.Limits.TTL <= 0 {
		return 0, nil
	}
	ids, err := r.Repo.ListIdleSince(ctx, now.Add(-r.Limits.TTL))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if err := r.Reset(ctx, id); err != nil {
			telemetry.Warn("session.expire_skipped", map[string]any{
				"session_id": id,
				"error":      err.Error(),
			})
			continue
		}
		removed++
	}
	if removed > 0 {
		metrics.IncSessionsExpired(removed)
		telemetry.Info("session.expired", map[string]any{"count": removed})
	}
	return removed, nil
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.SweepExpired(ctx, r.Now()); err != nil && ctx.Err() == nil {
				telemetry.Error("session.sweep_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

func (r *Registry) deleteObject(ctx context.Context, key string) {
	if key == "" {
		return
	}
	for _, k := range []string{key, key + ".extracted.txt"} {
		if err := r.Store.Delete(ctx, k); err != nil && !errors.Is(err, object.ErrNotFound) {
			telemetry.Warn("session.object_delete_failed", map[string]any{
				"key":   k,
				"error": err.Error(),
			})
		}
	}
}
