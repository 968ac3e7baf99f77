// Package upload validates and stores multipart file uploads. Ingestion is a
// pure function of the submitted files and an explicit policy; partial
// success is the normal outcome, not an error.
package upload

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"routier/internal/platform/metrics"
)

// PublicPrefix is the fixed path under which stored files are exposed; the
// public name is never derived from caller input.
const PublicPrefix = "/api/uploads"

// Policy is the storage contract for one form field.
type Policy struct {
	// Category names the per-business-category directory (vehicules,
	// contraventions, ...).
	Category string
	// AllowedExts, when non-empty, is the lower-cased extension allow-list
	// (without dots).
	AllowedExts []string
	// MaxBytes caps a single file; 0 means no cap.
	MaxBytes int64
}

// File describes one accepted, stored upload.
type File struct {
	OriginalName string
	StoredName   string
	PublicPath   string
	Size         int64
	Ext          string
}

// Ingestor writes accepted uploads under a root directory.
type Ingestor struct {
	root    string
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewIngestor(root string, log *slog.Logger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{root: root, log: log, metrics: m}
}

// Ingest stores every file under the field that passes the policy, in order:
// the upload opened cleanly, size within cap, extension in the allow-list.
// A failing file is skipped, logged and counted, never an error for the
// batch. Only an unusable sink (mkdir or copy failure) raises.
//
// A *multipart.FileHeader can only originate from this request's parsed
// form, so the stored source is structurally confined to this upload.
func (ing *Ingestor) Ingest(fhs []*multipart.FileHeader, pol Policy) ([]File, error) {
	if len(fhs) == 0 {
		return nil, nil
	}

	dir := filepath.Join(ing.root, pol.Category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory %s: %w", dir, err)
	}

	var accepted []File
	for _, fh := range fhs {
		file, ok, err := ing.store(fh, pol, dir)
		if err != nil {
			return accepted, err
		}
		if !ok {
			ing.metrics.UploadsRejected.Inc()
			continue
		}
		ing.metrics.UploadsAccepted.Inc()
		accepted = append(accepted, file)
	}
	return accepted, nil
}

// store validates one file and writes it under a fresh random token. The
// bool result distinguishes a policy skip from a sink failure.
func (ing *Ingestor) store(fh *multipart.FileHeader, pol Policy, dir string) (File, bool, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fh.Filename), "."))

	if pol.MaxBytes > 0 && fh.Size > pol.MaxBytes {
		ing.log.Debug("upload skipped: exceeds size cap",
			"file", fh.Filename, "size", fh.Size, "max", pol.MaxBytes)
		return File{}, false, nil
	}
	if len(pol.AllowedExts) > 0 && !slices.Contains(pol.AllowedExts, ext) {
		ing.log.Debug("upload skipped: extension not allowed",
			"file", fh.Filename, "ext", ext)
		return File{}, false, nil
	}

	src, err := fh.Open()
	if err != nil {
		// Transport-level failure of this one file; the batch continues.
		ing.log.Warn("upload skipped: unreadable part", "file", fh.Filename, "error", err)
		return File{}, false, nil
	}
	defer src.Close()

	stored := uuid.NewString()
	if ext != "" {
		stored += "." + ext
	}

	dst, err := os.Create(filepath.Join(dir, stored))
	if err != nil {
		return File{}, false, fmt.Errorf("create stored file: %w", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		_ = os.Remove(dst.Name())
		return File{}, false, fmt.Errorf("write stored file: %w", err)
	}

	return File{
		OriginalName: fh.Filename,
		StoredName:   stored,
		PublicPath:   PublicPrefix + "/" + pol.Category + "/" + stored,
		Size:         written,
		Ext:          ext,
	}, true, nil
}

// Remove deletes a stored file given its public path. Used by rollback
// cleanup; failures are the caller's to log, not to propagate.
func (ing *Ingestor) Remove(publicPath string) error {
	rel, ok := strings.CutPrefix(publicPath, PublicPrefix+"/")
	if !ok {
		return fmt.Errorf("not a managed upload path: %s", publicPath)
	}
	// The stored name is a generated token; reject anything that walks out
	// of the category directory.
	rel = filepath.Clean(rel)
	if strings.Contains(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("refusing suspicious upload path: %s", publicPath)
	}
	return os.Remove(filepath.Join(ing.root, rel))
}
