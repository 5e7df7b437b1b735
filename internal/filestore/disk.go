package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

func init() {
	ensureMimeType(".csv", "text/csv; charset=utf-8")
	ensureMimeType(".docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	ensureMimeType(".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("filestore: failed to register MIME type for %s: %v", ext, err)
	}
}

// Disk stores attachments in a local directory served under a URL prefix.
type Disk struct {
	dir     string
	baseURL string
}

// NewDisk creates dir when missing.
func NewDisk(dir, baseURL string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the storage root.
func (d *Disk) Dir() string { return d.dir }

// Save writes the upload under a random name.
func (d *Disk) Save(_ context.Context, up Upload) (string, error) {
	name := objectName(up.Extension)
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	if _, err := io.Copy(f, up.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write attachment: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close attachment: %w", err)
	}
	return name, nil
}

// URL returns the public path of ref.
func (d *Disk) URL(_ context.Context, ref string) (string, error) {
	if !validRef(ref) {
		return "", fmt.Errorf("invalid attachment reference %q", ref)
	}
	return d.baseURL + "/" + ref, nil
}

// Remove deletes ref. A missing file yields ErrNotExist.
func (d *Disk) Remove(_ context.Context, ref string) error {
	if !validRef(ref) {
		return fmt.Errorf("invalid attachment reference %q", ref)
	}
	err := os.Remove(filepath.Join(d.dir, ref))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("remove %s: %w", ref, ErrNotExist)
	default:
		return fmt.Errorf("remove attachment: %w", err)
	}
}
