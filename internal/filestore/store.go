// Package filestore keeps issue attachments on local disk or in an S3 compatible bucket.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// ErrNotExist is returned by Remove when ref was already gone.
var ErrNotExist = errors.New("filestore: attachment does not exist")

// Store persists attachments and hands back opaque references.
type Store interface {
	Save(ctx context.Context, up Upload) (string, error)
	URL(ctx context.Context, ref string) (string, error)
	// Remove deletes ref. A ref that is already absent yields ErrNotExist.
	Remove(ctx context.Context, ref string) error
}

// RemoveIfExists deletes ref and treats an absent file as success.
func RemoveIfExists(ctx context.Context, store Store, ref string) error {
	if err := store.Remove(ctx, ref); err != nil && !errors.Is(err, ErrNotExist) {
		return err
	}
	return nil
}

// Upload is a sniffed attachment ready to be stored.
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Extension   string
	Body        io.Reader
}

// sniffLen matches the default read limit of mimetype.
const sniffLen = 3072

var allowed = []string{
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"text/csv",
	"application/zip",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Sniff inspects the head of body and rejects uploads that are too large or of a type
// outside the allow-list. The returned Upload replays the sniffed bytes.
func Sniff(filename string, size int64, body io.Reader, maxBytes int64) (Upload, error) {
	if maxBytes > 0 && size > maxBytes {
		return Upload{}, shared.NewValidationError(shared.FieldError{
			Field:   "attachment",
			Message: fmt.Sprintf("attachment must be at most %d bytes", maxBytes),
		})
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return Upload{}, fmt.Errorf("read attachment: %w", err)
	}
	head = head[:n]
	mt := mimetype.Detect(head)
	if !mimetype.EqualsAny(mt.String(), allowed...) {
		return Upload{}, shared.NewValidationError(shared.FieldError{
			Field:   "attachment",
			Message: "attachment type " + mt.String() + " is not allowed",
		})
	}
	return Upload{
		Filename:    filename,
		Size:        size,
		ContentType: mt.String(),
		Extension:   mt.Extension(),
		Body:        io.MultiReader(bytes.NewReader(head), body),
	}, nil
}

func objectName(ext string) string {
	return uuid.NewString() + ext
}

// validRef rejects references that could escape the storage root.
func validRef(ref string) bool {
	return ref != "" && !strings.Contains(ref, "..") && !strings.ContainsAny(ref, `/\`)
}
