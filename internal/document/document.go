// Package document loads contract files and prepares them for ingestion.
package document

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Supported MIME types.
const (
	MIMEDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEPDF  = "application/pdf"
)

// DefaultMaxSize is the upload limit when none is configured.
const DefaultMaxSize = 25 << 20

var (
	// ErrNotFound is returned when the contract file does not exist.
	ErrNotFound = errors.New("file-not-found")

	// ErrUnsupportedExtension is returned for anything but .pdf and .docx.
	ErrUnsupportedExtension = errors.New("unsupported-extension")

	// ErrTooLarge is returned when a document exceeds the size limit.
	ErrTooLarge = errors.New("document too large")

	// ErrTextUnavailable is returned when plain text cannot be extracted locally.
	ErrTextUnavailable = errors.New("document text unavailable")
)

// ExtensionError carries the offending extension and matches
// ErrUnsupportedExtension with errors.Is.
type ExtensionError struct {
	Ext string
}

func (e *ExtensionError) Error() string {
	return "unsupported-extension:" + e.Ext
}

func (e *ExtensionError) Is(target error) bool {
	return target == ErrUnsupportedExtension
}

var mimeTypes = map[string]string{
	".docx": MIMEDocx,
	".pdf":  MIMEPDF,
}

// Document is a contract file held in memory.
type Document struct {
	Name     string // base file name
	Path     string // empty for uploads
	MIMEType string
	Data     []byte
}

// Loader reads documents with a size limit.
type Loader struct {
	MaxSize int64
}

// NewLoader returns a loader with the given limit in megabytes.
// Zero or negative uses DefaultMaxSize.
func NewLoader(maxSizeMB int) *Loader {
	if maxSizeMB <= 0 {
		return &Loader{MaxSize: DefaultMaxSize}
	}
	return &Loader{MaxSize: int64(maxSizeMB) << 20}
}

// Load reads the contract at path.
func Load(path string) (*Document, error) {
	return NewLoader(0).Load(path)
}

// FromBytes builds a document from uploaded bytes.
func FromBytes(name string, data []byte) (*Document, error) {
	return NewLoader(0).FromBytes(name, data)
}

// Load reads the contract at path. Existence is checked before the
// extension, so a missing .txt reports file-not-found.
func (l *Loader) Load(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	mime, err := MIMEType(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > l.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), l.MaxSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return &Document{
		Name:     filepath.Base(path),
		Path:     path,
		MIMEType: mime,
		Data:     data,
	}, nil
}

// FromBytes builds a document from uploaded bytes.
func (l *Loader) FromBytes(name string, data []byte) (*Document, error) {
	name = filepath.Base(name)
	mime, err := MIMEType(name)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), l.MaxSize)
	}
	return &Document{Name: name, MIMEType: mime, Data: data}, nil
}

// MIMEType resolves the MIME type from the file extension.
func MIMEType(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mime, ok := mimeTypes[ext]
	if !ok {
		return "", &ExtensionError{Ext: ext}
	}
	return mime, nil
}

// Supported reports whether name has a supported extension.
func Supported(name string) bool {
	_, err := MIMEType(name)
	return err == nil
}

// Format is the extension without the leading dot, e.g. "pdf".
func (d *Document) Format() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name)), ".")
}

// Size is the document length in bytes.
func (d *Document) Size() int64 {
	return int64(len(d.Data))
}

// Encoded returns the content as sent to the ingest-contract function:
// a DOCX_FILE_BASE64: or PDF_FILE_BASE64: prefix followed by standard base64.
func (d *Document) Encoded() string {
	prefix := "PDF_FILE_BASE64:"
	if d.MIMEType == MIMEDocx {
		prefix = "DOCX_FILE_BASE64:"
	}
	return prefix + base64.StdEncoding.EncodeToString(d.Data)
}

// StoragePath is where the upload lives in the storage bucket.
func (d *Document) StoragePath(ingestionID string) string {
	return "manual/" + ingestionID + "/" + d.Name
}

// OutputName derives the analysis file name: the stem with spaces replaced
// by underscores, suffixed with -analysis.json.
func OutputName(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(stem, " ", "_") + "-analysis.json"
}
