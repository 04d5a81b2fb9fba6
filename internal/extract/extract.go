package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"vendorsec-backend/internal/shared/apperr"
	"vendorsec-backend/internal/shared/storage/object"
)

const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeXLS      = "application/vnd.ms-excel"
	MimeCSV      = "text/csv"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"

	extractedSuffix = ".extracted.txt"
)

// Extractor turns stored documents into plain text.
type Extractor struct {
	Store object.ObjectStore
}

// Extract implements the orchestrator's extraction collaborator.
func (e Extractor) Extract(ctx context.Context, storageKey, mimeType, fileName string) (string, error) {
	return ExtractText(ctx, e.Store, storageKey, mimeType, fileName)
}

// ExtractText pulls text from a stored object and persists a derived .extracted.txt copy.
// A previously derived copy is reused.
func ExtractText(ctx context.Context, store object.ObjectStore, fileKey string, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if cached, ok := readCached(ctx, store, fileKey+extractedSuffix); ok {
		return cached, nil
	}

	body, err := store.Open(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: %w", fileKey, mimeType, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s mime=%s: read: %w", fileKey, mimeType, err)
	}

	text, err := ExtractTextFromBytes(ctx, raw, mimeType, fileName)
	if err != nil {
		return "", err
	}

	if _, err := store.Put(ctx, fileKey+extractedSuffix, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		return "", fmt.Errorf("extract text key=%s: save derived copy: %w", fileKey, err)
	}
	return text, nil
}

// ExtractTextFromBytes extracts text from an in-memory payload. Unknown types
// fail with apperr.ErrUnsupportedFormat, parser failures with apperr.ErrExtraction.
func ExtractTextFromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized := NormalizeMimeType(mimeType, fileName, data)

	var (
		text string
		err  error
	)
	switch normalized {
	case MimePDF:
		text, err = extractPDF(data)
	case MimeDOCX:
		text, err = extractDOCX(data)
	case MimeXLSX:
		text, err = extractXLSX(data)
	case MimeText, MimeMarkdown, MimeCSV:
		text, err = extractPlain(data)
	default:
		return "", apperr.New(apperr.ErrUnsupportedFormat, "unsupported mime type: %s (%s)", normalized, fileName)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.ErrExtraction, fmt.Errorf("extract %s: %w", fileName, err))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.New(apperr.ErrExtraction, "extract %s: no extractable text", fileName)
	}
	return text, nil
}

func readCached(ctx context.Context, store object.ObjectStore, key string) (string, bool) {
	rc, err := store.Open(ctx, key)
	if err != nil {
		return "", false
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}

func extractPlain(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	return string(data), nil
}

func extractPDF(data []byte) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	raw, err := readZipEntry(data, "word/document.xml")
	if err != nil {
		return "", err
	}
	return stripDocxXML(string(raw)), nil
}

func readZipEntry(data []byte, name string) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty archive")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not found", name)
}

// NormalizeMimeType reconciles a sniffed or declared MIME type with the file
// extension. Sniffers report OOXML as application/zip and text formats as
// text/plain, so the archive layout and extension decide.
func NormalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	ext := strings.ToLower(filepath.Ext(fileName))

	switch clean {
	case "application/zip", "application/octet-stream", "":
		if mapped := mapOOXMLFromZip(data); mapped != "" {
			return mapped
		}
		if clean == "application/zip" {
			return clean
		}
	case MimeText:
		switch ext {
		case ".md", ".markdown":
			return MimeMarkdown
		case ".csv":
			return MimeCSV
		}
		return clean
	default:
		return clean
	}

	switch ext {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	case ".xlsx":
		return MimeXLSX
	case ".xls":
		return MimeXLS
	case ".csv":
		return MimeCSV
	case ".md":
		return MimeMarkdown
	case ".txt":
		return MimeText
	}
	return clean
}

func mapOOXMLFromZip(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		switch strings.ReplaceAll(f.Name, "\\", "/") {
		case "word/document.xml":
			return MimeDOCX
		case "xl/workbook.xml":
			return MimeXLSX
		case "ppt/presentation.xml":
			return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
		}
	}
	return ""
}
