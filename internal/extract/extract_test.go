package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"vendorsec-backend/internal/shared/apperr"
	"vendorsec-backend/internal/shared/storage/object/local"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractTextFromBytes_ZipDocxNormalizes(t *testing.T) {
	data := buildZip(t, map[string]string{
		"word/document.xml": `<w:document xmlns:w="x"><w:body><w:p><w:r><w:t>Access reviews are quarterly.</w:t></w:r></w:p><w:p><w:r><w:t>MFA enforced.</w:t></w:r></w:p></w:body></w:document>`,
	})

	text, err := ExtractTextFromBytes(context.Background(), data, "application/zip", "policy.docx")
	if err != nil {
		t.Fatalf("expected docx to extract from zip mime, got error: %v", err)
	}
	if text != "Access reviews are quarterly.\nMFA enforced." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextFromBytes_XLSX(t *testing.T) {
	data := buildZip(t, map[string]string{
		"xl/workbook.xml":          `<workbook/>`,
		"xl/sharedStrings.xml":     `<sst><si><t>Control</t></si><si><t>Status</t></si><si><r><t>Encrypt</t></r><r><t>ion</t></r></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData><row><c t="s"><v>0</v></c><c t="s"><v>1</v></c></row><row><c t="s"><v>2</v></c><c><v>1</v></c></row></sheetData></worksheet>`,
	})

	text, err := ExtractTextFromBytes(context.Background(), data, "application/zip", "controls.xlsx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Control\tStatus\nEncryption\t1" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextFromBytes_RealZipRejected(t *testing.T) {
	data := buildZip(t, map[string]string{"notes.txt": "hello"})

	_, err := ExtractTextFromBytes(context.Background(), data, "application/zip", "notes.zip")
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if !strings.Contains(err.Error(), "unsupported mime type: application/zip") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExtractTextFromBytes_PlainAndMarkdown(t *testing.T) {
	text, err := ExtractTextFromBytes(context.Background(), []byte("\xEF\xBB\xBF# Security Policy\n"), "text/plain; charset=utf-8", "policy.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "# Security Policy" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestExtractTextFromBytes_LegacyExcelUnsupported(t *testing.T) {
	_, err := ExtractTextFromBytes(context.Background(), []byte{0xD0, 0xCF, 0x11, 0xE0}, "application/octet-stream", "old.xls")
	if !errors.Is(err, apperr.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestExtractTextFromBytes_CorruptPDF(t *testing.T) {
	_, err := ExtractTextFromBytes(context.Background(), []byte("%PDF-1.7 garbage"), "application/pdf", "report.pdf")
	if !errors.Is(err, apperr.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}

func TestExtractTextFromBytes_EmptyText(t *testing.T) {
	_, err := ExtractTextFromBytes(context.Background(), []byte("   \n"), "text/plain", "empty.txt")
	if !errors.Is(err, apperr.ErrExtraction) {
		t.Fatalf("expected extraction error for empty text, got %v", err)
	}
}

func TestExtractTextCachesDerivedCopy(t *testing.T) {
	store := local.New(t.TempDir())
	ctx := context.Background()
	if _, err := store.Put(ctx, "sessions/s1/f1_policy.txt", "text/plain", strings.NewReader("original")); err != nil {
		t.Fatalf("put: %v", err)
	}

	text, err := Extractor{Store: store}.Extract(ctx, "sessions/s1/f1_policy.txt", "text/plain", "policy.txt")
	if err != nil || text != "original" {
		t.Fatalf("unexpected result %q %v", text, err)
	}

	rc, err := store.Open(ctx, "sessions/s1/f1_policy.txt.extracted.txt")
	if err != nil {
		t.Fatalf("expected derived copy: %v", err)
	}
	derived, _ := io.ReadAll(rc)
	rc.Close()
	if string(derived) != "original" {
		t.Fatalf("unexpected derived copy %q", derived)
	}

	if err := store.Delete(ctx, "sessions/s1/f1_policy.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	text, err = ExtractText(ctx, store, "sessions/s1/f1_policy.txt", "text/plain", "policy.txt")
	if err != nil || text != "original" {
		t.Fatalf("expected cached text, got %q %v", text, err)
	}
}
