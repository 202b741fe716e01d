package extract

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// fakeTranscriber returns a fixed transcript and records the path it was given.
type fakeTranscriber struct {
	transcript string
	gotPath    string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	f.gotPath = path
	return f.transcript, nil
}

// fakeOCR returns fixed lines.
type fakeOCR struct {
	lines []string
}

func (f *fakeOCR) DetectLines(_ context.Context, _ []byte) ([]string, error) {
	return f.lines, nil
}

// writeFile creates a file under a test temp dir and returns its path.
func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func Test_KindOf_ClosedExtensionTable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want Kind
	}{
		{"talk.mp3", KindAudio},
		{"TALK.WAV", KindAudio},
		{"clip.mp4", KindVideo},
		{"scan.jpeg", KindImage},
		{"report.pdf", KindPDF},
		{"memo.docx", KindDocx},
		{"data.csv", KindTabular},
		{"sheet.xlsx", KindTabular},
		{"notes.txt", KindText},
		{"script.py", KindText},
		{"archive.xyz", KindUnknown},
		{"noextension", KindUnknown},
	}
	for _, tc := range cases {
		if got := KindOf(tc.path); got != tc.want {
			t.Errorf("KindOf(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func Test_Extract_PlainTextVerbatim(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "notes.txt", []byte("line one\nline two"))

	res, err := New(nil, nil).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Text != "line one\nline two" {
		t.Errorf("text: %q", res.Text)
	}
	if res.ImageBase64 != "" {
		t.Errorf("unexpected image payload for text file")
	}
}

func Test_Extract_ZeroByteTextFile(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "empty.txt", nil)

	res, err := New(nil, nil).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Text != "" {
		t.Errorf("want empty text, got %q", res.Text)
	}
}

func Test_Extract_UnsupportedExtension(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "blob.xyz", []byte("data"))

	_, err := New(nil, nil).Extract(context.Background(), path)
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Errorf("want ErrUnsupportedFileType, got %v", err)
	}
}

func Test_Extract_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := New(nil, nil).Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))
	if err == nil {
		t.Fatal("want error for missing file, got nil")
	}
}

func Test_Extract_AudioUsesTranscriber(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "talk.mp3", []byte{0xff, 0xfb})
	tr := &fakeTranscriber{transcript: "hello from the recording"}

	res, err := New(tr, nil).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Text != "hello from the recording" {
		t.Errorf("text: %q", res.Text)
	}
	if tr.gotPath != path {
		t.Errorf("transcriber got %q, want %q", tr.gotPath, path)
	}
}

func Test_Extract_AudioWithoutTranscriberFails(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "talk.wav", []byte("RIFF"))

	if _, err := New(nil, nil).Extract(context.Background(), path); err == nil {
		t.Fatal("want error when no transcriber configured, got nil")
	}
}

func Test_Extract_ImageOCRAndPayload(t *testing.T) {
	t.Parallel()
	raw := []byte{0x89, 'P', 'N', 'G'}
	path := writeFile(t, "scan.png", raw)
	ocr := &fakeOCR{lines: []string{"INVOICE", "Total: 42"}}

	res, err := New(nil, ocr).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Text != "INVOICE\nTotal: 42" {
		t.Errorf("ocr text: %q", res.Text)
	}
	if res.ImageBase64 != base64.StdEncoding.EncodeToString(raw) {
		t.Errorf("image payload mismatch")
	}
}

func Test_Extract_ImageWithoutOCRFails(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "scan.jpg", []byte{0xff, 0xd8})

	if _, err := New(nil, nil).Extract(context.Background(), path); err == nil {
		t.Fatal("want error when no OCR configured, got nil")
	}
}

// writeDocx builds a minimal docx archive with the given document.xml body.
func writeDocx(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create docx: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document.xml: %v", err)
	}
	doc := `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("write document.xml: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func Test_Extract_DocxParagraphsAndTables(t *testing.T) {
	t.Parallel()
	path := writeDocx(t, "memo.docx",
		`<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>`+
			`<w:tbl><w:tr>`+
			`<w:tc><w:p><w:r><w:t>name</w:t></w:r></w:p></w:tc>`+
			`<w:tc><w:p><w:r><w:t>value</w:t></w:r></w:p></w:tc>`+
			`</w:tr></w:tbl>`)

	res, err := New(nil, nil).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "First paragraph.\nSecond paragraph.\nname | value"
	if res.Text != want {
		t.Errorf("docx text:\n got %q\nwant %q", res.Text, want)
	}
}

func Test_Extract_CSVFixedWidth(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "data.csv", []byte("name,qty\napples,12\npear,3\n"))

	res, err := New(nil, nil).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	lines := strings.Split(res.Text, "\n")
	if len(lines) != 3 {
		t.Fatalf("want 3 lines, got %d: %q", len(lines), res.Text)
	}
	if lines[0] != "name    qty" {
		t.Errorf("header not fixed-width: %q", lines[0])
	}
	if lines[1] != "apples  12" {
		t.Errorf("row not fixed-width: %q", lines[1])
	}
}

func Test_Extract_XLSXRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sheet.xlsx")

	f := excelize.NewFile()
	if err := f.SetSheetRow("Sheet1", "A1", &[]any{"city", "pop"}); err != nil {
		t.Fatalf("set header: %v", err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]any{"Oslo", 700000}); err != nil {
		t.Fatalf("set row: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save xlsx: %v", err)
	}
	_ = f.Close()

	res, err := New(nil, nil).Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(res.Text, "city") || !strings.Contains(res.Text, "Oslo") {
		t.Errorf("xlsx text missing cells: %q", res.Text)
	}
}
