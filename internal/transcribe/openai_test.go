package transcribe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fridaylabs/friday-kb/internal/rag"
)

// writeAudio drops a fake audio file into a temp dir.
func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talk.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o600); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func Test_Transcribe_MultipartUpload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header: %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field: %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file part missing: %v", err)
		} else {
			_ = f.Close()
			if hdr.Filename != "talk.wav" {
				t.Errorf("file name: %q", hdr.Filename)
			}
		}
		_, _ = w.Write([]byte(`{"text":"hello world"}`))
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(&Config{BaseURL: srv.URL, APIKey: "test-key"})
	got, err := tr.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "hello world" {
		t.Errorf("transcript: %q", got)
	}
}

func Test_Transcribe_APIErrorIsProviderUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(&Config{BaseURL: srv.URL, APIKey: "k"})
	_, err := tr.Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, rag.ErrProviderUnavailable) {
		t.Errorf("want ErrProviderUnavailable, got %v", err)
	}
}

func Test_NewFromEnv_NoKeyReturnsNil(t *testing.T) {
	t.Setenv("TRANSCRIBE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	if tr := NewFromEnv(); tr != nil {
		t.Error("want nil transcriber without API keys")
	}
}
