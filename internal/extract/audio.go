package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// transcribeAudio sends the audio file straight to the transcription boundary.
func (e *Extractor) transcribeAudio(ctx context.Context, path string) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("extract: %s requires a transcriber, none configured", filepath.Base(path))
	}
	text, err := e.transcriber.Transcribe(ctx, path)
	if err != nil {
		return "", fmt.Errorf("extract: transcribe %s: %w", filepath.Base(path), err)
	}
	return text, nil
}

// transcribeVideo extracts the audio track with ffmpeg into a temporary wav
// file, transcribes it, and removes the temp file on every exit path.
func (e *Extractor) transcribeVideo(ctx context.Context, path string) (string, error) {
	if e.transcriber == nil {
		return "", fmt.Errorf("extract: %s requires a transcriber, none configured", filepath.Base(path))
	}

	tmp, err := os.CreateTemp("", "fridaykb-audio-*.wav")
	if err != nil {
		return "", fmt.Errorf("extract: create temp audio file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	// 16 kHz mono PCM keeps the transcription payload small without hurting
	// speech recognition quality.
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", path,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		tmpPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("extract: ffmpeg audio extraction for %s: %w: %s",
			filepath.Base(path), err, truncate(string(out), 512))
	}

	text, err := e.transcriber.Transcribe(ctx, tmpPath)
	if err != nil {
		return "", fmt.Errorf("extract: transcribe %s: %w", filepath.Base(path), err)
	}
	return text, nil
}

// truncate caps s at n bytes for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
