package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// Transcoder converts audio bytes from any supported container into Ogg.
type Transcoder interface {
	ToOgg(ctx context.Context, src []byte) ([]byte, error)
}

// FFmpeg transcodes through the ffmpeg binary, reading from stdin and
// writing to stdout. Output is bit-exact, so identical input bytes always
// produce identical Ogg bytes.
type FFmpeg struct {
	binaryPath string
}

// NewFFmpeg resolves the ffmpeg binary up front so a missing installation
// fails at wiring time instead of on the first task.
func NewFFmpeg() (*FFmpeg, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %v", err)
	}
	log.Debugf("using ffmpeg at %s", path)
	return &FFmpeg{binaryPath: path}, nil
}

func (f *FFmpeg) ToOgg(ctx context.Context, src []byte) ([]byte, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-map_metadata", "-1",
		"-vn",
		"-c:a", "libvorbis",
		"-flags", "+bitexact",
		"-fflags", "+bitexact",
		"-f", "ogg",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.binaryPath, args...)
	cmd.Stdin = bytes.NewReader(src)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}
