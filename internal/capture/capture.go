// Package capture provides the dry-run snapshot collaborator. Real screen
// capture is environment-specific and injected by the embedder; this
// implementation writes a placeholder image so the loop, the audit trail, and
// the multimodal attachment path stay exercisable end to end.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// PlaceholderCapturer implements schemas.Capturer by writing a small solid
// PNG at the requested path.
type PlaceholderCapturer struct {
	logger *zap.Logger
}

// NewPlaceholderCapturer creates the dry-run capturer.
func NewPlaceholderCapturer(logger *zap.Logger) *PlaceholderCapturer {
	return &PlaceholderCapturer{logger: logger.Named("capture.placeholder")}
}

// Capture writes the placeholder image and returns the path written.
func (c *PlaceholderCapturer) Capture(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	c.logger.Debug("Placeholder snapshot written", zap.String("path", path))
	return path, nil
}
