package llmutil

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
)

// LoadImageAttachment reads a snapshot for multimodal attachment. A missing
// or unreadable file degrades to nil (text-only request) rather than failing
// the surrounding call.
func LoadImageAttachment(path string, logger *zap.Logger) *schemas.ImageAttachment {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Snapshot unreadable; proceeding text-only.", zap.String("path", path), zap.Error(err))
		return nil
	}
	mime := "image/png"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".jpg" || ext == ".jpeg" {
		mime = "image/jpeg"
	}
	return &schemas.ImageAttachment{MIMEType: mime, Data: data}
}
