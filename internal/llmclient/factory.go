// -- internal/llmclient/factory.go --
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/config"
)

// NewClient is a factory function that creates an LLMClient based on the
// configured provider.
func NewClient(cfg config.EngineConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderMiniMax:
		return NewMiniMaxClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported engine provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderMiniMax)
	}
}
