package parser

import (
	"fmt"
	"time"

	"github.com/Esoteriker/openTree/internal/common/config"
)

// Provide selects the parser backend named by cfg.Parser.Backend.
func Provide(cfg *config.Config) (Backend, error) {
	switch cfg.Parser.Backend {
	case "transformer":
		if cfg.Parser.TransformerURL == "" {
			return nil, fmt.Errorf("parser: transformer backend requires parser.transformerUrl")
		}
		timeout := time.Duration(cfg.Pipeline.DownstreamTimeoutMS) * time.Millisecond
		return NewTransformerBackend(cfg.Parser.TransformerURL, timeout, NewHeuristicBackend()), nil
	case "heuristic", "":
		return NewHeuristicBackend(), nil
	default:
		return nil, fmt.Errorf("parser: unknown backend %q", cfg.Parser.Backend)
	}
}
