// Package parser extracts concepts, relations, coreferences, and knowledge
// gaps from a turn plus its history. Two backends share one contract:
// Heuristic (regex-based, always available) and Transformer (remote
// inference with heuristic fallback).
package parser

import (
	"context"

	"github.com/Esoteriker/openTree/internal/domain"
)

// Backend is the Parser service's public contract.
type Backend interface {
	ParseTurn(ctx context.Context, req domain.ParseTurnRequest) (domain.ParseResult, error)
}
