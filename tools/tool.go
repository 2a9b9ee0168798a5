// Package tools runs the tools a model asks for during a turn.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Argument parsing and validation internalized per tool
// - Registry implementation details hidden from consumers
package tools

import (
	"context"

	"github.com/richinex/llmbridge/llm"
)

// Tool is the interface that all tools must implement.
//
// Execute receives the raw JSON arguments the model produced and returns
// the output handed back to the model. Failures the model can act on (a
// non-zero exit, a timeout) belong in the output; the error return is
// reserved for arguments the tool cannot run at all.
type Tool interface {
	// Definition returns the schema advertised to the model.
	Definition() llm.ToolDefinition

	// Execute runs the tool with the given JSON arguments.
	Execute(ctx context.Context, arguments string) (string, error)
}
