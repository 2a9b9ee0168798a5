package llm

// ShellToolName is the name of the built-in shell tool.
const ShellToolName = "shell"

// ShellToolDefinition returns the schema of the built-in shell tool that
// every provider advertises.
func ShellToolDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        ShellToolName,
		Description: "Runs a command and returns its output. The command is an argv array executed without a shell.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "The command to execute as an argv array.",
				},
				"workdir": map[string]any{
					"type":        "string",
					"description": "The working directory to execute the command in.",
				},
				"timeout": map[string]any{
					"type":        "number",
					"description": "The maximum time to wait for the command to complete, in milliseconds.",
				},
			},
			"required": []string{"command"},
		},
	}
}
