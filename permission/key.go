// Package permission implements the tiered authorization gate: blanket
// bypass, in-session grants, persisted grants, and interactive prompts,
// plus the shell-command prefix authorization algorithm.
package permission

import "fmt"

// Key derives the authorization identity for a tool call. Two calls with
// the same key are equivalent for authorization purposes even if other
// input fields differ.
//
// Shell commands key on the literal command; prefix grants use PrefixKey.
// File tools key on the target path. Tools with no recognizable resource
// key on the bare tool name.
func Key(toolName string, input map[string]any) string {
	if command, ok := input["command"].(string); ok {
		return fmt.Sprintf("%s(%s)", toolName, command)
	}
	if path, ok := input["path"].(string); ok {
		return fmt.Sprintf("%s(%s)", toolName, path)
	}
	if path, ok := input["notebook_path"].(string); ok {
		return fmt.Sprintf("%s(%s)", toolName, path)
	}
	return toolName
}

// PrefixKey is the authorization identity covering every command that
// shares a detected safe prefix (e.g. "npm install" covering any
// "npm install ...").
func PrefixKey(toolName, prefix string) string {
	return fmt.Sprintf("%s(%s:*)", toolName, prefix)
}
