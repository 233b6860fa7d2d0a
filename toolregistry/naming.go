package toolregistry

import (
	"regexp"
	"strings"
)

// namePattern is the tool naming contract of §6: a lowercase server
// namespace, "__", then a lowercase tool name, both snake_case.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*__[a-z][a-z0-9_]*$`)

// DispatchPrefix identifies a tool whose Execute dispatches a workflow
// (§3 "A distinguished prefix dispatch_workflow_").
const DispatchPrefix = "dispatch_workflow_"

// IsDispatchTool reports whether name is a workflow-dispatch tool.
func IsDispatchTool(name string) bool { return strings.HasPrefix(name, DispatchPrefix) }

// Canonicalize converts an arbitrary identifier (hyphenated or camelCase)
// into the snake_case form §6 requires before it is namespaced.
func Canonicalize(s string) string {
	s = strings.ReplaceAll(s, "-", "_")

	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				prev := runes[i-1]
				isNewWord := prev != '_' && !(prev >= 'A' && prev <= 'Z')
				if isNewWord {
					b.WriteByte('_')
				}
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Namespace builds the final "server__tool" name, canonicalizing both
// halves independently (§6 "Canonicalization converts hyphens and
// camelCase to snake_case before namespacing").
func Namespace(server, tool string) string {
	return Canonicalize(server) + "__" + Canonicalize(tool)
}

// ValidName reports whether name already satisfies the wire naming
// contract, without canonicalizing it.
func ValidName(name string) bool { return namePattern.MatchString(name) }
