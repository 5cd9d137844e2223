// Package patterns provides the embedded built-in recognizer definitions.
// The YAML format is consumed by internal/detect's recognizer registry;
// user-supplied files in the same format are merged over these defaults
// by recognizer name.
package patterns

import _ "embed"

//go:embed pii_builtin.yaml
var piiBuiltinYAML []byte

// PIIBuiltinYAML returns the embedded default PII recognizer definitions.
func PIIBuiltinYAML() []byte { return piiBuiltinYAML }
