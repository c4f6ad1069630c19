package sfgrotate

import _ "embed"

// DefaultConfig contains the annotated sfg.yml example.
//
//go:embed sfg.yml.example
var DefaultConfig []byte

// ConfigTemplate returns a safe copy of the annotated configuration example.
func ConfigTemplate() []byte {
	buf := make([]byte, len(DefaultConfig))
	copy(buf, DefaultConfig)
	return buf
}
