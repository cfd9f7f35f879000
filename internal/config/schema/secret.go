package schema

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Secret holds a sensitive value (connect tokens, JWT secrets, Redis passwords).
// It is masked whenever it is printed or serialized; use Value for the real string.
type Secret string

// String returns the masked form: first and last two characters for long
// values, "****" for short ones
func (s Secret) String() string {
	switch {
	case len(s) == 0:
		return ""
	case len(s) <= 4:
		return "****"
	default:
		return string(s[:2]) + "****" + string(s[len(s)-2:])
	}
}

// Value returns the unmasked secret
func (s Secret) Value() string {
	return string(s)
}

// IsEmpty reports whether no secret is configured
func (s Secret) IsEmpty() bool {
	return len(s) == 0
}

// MarshalJSON emits the masked form
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON reads the plain value
func (s *Secret) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Secret(str)
	return nil
}

// MarshalYAML emits the masked form
func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML reads the plain value
func (s *Secret) UnmarshalYAML(node *yaml.Node) error {
	*s = Secret(node.Value)
	return nil
}
