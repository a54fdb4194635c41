package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SecretFile is one destination-name/content pair in a deployment's
// secret-file list.
type SecretFile struct {
	Name    string
	Content string
}

// SecretFiles is an ordered mapping of destination name to content.
// Deployment.SecretFiles uses this instead of a plain Go map because
// spec.md's invariants require iteration order to be preserved across
// reads, writes, and edits (positional reconciliation depends on it), and
// a Go map has no stable iteration order.
type SecretFiles []SecretFile

// Get returns the content for name and whether it was present.
func (s SecretFiles) Get(name string) (string, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Content, true
		}
	}
	return "", false
}

// Names returns the ordered destination names.
func (s SecretFiles) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Clone returns an independent copy preserving order.
func (s SecretFiles) Clone() SecretFiles {
	cp := make(SecretFiles, len(s))
	copy(cp, s)
	return cp
}

// MarshalJSON renders the ordered mapping as a JSON object, preserving
// insertion order (encoding/json would otherwise sort map keys
// alphabetically and lose it).
func (s SecretFiles) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Content)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object back into an ordered mapping,
// preserving the key order as it appears in the source document by
// token-scanning rather than decoding into a Go map.
func (s *SecretFiles) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("schema: secret_files must be a JSON object")
	}

	out := SecretFiles{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("schema: secret_files keys must be strings")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, SecretFile{Name: key, Content: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
