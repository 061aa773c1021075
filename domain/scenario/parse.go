package scenario

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseOptions controls document decoding
type ParseOptions struct {
	// Strict rejects keys the schema does not know
	Strict bool
}

// Parse decodes a YAML or JSON scenario document and validates it
func Parse(doc []byte, opts ParseOptions) (*Spec, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return nil, invalid("", "empty document")
	}

	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(opts.Strict)

	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("", "empty document")
		}
		return nil, invalid("document", "%v", err)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Marshal renders a spec as YAML. Parse(Marshal(s)) reproduces s.
func Marshal(spec *Spec) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
