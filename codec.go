package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Codec decodes the raw payloads a Feed receives from its Watcher.
// Implement this interface for formats such as TOML or protobuf.
type Codec interface {
	// Unmarshal decodes data into v.
	Unmarshal(data []byte, v any) error

	// ContentType returns the MIME type, reported in Feed signals.
	ContentType() string
}

// JSONCodec decodes JSON payloads with encoding/json. It is the Feed default.
//
// Errors are prefixed with the content type so a Feed's LastError names the
// format that failed.
type JSONCodec struct {
	// Strict rejects object keys that do not map to a field of the target
	// and any data after the first JSON value.
	Strict bool
}

func (c JSONCodec) Unmarshal(data []byte, v any) error {
	if !c.Strict {
		return c.wrap(json.Unmarshal(data, v))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return c.wrap(err)
	}
	if dec.More() {
		return c.wrap(errors.New("unexpected data after top-level value"))
	}
	return nil
}

func (JSONCodec) ContentType() string {
	return "application/json"
}

func (c JSONCodec) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", c.ContentType(), err)
}

// YAMLCodec decodes YAML payloads with gopkg.in/yaml.v3.
type YAMLCodec struct {
	// Strict rejects mapping keys that do not map to a field of the target.
	Strict bool
}

func (c YAMLCodec) Unmarshal(data []byte, v any) error {
	if !c.Strict {
		return c.wrap(yaml.Unmarshal(data, v))
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document decodes to nothing, as with yaml.Unmarshal.
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return c.wrap(err)
	}
	return nil
}

func (YAMLCodec) ContentType() string {
	return "application/x-yaml"
}

func (c YAMLCodec) wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", c.ContentType(), err)
}

var (
	_ Codec = JSONCodec{}
	_ Codec = YAMLCodec{}
)
