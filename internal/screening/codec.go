package screening

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const sessionSchemaURL = "schema://screening-session.json"

//go:embed session.schema.json
var sessionSchemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func sessionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var def any
		if err := json.Unmarshal(sessionSchemaJSON, &def); err != nil {
			schemaErr = fmt.Errorf("parse session schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(sessionSchemaURL, def); err != nil {
			schemaErr = fmt.Errorf("add session schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(sessionSchemaURL)
	})
	return compiledSchema, schemaErr
}

// Encode serializes a session for storage. Sessions that break their own
// invariants are refused.
func Encode(s *Session) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Decode parses and validates a stored session. Any failure is reported as
// ErrMalformedState; nothing is repaired.
func Decode(data []byte) (*Session, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}

	sch, err := sessionSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, malformed("schema validation failed: %v", err)
	}

	var s Session
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, malformed("decode: %v", err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, malformed("%v", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
