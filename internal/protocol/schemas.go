package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://voxeledit.ai/schemas/"

var schemaFiles = map[string]string{
	TypeHello:        "hello.schema.json",
	TypeWelcome:      "welcome.schema.json",
	TypeSelection:    "selection.schema.json",
	TypeSelectionAck: "selection_ack.schema.json",
	TypeAction:       "action.schema.json",
	TypeUndo:         "undo.schema.json",
	TypeEditAck:      "edit_ack.schema.json",
	TypeStatus:       "status.schema.json",
	TypeClientStatus: "client_status.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		entries, err := fs.Glob(schemaFS, "schemas/*.schema.json")
		if err != nil {
			schemasErr = err
			return
		}
		for _, p := range entries {
			b, err := schemaFS.ReadFile(p)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBaseURL+strings.TrimPrefix(p, "schemas/"), bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", p, err)
				return
			}
		}
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, name := range schemaFiles {
			s, err := c.Compile(schemaBaseURL + name)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks raw against the schema registered for msgType. Types
// without a schema pass.
func Validate(msgType string, raw []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := all[msgType]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
