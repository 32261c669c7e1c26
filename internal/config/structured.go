package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"capsunlocked/internal/keys"
	"capsunlocked/internal/mapping"
)

//go:embed keymap.schema.json
var keymapSchemaJSON []byte

const keymapSchemaURL = "https://capsunlocked.invalid/schema/keymap-v1.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func keymapSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(keymapSchemaURL, bytes.NewReader(keymapSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add keymap schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(keymapSchemaURL)
	})
	return schema, schemaErr
}

// ValidateKeymapJSON checks a JSON keymap document against the embedded schema.
func ValidateKeymapJSON(data []byte) error {
	s, err := keymapSchema()
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("keymap schema: %w", err)
	}
	return nil
}

// structuredKeymap is the TOML/JSON/YAML keymap document.
type structuredKeymap struct {
	// Modifiers is a pointer so an explicit empty list still enables validation.
	Modifiers *[]string       `toml:"modifiers" json:"modifiers" yaml:"modifiers"`
	Map       []structuredRow `toml:"map" json:"map" yaml:"map"`
}

type structuredRow struct {
	OS     string   `toml:"os" json:"os" yaml:"os"`
	App    string   `toml:"app" json:"app" yaml:"app"`
	Mods   []string `toml:"mods" json:"mods" yaml:"mods"`
	Key    string   `toml:"key" json:"key" yaml:"key"`
	Action string   `toml:"action" json:"action" yaml:"action"`
}

// ParseStructured decodes a TOML, JSON or YAML keymap. ext selects the
// decoder. When validate is set JSON input is checked against the schema.
func ParseStructured(data []byte, ext string, goos string, validate bool) (*Keymap, error) {
	ext = strings.ToLower(ext)
	if validate && ext == ".json" {
		if err := ValidateKeymapJSON(data); err != nil {
			return nil, err
		}
	}

	var doc structuredKeymap
	if err := decodeByExt("keymap"+ext, data, &doc); err != nil {
		return nil, err
	}

	km := &Keymap{
		Table:     mapping.Table{},
		Modifiers: mapping.NewRegistry(),
	}
	if doc.Modifiers != nil {
		km.HasModifiersSection = true
		for i, m := range *doc.Modifiers {
			n, err := keys.NormalizeKey(m)
			if err != nil {
				return nil, ValidationErrors{{Field: fmt.Sprintf("modifiers[%d]", i), Message: "empty modifier token"}}
			}
			km.Modifiers[n] = struct{}{}
		}
	}

	var rows []rowRef
	var errs ValidationErrors
	for i, r := range doc.Map {
		field := fmt.Sprintf("map[%d]", i)
		if r.OS != "" {
			target, ok := osTokens[strings.ToUpper(strings.TrimSpace(r.OS))]
			if !ok {
				errs = append(errs, ValidationError{Field: field + ".os", Message: fmt.Sprintf("unknown OS %q", r.OS)})
				continue
			}
			if target != goos {
				continue
			}
		}

		src, err := keys.NormalizeKey(r.Key)
		if err != nil {
			errs = append(errs, ValidationError{Field: field + ".key", Message: "empty key"})
			continue
		}
		tgt, err := keys.NormalizeTarget(r.Action)
		if err != nil {
			errs = append(errs, ValidationError{Field: field + ".action", Message: "empty action"})
			continue
		}
		var mods []string
		for _, m := range r.Mods {
			n, err := keys.NormalizeKey(m)
			if err != nil {
				errs = append(errs, ValidationError{Field: field + ".mods", Message: "empty modifier token"})
				continue
			}
			mods = append(mods, n)
		}
		mods = keys.ModifierList(mods)
		if len(mods) == 0 {
			mods = nil
		}

		app := keys.NormalizeApp(r.App)
		def := mapping.Definition{Source: src, Target: tgt, RequiredMods: mods}
		km.Table.Add(app, def)
		rows = append(rows, rowRef{app: app, def: def, pos: i})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return finish(km, rows)
}
