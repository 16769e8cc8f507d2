package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/invopop/jsonschema"

	"microarena/server"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{DoNotReference: true}
}

func reflectInline(r *jsonschema.Reflector, v any) *jsonschema.Schema {
	s := r.Reflect(v)
	s.Version = ""
	return s
}

func constString(v string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Enum: []interface{}{v}}
}

// actionSchema 每种动作一个分支，以 type 字段区分
func actionSchema(r *jsonschema.Reflector) *jsonschema.Schema {
	types := server.ActionTypes()
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &jsonschema.Schema{Title: "Action"}
	for _, name := range names {
		s := reflectInline(r, types[name])
		s.Title = name
		if s.Properties != nil {
			s.Properties.Set("type", constString(name))
		}
		s.Required = append([]string{"type"}, s.Required...)
		out.OneOf = append(out.OneOf, s)
	}
	return out
}

func buildSchema() *jsonschema.Schema {
	r := newReflector()

	join := reflectInline(r, &server.JoinMessage{})
	join.Title = "join"

	action := reflectInline(r, &server.ActionMessage{})
	action.Title = "action"
	action.Properties.Set("action", actionSchema(r))

	ping := reflectInline(r, &server.PingMessage{})
	ping.Title = "ping"

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "microarena client protocol",
		Description: "Messages a client may send to a room over the WebSocket connection.",
		OneOf:       []*jsonschema.Schema{join, action, ping},
	}
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
