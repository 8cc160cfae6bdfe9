package core

import (
	"embed"
	"fmt"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaTaskAnalysis   = "task_analysis.json"
	schemaDocumentAnswer = "document_answer.json"
	schemaSearchQuery    = "search_query.json"
	schemaSearchSummary  = "search_summary.json"
)

var (
	compileOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	compileErr  error
)

// outputSchema returns the compiled schema for one structured output.
func outputSchema(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled := make(map[string]*jsonschema.Schema, 4)
		for _, n := range []string{schemaTaskAnalysis, schemaDocumentAnswer, schemaSearchQuery, schemaSearchSummary} {
			f, err := schemaFS.Open(path.Join("schemas", n))
			if err != nil {
				compileErr = fmt.Errorf("open schema %s: %w", n, err)
				return
			}
			compiler := jsonschema.NewCompiler()
			err = compiler.AddResource(n, f)
			f.Close()
			if err != nil {
				compileErr = fmt.Errorf("add schema resource %s: %w", n, err)
				return
			}
			s, err := compiler.Compile(n)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", n, err)
				return
			}
			compiled[n] = s
		}
		schemas = compiled
	})
	if compileErr != nil {
		return nil, compileErr
	}
	s, ok := schemas[name]
	if !ok {
		return nil, fmt.Errorf("schema %s not registered", name)
	}
	return s, nil
}
