// Package workload turns workload documents into simulator input.
//
// A document is parsed with Parser, checked with Validator and then
// compiled into a Workload, which expands generated processes and resolves
// the scheduler configuration into sched.Algorithm values.
package workload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/me/cpusched/pkg/model"
	"gopkg.in/yaml.v3"
)

// Parser decodes workload documents. JSON input is accepted as YAML.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser with the given logger.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "workload")}
}

// Parse decodes a single workload document. Unknown keys are rejected.
func (p *Parser) Parse(data []byte) (*model.Workload, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc model.Workload
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty workload document")
		}
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}

	p.logger.Debug("parsed workload",
		"name", doc.Name,
		"processes", len(doc.Processes),
		"generated", doc.Generate != nil,
	)
	return &doc, nil
}

// ParseFile reads and decodes the workload document at path.
func (p *Parser) ParseFile(path string) (*model.Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	return p.Parse(data)
}
