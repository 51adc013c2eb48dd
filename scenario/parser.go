package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Op is a scenario step operation.
type Op string

const (
	OpOpen     Op = "open"     // register a new resource in Scope
	OpRead     Op = "read"     // read the value of Resource
	OpClose    Op = "close"    // close Resource explicitly
	OpRemove   Op = "remove"   // detach Resource from Scope without releasing it
	OpAdopt    Op = "adopt"    // move Resource into To
	OpTransfer Op = "transfer" // offer Resource to an ownership receiver of To
	OpTeardown Op = "teardown" // close Scope
)

// Failure modes injected into an opened resource.
const (
	FailConstruct = "construct"
	FailRelease   = "release"
	FailPanic     = "panic"
)

// Document is a parsed scenario file.
type Document struct {
	Name   string   `yaml:"name"`
	Scopes []string `yaml:"scopes"`
	Steps  []Step   `yaml:"steps"`
}

// Step is one operation of a scenario.
type Step struct {
	Op       Op     `yaml:"op"`
	Scope    string `yaml:"scope,omitempty"`
	Resource string `yaml:"resource,omitempty"`
	To       string `yaml:"to,omitempty"`
	Fail     string `yaml:"fail,omitempty"`
}

func (s Step) String() string {
	switch s.Op {
	case OpOpen:
		if s.Fail != "" {
			return fmt.Sprintf("open %s in %s (fail %s)", s.Resource, s.Scope, s.Fail)
		}
		return fmt.Sprintf("open %s in %s", s.Resource, s.Scope)
	case OpRemove:
		return fmt.Sprintf("remove %s from %s", s.Resource, s.Scope)
	case OpAdopt, OpTransfer:
		return fmt.Sprintf("%s %s to %s", s.Op, s.Resource, s.To)
	case OpTeardown:
		return "teardown " + s.Scope
	default:
		return fmt.Sprintf("%s %s", s.Op, s.Resource)
	}
}

// ParseFile parses a scenario file.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML scenario content. Unknown fields are
// rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks that every step names declared scopes and the fields its
// operation needs. It does not track resource lifetimes; misuse such as
// reading a closed resource is part of what a scenario can demonstrate.
func (d *Document) Validate() error {
	if len(d.Scopes) == 0 {
		return fmt.Errorf("scenario %q declares no scopes", d.Name)
	}
	scopes := make(map[string]bool, len(d.Scopes))
	for _, s := range d.Scopes {
		if s == "" {
			return fmt.Errorf("scenario %q: empty scope name", d.Name)
		}
		if scopes[s] {
			return fmt.Errorf("scenario %q: duplicate scope %q", d.Name, s)
		}
		scopes[s] = true
	}

	for i, st := range d.Steps {
		if err := st.validate(scopes); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (s Step) validate(scopes map[string]bool) error {
	needScope := func() error {
		if !scopes[s.Scope] {
			return fmt.Errorf("%s: unknown scope %q", s.Op, s.Scope)
		}
		return nil
	}
	needResource := func() error {
		if s.Resource == "" {
			return fmt.Errorf("%s: resource is required", s.Op)
		}
		return nil
	}

	switch s.Op {
	case OpOpen:
		if err := needScope(); err != nil {
			return err
		}
		if err := needResource(); err != nil {
			return err
		}
		switch s.Fail {
		case "", FailConstruct, FailRelease, FailPanic:
			return nil
		default:
			return fmt.Errorf("open: unknown failure mode %q", s.Fail)
		}
	case OpRead, OpClose:
		return needResource()
	case OpRemove:
		if err := needScope(); err != nil {
			return err
		}
		return needResource()
	case OpAdopt, OpTransfer:
		if err := needResource(); err != nil {
			return err
		}
		if !scopes[s.To] {
			return fmt.Errorf("%s: unknown target scope %q", s.Op, s.To)
		}
		return nil
	case OpTeardown:
		return needScope()
	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}
