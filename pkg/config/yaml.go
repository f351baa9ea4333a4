package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLLimits defines security limits for YAML parsing
type YAMLLimits struct {
	MaxFileSize  int64 // Maximum file size in bytes (default: 1MB)
	MaxDepth     int   // Maximum nesting depth (default: 20)
	MaxNodes     int   // Maximum number of nodes (default: 10000)
	MaxKeyLength int   // Maximum key length in bytes (default: 256)
	MaxValueSize int64 // Maximum value size in bytes (default: 64KB)
}

// DefaultYAMLLimits returns the limits used for host configuration files
func DefaultYAMLLimits() YAMLLimits {
	return YAMLLimits{
		MaxFileSize:  1024 * 1024,
		MaxDepth:     20,
		MaxNodes:     10000,
		MaxKeyLength: 256,
		MaxValueSize: 64 * 1024,
	}
}

// SafeYAMLParser parses YAML with resource limits and rejects unknown fields
type SafeYAMLParser struct {
	limits YAMLLimits
}

// NewSafeYAMLParser creates a new YAML parser with security limits
func NewSafeYAMLParser(limits YAMLLimits) *SafeYAMLParser {
	return &SafeYAMLParser{limits: limits}
}

// Unmarshal validates data against the limits, then decodes it into v.
// Fields not present in v's type are an error.
func (p *SafeYAMLParser) Unmarshal(data []byte, v any) error {
	if int64(len(data)) > p.limits.MaxFileSize {
		return fmt.Errorf("YAML file size %d bytes exceeds maximum %d bytes", len(data), p.limits.MaxFileSize)
	}

	var rootNode yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&rootNode); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("YAML parse error: %w", err)
	}

	validator := &yamlValidator{limits: p.limits}
	if err := validator.validateNode(&rootNode, 0); err != nil {
		return err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("YAML decode error: %w", err)
	}
	return nil
}

// UnmarshalFromReader reads at most MaxFileSize bytes from r and unmarshals them
func (p *SafeYAMLParser) UnmarshalFromReader(r io.Reader, v any) error {
	limitedReader := io.LimitedReader{
		R: r,
		N: p.limits.MaxFileSize + 1, // Read one extra byte to detect overflow
	}

	data, err := io.ReadAll(&limitedReader)
	if err != nil {
		return fmt.Errorf("failed to read YAML: %w", err)
	}

	if int64(len(data)) > p.limits.MaxFileSize {
		return fmt.Errorf("YAML input exceeds maximum size %d bytes", p.limits.MaxFileSize)
	}

	return p.Unmarshal(data, v)
}

// yamlValidator validates YAML structure against security limits
type yamlValidator struct {
	limits    YAMLLimits
	nodeCount int
}

func (v *yamlValidator) validateNode(node *yaml.Node, depth int) error {
	if depth > v.limits.MaxDepth {
		return fmt.Errorf("YAML nesting depth %d exceeds maximum %d", depth, v.limits.MaxDepth)
	}

	v.nodeCount++
	if v.nodeCount > v.limits.MaxNodes {
		return fmt.Errorf("YAML node count %d exceeds maximum %d", v.nodeCount, v.limits.MaxNodes)
	}

	switch node.Kind {
	case yaml.DocumentNode:
		for _, child := range node.Content {
			if err := v.validateNode(child, depth); err != nil {
				return err
			}
		}

	case yaml.MappingNode:
		if len(node.Content)%2 != 0 {
			return fmt.Errorf("invalid YAML mapping: odd number of elements")
		}
		for i := 0; i < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			valueNode := node.Content[i+1]

			if len(keyNode.Value) > v.limits.MaxKeyLength {
				return fmt.Errorf("YAML key length %d exceeds maximum %d", len(keyNode.Value), v.limits.MaxKeyLength)
			}
			if err := v.validateNode(keyNode, depth+1); err != nil {
				return err
			}
			if err := v.validateNode(valueNode, depth+1); err != nil {
				return err
			}
		}

	case yaml.SequenceNode:
		for _, child := range node.Content {
			if err := v.validateNode(child, depth+1); err != nil {
				return err
			}
		}

	case yaml.ScalarNode:
		if int64(len(node.Value)) > v.limits.MaxValueSize {
			return fmt.Errorf("YAML value size %d bytes exceeds maximum %d bytes", len(node.Value), v.limits.MaxValueSize)
		}

	case yaml.AliasNode:
		// Aliases count against the limits every time they are expanded.
		if node.Alias != nil {
			if err := v.validateNode(node.Alias, depth+1); err != nil {
				return err
			}
		}
	}

	return nil
}
