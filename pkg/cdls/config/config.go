// Package config reads the CDLS source registry from disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// Defaults mirroring the stock install layout.
const (
	DefaultSourceConfigPath = "./conf/sources.json"
	DefaultDBPath           = "./cdls_sqlite.db"
	DefaultLogDir           = "./logs"
)

// Config : top level job configuration holding every registered source
type Config struct {
	MaxConcurrency int    `json:"max_concurrency"`
	Registered     []Node `json:"registered"`
}

// Node : a single registered source entry. Type selects the source
// implementation and Options carries its type-specific parameters.
type Node struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Options     json.RawMessage `json:"options"`
}

// Load reads and validates the source configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &SourceConfigurationError{
				Message: fmt.Sprintf("File '%s' does not exist", path),
			}
		}
		return nil, &SourceConfigurationError{
			Message: fmt.Sprintf("Could not read source file '%s': %s", path, err),
		}
	}

	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, &SourceConfigurationError{
			Message: fmt.Sprintf("JSON parse failed on source file '%s': %s", path, err),
		}
	}
	if cfg.Registered == nil {
		return nil, &SourceConfigurationError{
			Message: "Source config is missing the 'registered' node",
		}
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}

	for _, node := range cfg.Registered {
		if err := RequireParam(node, "id", node.ID); err != nil {
			return nil, err
		}
		if err := RequireParam(node, "type", node.Type); err != nil {
			return nil, err
		}
		if err := RequireParam(node, "description", node.Description); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// RequireParam errors when a required source parameter is empty.
func RequireParam(node Node, key, value string) error {
	if strings.TrimSpace(value) == "" {
		return &SourceConfigurationError{
			Message: fmt.Sprintf("Required config parameter '%s' is missing", key),
			Node:    &node,
		}
	}
	return nil
}

// SourceConfigurationError : a failure to read or validate source
// configuration data. Node, when set, points at the offending entry.
type SourceConfigurationError struct {
	Message string
	Node    *Node
}

func (e *SourceConfigurationError) Error() string {
	return e.Message
}

// Details renders the offending config node for verbose error output.
func (e *SourceConfigurationError) Details() string {
	if e.Node == nil {
		return ""
	}
	return "Config Node:\n" + spew.Sdump(e.Node)
}
