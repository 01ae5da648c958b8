package domain

import (
	"context"
	"fmt"
	"strings"
)

// CommandHandler runs a resolved command and returns the reply text, if any
type CommandHandler func(ctx context.Context, req *CommandRequest) (string, error)

// CommandSpec is a registered command
type CommandSpec struct {
	Name          string
	Description   string
	Usage         string // Usage guide, {prefix} is replaced at reply time
	RequiredRoles []Role // Empty means public
	GroupOnly     bool
	Handler       CommandHandler
}

// Registry is a named table of commands
type Registry struct {
	Name     string
	Commands []CommandSpec
}

// CommandRequest is what a handler receives
type CommandRequest struct {
	Command string // Canonical command name
	Args    string
	Message *NormalizedMessage
	Policy  *GroupPolicy // Nil in private chats
	Roles   RoleSet
}

// Catalog is the validated, read-only union of all registries
type Catalog struct {
	registries []Registry
	byName     map[string]*CatalogEntry
	order      []string
}

// CatalogEntry is a command with the registry it came from
type CatalogEntry struct {
	Registry string
	Spec     CommandSpec
}

// NewCatalog validates registries and builds the lookup table.
// Names must be unique across registries and every command needs a handler.
func NewCatalog(registries ...Registry) (*Catalog, error) {
	c := &Catalog{
		registries: registries,
		byName:     make(map[string]*CatalogEntry),
	}

	for _, reg := range registries {
		for _, spec := range reg.Commands {
			name := strings.ToLower(strings.TrimSpace(spec.Name))
			if name == "" {
				return nil, fmt.Errorf("registry %s: command with empty name", reg.Name)
			}
			if strings.ContainsAny(name, " \t\n") {
				return nil, fmt.Errorf("registry %s: command %q contains whitespace", reg.Name, name)
			}
			if spec.Handler == nil {
				return nil, fmt.Errorf("registry %s: command %s has no handler", reg.Name, name)
			}
			if prev, ok := c.byName[name]; ok {
				return nil, fmt.Errorf("command %s registered in both %s and %s", name, prev.Registry, reg.Name)
			}
			spec.Name = name
			c.byName[name] = &CatalogEntry{Registry: reg.Name, Spec: spec}
			c.order = append(c.order, name)
		}
	}

	return c, nil
}

// Lookup returns the command registered under name
func (c *Catalog) Lookup(name string) (*CatalogEntry, bool) {
	e, ok := c.byName[strings.ToLower(name)]
	return e, ok
}

// Names returns all command names in registry order
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Registries returns the registries the catalog was built from
func (c *Catalog) Registries() []Registry {
	return c.registries
}

// UsageFor renders the usage guide of a command for prefix
func (c *Catalog) UsageFor(name, prefix string) string {
	e, ok := c.Lookup(name)
	if !ok || e.Spec.Usage == "" {
		return prefix + name
	}
	return strings.ReplaceAll(e.Spec.Usage, "{prefix}", prefix)
}
