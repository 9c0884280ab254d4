// Package catalog serves shared agent definitions from a YAML file and
// chains agent repositories together.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/logging"
)

// File is the on-disk layout of an agent catalog.
type File struct {
	Agents []domain.AgentDescriptor `yaml:"agents"`
}

// Catalog is an AgentRepository over a YAML file plus inline agents from
// the main config. File entries override inline ones with the same id.
type Catalog struct {
	path   string
	inline []domain.AgentDescriptor
	log    *logging.Logger

	mu     sync.RWMutex
	agents map[string]domain.AgentDescriptor
}

// New creates a catalog and performs the first load. A missing file is not
// an error; the catalog then holds only the inline agents.
func New(path string, inline []domain.AgentDescriptor, log *logging.Logger) (*Catalog, error) {
	c := &Catalog{
		path:   path,
		inline: inline,
		log:    log.Sub("catalog"),
		agents: make(map[string]domain.AgentDescriptor),
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the catalog file path.
func (c *Catalog) Path() string {
	return c.path
}

// Reload re-reads the catalog file. On error the previous contents stay.
func (c *Catalog) Reload() error {
	var fromFile []domain.AgentDescriptor
	if c.path != "" {
		f, err := LoadFile(c.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return err
		default:
			fromFile = f.Agents
		}
	}

	agents := make(map[string]domain.AgentDescriptor, len(c.inline)+len(fromFile))
	for _, src := range [][]domain.AgentDescriptor{c.inline, fromFile} {
		for _, a := range src {
			a.ID = strings.TrimSpace(a.ID)
			if a.ID == "" {
				continue
			}
			agents[a.ID] = a
		}
	}

	c.mu.Lock()
	c.agents = agents
	c.mu.Unlock()

	c.log.Info().Str("path", c.path).Int("agents", len(agents)).Msg("catalog loaded")
	return nil
}

// Get resolves an agent visible to userID.
func (c *Catalog) Get(_ context.Context, agentID, userID string) (domain.AgentDescriptor, error) {
	c.mu.RLock()
	a, ok := c.agents[agentID]
	c.mu.RUnlock()
	if !ok || !a.VisibleTo(userID) {
		return domain.AgentDescriptor{}, domain.ErrAgentNotFound
	}
	return a, nil
}

// List returns all catalog agents sorted by id.
func (c *Catalog) List() []domain.AgentDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.AgentDescriptor, 0, len(c.agents))
	for _, a := range c.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of agents.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.agents)
}

// LoadFile parses a catalog file and rejects entries without an id and
// duplicate ids.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	seen := make(map[string]bool, len(f.Agents))
	for i, a := range f.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog agent %d: id is required", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("catalog agent %d: duplicate id %q", i, id)
		}
		seen[id] = true
		f.Agents[i].ID = id
		f.Agents[i].Model.APIKey = os.ExpandEnv(a.Model.APIKey)
	}
	return &f, nil
}
