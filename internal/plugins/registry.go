package plugins

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

type entry struct {
	plugin Plugin
	cmd    Command
}

// Registry maps plugin names and command names to plugins.
type Registry struct {
	plugins  map[string]Plugin
	commands map[string]entry
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		plugins:  make(map[string]Plugin),
		commands: make(map[string]entry),
	}
}

// Register adds p. A plugin or command name that is already taken is an
// error and leaves the registry unchanged.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(p.Name())
	if _, ok := r.plugins[name]; ok {
		return fmt.Errorf("plugin %q already registered", name)
	}
	cmds := p.Commands()
	for _, c := range cmds {
		key := strings.ToLower(c.Name)
		if prev, ok := r.commands[key]; ok {
			return fmt.Errorf("command %q of plugin %q already provided by %q", key, name, prev.plugin.Name())
		}
		if c.Handler == nil {
			return fmt.Errorf("command %q of plugin %q has no handler", key, name)
		}
	}
	r.plugins[name] = p
	for _, c := range cmds {
		r.commands[strings.ToLower(c.Name)] = entry{plugin: p, cmd: c}
	}
	return nil
}

// Lookup finds the command registered under name.
func (r *Registry) Lookup(name string) (Command, Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.commands[strings.ToLower(name)]
	return e.cmd, e.plugin, ok
}

// Plugin returns the plugin registered under name.
func (r *Registry) Plugin(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[strings.ToLower(name)]
	return p, ok
}

// Plugins returns all plugins ordered by name.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the plugin names, sorted.
func (r *Registry) Names() []string {
	ps := r.Plugins()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name()
	}
	return names
}
