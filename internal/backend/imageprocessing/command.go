package imageprocessing

import (
	"fmt"
	"sync"
)

// Command is one step of the upload normalisation chain.
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory creates a command from configuration parameters
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig names a registered command and its parameters
type CommandConfig struct {
	Name   string
	Params map[string]any
}

// CommandRegistry maps command names to factories. Safe for concurrent use.
type CommandRegistry struct {
	mu        sync.RWMutex
	factories map[string]CommandFactory
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		factories: make(map[string]CommandFactory),
	}
}

func (r *CommandRegistry) Register(name string, factory CommandFactory) error {
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("command factory cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("command %s is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

func (r *CommandRegistry) Create(name string, params map[string]any) (Command, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unknown command: %s", name)
	}

	command, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create command %s: %w", name, err)
	}
	return command, nil
}

func (r *CommandRegistry) IsRegistered(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[name]
	return exists
}

// DefaultRegistry holds the commands of this package, registered in init.
var DefaultRegistry = NewCommandRegistry()

// Build creates the commands named by configs in order.
func (r *CommandRegistry) Build(configs []CommandConfig) ([]Command, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := r.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, config.Name, err)
		}
		commands = append(commands, command)
	}
	return commands, nil
}

func getIntParam(params map[string]any, key string, defaultValue int) int {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return defaultValue
}
