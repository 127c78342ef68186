package container

import (
	"github.com/kasuganosora/relopt/pkg/planner"
	"github.com/kasuganosora/relopt/pkg/planner/statistics"
)

// Container is a dependency injection container for planner components.
// It provides methods to register and retrieve services by name.
type Container interface {
	// Register registers a service with the given name.
	// If a service with the same name already exists, it will be overwritten.
	Register(name string, service interface{})

	// Get retrieves a service by name.
	// Returns the service and true if found, or nil and false if not found.
	Get(name string) (interface{}, bool)

	// MustGet retrieves a service by name, or panics if not found.
	// This is a convenience method when you're certain the service exists.
	MustGet(name string) interface{}

	// Has checks if a service with the given name exists.
	Has(name string) bool

	// Config returns the planner configuration the container was created with.
	Config() planner.Config

	// StatsProvider returns the statistics source used by the container.
	StatsProvider() statistics.Provider
}
