package services

import (
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/events"
	"github.com/fyrsmithlabs/contractd/internal/pipeline"
	"github.com/fyrsmithlabs/contractd/internal/store"
	"github.com/fyrsmithlabs/contractd/internal/supabase"
)

// Registry provides access to all contractd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Analysis() *analysis.Service
	Pipeline() *pipeline.Runner
	Store() *store.Store
	Events() events.Publisher
	NATS() *nats.Conn
	Supabase() *supabase.Client
}

// Options configures the registry with service instances.
type Options struct {
	Analysis *analysis.Service
	Pipeline *pipeline.Runner
	Store    *store.Store
	Events   events.Publisher
	NATS     *nats.Conn
	Supabase *supabase.Client
}

// registry is the concrete implementation of Registry.
type registry struct {
	analysis *analysis.Service
	pipeline *pipeline.Runner
	store    *store.Store
	events   events.Publisher
	nats     *nats.Conn
	supabase *supabase.Client
}

// NewRegistry creates a new service registry. A nil Events publisher is
// replaced with events.NopPublisher.
func NewRegistry(opts Options) Registry {
	if opts.Events == nil {
		opts.Events = events.NopPublisher{}
	}
	return &registry{
		analysis: opts.Analysis,
		pipeline: opts.Pipeline,
		store:    opts.Store,
		events:   opts.Events,
		nats:     opts.NATS,
		supabase: opts.Supabase,
	}
}

func (r *registry) Analysis() *analysis.Service { return r.analysis }
func (r *registry) Pipeline() *pipeline.Runner  { return r.pipeline }
func (r *registry) Store() *store.Store         { return r.store }
func (r *registry) Events() events.Publisher    { return r.events }
func (r *registry) NATS() *nats.Conn            { return r.nats }
func (r *registry) Supabase() *supabase.Client  { return r.supabase }
