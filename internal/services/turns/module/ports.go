package module

import (
	"turnstile/internal/services/turns/domain"
	"turnstile/internal/services/turns/service"
)

// Subscriber attaches the aggregator handlers to the event bus
type Subscriber interface {
	Register(r service.Router)
}

// Ports defines turns module ports exposed via the registry
type Ports struct {
	Buffer    domain.BufferPort
	Activity  domain.ActivityPort
	Flush     domain.FlushPort
	Lifecycle domain.LifecyclePort
	Status    domain.StatusPort
	Outbox    domain.OutboxPort
	Sweeper   domain.SweeperPort
	Worker    domain.WorkerPort
	Events    Subscriber
}

// PipelinePorts is the slice of the aggregator the interview pipeline consumes
type PipelinePorts struct {
	domain.OutboxPort
	domain.LifecyclePort
}

// ForPipeline bundles the outbox and lifecycle ports
func (p Ports) ForPipeline() PipelinePorts {
	return PipelinePorts{OutboxPort: p.Outbox, LifecyclePort: p.Lifecycle}
}
