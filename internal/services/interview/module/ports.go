package module

import "turnstile/internal/services/interview/domain"

// Ports defines interview module ports exposed via the registry
type Ports struct {
	Lifecycle domain.LifecyclePort
	Pipeline  domain.PipelinePort
	Worker    domain.WorkerPort
}
