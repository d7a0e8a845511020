package module

import (
	"turnstile/internal/services/channels/domain"
	interview "turnstile/internal/services/interview/domain"
	turns "turnstile/internal/services/turns/domain"
)

// Ports defines channels module ports exposed via the registry
type Ports struct {
	Web      domain.WebPort
	Telegram domain.TelegramPort
	Delivery domain.DeliveryPort
}

// Needs is what the channels module takes from its neighbours via modkit.WithPorts
// Buffer and Activity are used only when no bus is configured
type Needs struct {
	Conversations interview.LifecyclePort
	Buffer        turns.BufferPort
	Activity      turns.ActivityPort
}
