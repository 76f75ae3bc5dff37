package sim

import "github.com/alanyoungcy/execsim/internal/domain"

// Observer receives simulator events as they happen. Callbacks run on the
// goroutine that produced the event, often the scheduler, so they must not
// block.
type Observer interface {
	OnFill(domain.ExecutionResult)
	OnOrder(domain.OrderEvent)
	OnRisk(domain.RiskEvent)
	OnBook(domain.OrderBookSnapshot)
}

// NopObserver ignores every event. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnFill(domain.ExecutionResult)   {}
func (NopObserver) OnOrder(domain.OrderEvent)       {}
func (NopObserver) OnRisk(domain.RiskEvent)         {}
func (NopObserver) OnBook(domain.OrderBookSnapshot) {}

type observers []Observer

func (os observers) OnFill(f domain.ExecutionResult) {
	for _, o := range os {
		o.OnFill(f)
	}
}

func (os observers) OnOrder(ev domain.OrderEvent) {
	for _, o := range os {
		o.OnOrder(ev)
	}
}

func (os observers) OnRisk(ev domain.RiskEvent) {
	for _, o := range os {
		o.OnRisk(ev)
	}
}

func (os observers) OnBook(snap domain.OrderBookSnapshot) {
	for _, o := range os {
		o.OnBook(snap)
	}
}
