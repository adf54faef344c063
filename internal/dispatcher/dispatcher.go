package dispatcher

import (
	"fmt"

	"github.com/asaskevich/EventBus"
)

type Subscriber interface {
	Subscribe(topic string, fn interface{})
}

type Emitter interface {
	Emit(topic string, args ...interface{})
}

type Dispatcher interface {
	Subscriber
	Emitter
}

// New returns an in-process dispatcher. Handlers are called synchronously
// on the emitting goroutine in the order of subscription
func New() Dispatcher {
	return &localEventDispatcher{
		bus: EventBus.New(),
	}
}

type localEventDispatcher struct {
	bus EventBus.Bus
}

// Subscribe panics when fn isn't a function: handlers are registered once during the startup
func (d *localEventDispatcher) Subscribe(topic string, fn interface{}) {
	if err := d.bus.Subscribe(topic, fn); err != nil {
		panic(fmt.Sprintf("unable to subscribe to %s: %v", topic, err))
	}
}

func (d *localEventDispatcher) Emit(topic string, args ...interface{}) {
	if !d.bus.HasCallback(topic) {
		return
	}

	d.bus.Publish(topic, args...)
}
