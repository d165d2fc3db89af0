// Package notify delivers point completions to the rest of the system.
package notify

import (
	"context"
	"errors"

	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/service"
)

// Publisher is the part of service.EventBus that Bus needs.
type Publisher interface {
	Publish(e service.Event)
}

// Bus publishes completions as "points"/"completed" events.
type Bus struct {
	pub Publisher
}

// NewBus returns a notifier on pub; nil uses service.DefaultBus.
func NewBus(pub Publisher) *Bus {
	if pub == nil {
		pub = service.DefaultBus
	}
	return &Bus{pub: pub}
}

func (b *Bus) PointCompleted(ctx context.Context, ev proximity.PointCompleted) error {
	b.pub.Publish(service.Event{
		Resource: service.ResourcePoints,
		Action:   service.ActionCompleted,
		TaskID:   ev.TaskID,
		ID:       ev.PointID,
	})
	return nil
}

// Multi fans a completion out to every notifier, joining their errors.
type Multi []proximity.Notifier

func (m Multi) PointCompleted(ctx context.Context, ev proximity.PointCompleted) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.PointCompleted(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
