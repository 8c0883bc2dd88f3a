package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahrav/go-verity/internal/domain"
	"github.com/ahrav/go-verity/internal/ports"
)

// NewFactory returns a function with the shape of
// application.DispatcherFactory that builds the dispatcher named by the
// delegation settings.
func NewFactory(logger *slog.Logger) func(context.Context, domain.DelegationSettings) (ports.WorkflowDispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(_ context.Context, s domain.DelegationSettings) (ports.WorkflowDispatcher, error) {
		switch s.Kind {
		case "webhook":
			w, err := NewWebhook(s.URL, WithWebhookLogger(logger))
			if err != nil {
				return nil, err
			}
			return w, nil
		case "kafka":
			k, err := NewKafka(s.Brokers, s.Topic, logger)
			if err != nil {
				return nil, err
			}
			return k, nil
		default:
			return nil, fmt.Errorf("unsupported delegation kind %q", s.Kind)
		}
	}
}
