package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Reporter receives cycle events. Implementations must not block for long;
// they run on the worker goroutine between phases.
type Reporter interface {
	Report(ctx context.Context, ev domain.CycleEvent)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, ev domain.CycleEvent)

func (f ReporterFunc) Report(ctx context.Context, ev domain.CycleEvent) { f(ctx, ev) }

// Bus channel and stream names.
const (
	EventsChannel = "cyclebot:events"
	CyclesStream  = "cyclebot:cycles"
)

// BusReporter publishes every event on a pub/sub channel and appends terminal
// events to a stream so finished cycles can be audited later.
type BusReporter struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewBusReporter creates a BusReporter.
func NewBusReporter(bus domain.SignalBus, logger *slog.Logger) *BusReporter {
	return &BusReporter{bus: bus, logger: logger.With(slog.String("component", "event_bus"))}
}

func (b *BusReporter) Report(ctx context.Context, ev domain.CycleEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.ErrorContext(ctx, "marshal event", slog.String("error", err.Error()))
		return
	}
	if err := b.bus.Publish(ctx, EventsChannel, payload); err != nil {
		b.logger.WarnContext(ctx, "publish event failed", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
	}
	if !ev.Terminal() {
		return
	}
	if err := b.bus.StreamAppend(ctx, CyclesStream, payload); err != nil {
		b.logger.WarnContext(ctx, "append cycle stream failed", slog.String("cycle_id", ev.CycleID), slog.String("error", err.Error()))
	}
}

// Notifier is the subset of notify.Notifier used here.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// NotifyReporter turns events into operator notifications.
type NotifyReporter struct {
	n      Notifier
	logger *slog.Logger
}

// NewNotifyReporter creates a NotifyReporter.
func NewNotifyReporter(n Notifier, logger *slog.Logger) *NotifyReporter {
	return &NotifyReporter{n: n, logger: logger.With(slog.String("component", "notify_reporter"))}
}

func (r *NotifyReporter) Report(ctx context.Context, ev domain.CycleEvent) {
	title, msg := FormatEvent(ev)
	if err := r.n.Notify(ctx, string(ev.Kind), title, msg); err != nil {
		r.logger.WarnContext(ctx, "notification failed", slog.String("kind", string(ev.Kind)), slog.String("error", err.Error()))
	}
}

// FormatEvent renders ev as a notification title and body.
func FormatEvent(ev domain.CycleEvent) (title, message string) {
	short := ev.CycleID
	if len(short) > 8 {
		short = short[:8]
	}
	switch ev.Kind {
	case domain.EventCycleFound:
		title = "Cycle " + short + " starting"
		if ev.Cycle != nil {
			message = fmt.Sprintf("%s %s via %s on %s, projected +%s %s (%s fiat)",
				ev.Cycle.StartingAmount, ev.Cycle.Holding, ev.Cycle.Bridge, ev.Cycle.Hot,
				ev.Cycle.ProjectedNetAmount, ev.Cycle.Holding, ev.Cycle.ProjectedNetFiatValue)
		}
	case domain.EventPhaseStarted:
		title = fmt.Sprintf("Cycle %s phase %d", short, ev.Phase)
		message = fmt.Sprintf("%s: %s %s on %s", ev.PhaseName, ev.Amount, ev.Currency, ev.Exchange)
	case domain.EventPhaseCompleted:
		title = fmt.Sprintf("Cycle %s phase %d done", short, ev.Phase)
		message = fmt.Sprintf("%s settled %s", ev.PhaseName, ev.Amount)
	case domain.EventCycleCompleted:
		title = "Cycle " + short + " completed"
		if ev.Summary != nil {
			message = fmt.Sprintf("%s -> %s %s, profit/loss %s",
				ev.Summary.StartAmount, ev.Summary.EndAmount, ev.Summary.Currency, ev.Summary.ProfitOrLoss)
		}
	case domain.EventCycleFailed:
		title = "Cycle " + short + " FAILED"
		message = fmt.Sprintf("%s %s held on %s: %s", ev.Amount, ev.Currency, ev.Exchange, ev.Error)
	case domain.EventSettlement:
		title = "Cycle " + short + " settlement"
		if st := ev.Settlement; st != nil {
			message = fmt.Sprintf("%s %s on %s: %s -> %s (%s)", st.Kind, st.Reference, ev.Exchange, st.From, st.To, st.RawStatus)
		}
	case domain.EventThresholdRaised:
		title = "Minimum threshold raised"
		if ev.Threshold != nil {
			message = fmt.Sprintf("now %s after cycle %s", ev.Threshold.String(), short)
		}
	default:
		title = string(ev.Kind)
	}
	return title, message
}
