package dispatch

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/MJE43/rps-canvas/internal/benchling"
	"github.com/MJE43/rps-canvas/internal/canvas"
	"github.com/MJE43/rps-canvas/internal/engine"
	"github.com/MJE43/rps-canvas/internal/games"
	"github.com/MJE43/rps-canvas/internal/webhook"
)

// PanelClient is the subset of the Benchling client the dispatcher calls.
type PanelClient interface {
	CreateCanvas(ctx context.Context, req benchling.CreateCanvasRequest) (*benchling.Canvas, error)
	UpdateCanvas(ctx context.Context, canvasID string, blocks []canvas.Element) (*benchling.Canvas, error)
}

// Action records what a dispatch did.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionNoop    Action = "noop"
	ActionIgnored Action = "ignored"
)

// Ack is the body returned to the webhook caller.
type Ack struct {
	OK      bool   `json:"ok"`
	Ignored string `json:"ignored,omitempty"`
}

// Report describes one dispatch. Err is the remote failure, if any; it is
// never reflected in Ack.
type Report struct {
	Ack      Ack
	Action   Action
	CanvasID string
	Result   *games.Result
	Err      error
	Duration time.Duration
}

// Dispatcher turns classified events into canvas calls. It holds no per-event
// state and is safe for concurrent use.
type Dispatcher struct {
	client PanelClient
	source engine.Source
	logger *log.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSource overrides the counter-move source. Defaults to crypto/rand.
func WithSource(src engine.Source) Option {
	return func(d *Dispatcher) { d.source = src }
}

// WithLogger overrides the logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher that calls client.
func New(client PanelClient, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: client,
		source: engine.CryptoSource{},
		logger: log.New(os.Stdout, "[DISPATCH] ", log.LstdFlags|log.LUTC),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch handles one event. The returned Ack is always OK: remote failures
// are logged and surfaced only through Report.Err, so that the host does not
// redeliver because of a problem on our side of the canvas API.
//
// The remote call is not cancelled when ctx is; it is bounded by the client
// timeout instead.
func (d *Dispatcher) Dispatch(ctx context.Context, ev webhook.Event) Report {
	start := time.Now()
	var rep Report
	switch e := ev.(type) {
	case webhook.CanvasCreated:
		rep = d.created(ctx, e)
	case webhook.UserInteracted:
		rep = d.interacted(ctx, e)
	default:
		typ := ""
		if ev != nil {
			typ = ev.MessageType()
		}
		rep = Report{Ack: Ack{OK: true, Ignored: typ}, Action: ActionIgnored}
	}
	rep.Duration = time.Since(start)
	return rep
}

func (d *Dispatcher) created(ctx context.Context, e webhook.CanvasCreated) Report {
	rep := Report{Ack: Ack{OK: true}, Action: ActionCreated}

	handle, err := d.client.CreateCanvas(context.WithoutCancel(ctx), benchling.CreateCanvasRequest{
		FeatureID:  e.FeatureID,
		ResourceID: e.ResourceID,
		Blocks:     canvas.Render(canvas.Initial{}),
	})
	if err != nil {
		d.logger.Printf("canvas_create_failed feature_id=%s resource_id=%s error=%q", e.FeatureID, e.ResourceID, err)
		rep.Err = err
		return rep
	}
	rep.CanvasID = handle.ID
	d.logger.Printf("canvas_created feature_id=%s resource_id=%s canvas_id=%s", e.FeatureID, e.ResourceID, handle.ID)
	return rep
}

func (d *Dispatcher) interacted(ctx context.Context, e webhook.UserInteracted) Report {
	rep := Report{Ack: Ack{OK: true}, Action: ActionNoop, CanvasID: e.CanvasID}

	choice, ok := canvas.ChoiceForTrigger(e.ButtonID)
	if !ok || e.CanvasID == "" {
		d.logger.Printf("interaction_skipped canvas_id=%s button_id=%s known_button=%t", e.CanvasID, e.ButtonID, ok)
		return rep
	}

	result := games.Resolve(choice, d.source)
	rep.Action = ActionUpdated
	rep.Result = &result

	_, err := d.client.UpdateCanvas(context.WithoutCancel(ctx), e.CanvasID, canvas.Render(canvas.Resolved{Result: result}))
	if err != nil {
		d.logger.Printf("canvas_update_failed canvas_id=%s button_id=%s error=%q", e.CanvasID, e.ButtonID, err)
		rep.Err = err
		return rep
	}
	d.logger.Printf("canvas_updated canvas_id=%s user=%s counter=%s outcome=%s", e.CanvasID, result.User, result.Counter, result.Outcome)
	return rep
}
