// Package nexus adapts fanout.Engine onto github.com/nexus-rpc/sdk-go for
// cross-service worker dispatch, used when the worker is a separate
// long-lived service reachable over HTTP rather than an ephemeral process
// (spec §5 fan-out, extended to the "separate service" case SPEC_FULL.md
// adds to the distilled subprocess story).
package nexus

import (
	"context"
	"net/http"

	"github.com/nexus-rpc/sdk-go/nexus"

	"github.com/pypads-go/pypads/fanout"
	"github.com/pypads-go/pypads/telemetry"
)

const operationName = "pypads.fanout.dispatch"

// Engine dispatches fanout.TaskRequests as Nexus operation calls against a
// remote handler service.
type Engine struct {
	*fanout.Registry
	client *nexus.HTTPClient
	logger telemetry.Logger
}

// Options configures the Nexus-backed Engine.
type Options struct {
	// ServiceBaseURL is the base URL of the Nexus handler service.
	ServiceBaseURL string
	HTTPClient     *http.Client
	Logger         telemetry.Logger
}

// New constructs a client-side Engine that dispatches to a remote Nexus
// handler service.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	c, err := nexus.NewHTTPClient(nexus.HTTPClientOptions{
		BaseURL:    opts.ServiceBaseURL,
		HTTPCaller: opts.HTTPClient.Do,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{Registry: fanout.NewRegistry(), client: c, logger: logger}, nil
}

func (e *Engine) RegisterTask(name string, fn fanout.TaskFunc) error {
	e.Register(name, fn)
	return nil
}

// Dispatch starts the fan-out operation and waits synchronously for its
// result — tasks are expected to complete within the HTTP request's
// lifetime; long-running tasks should use fanout/temporal instead.
func (e *Engine) Dispatch(ctx context.Context, req fanout.TaskRequest) (fanout.TaskResult, error) {
	result, err := nexus.ExecuteOperation(ctx, e.client, nexus.ExecuteOperationOptions[fanout.TaskRequest, fanout.TaskResult]{
		Operation: operationName,
		Input:     req,
	})
	if err != nil {
		return fanout.TaskResult{}, err
	}
	return result, nil
}

// Operation builds the single synchronous Nexus operation every task bound
// to reg is dispatched through, keyed on req.Task. Register it into a
// nexus.ServiceRegistry and serve it via nexus.NewHTTPHandler to run the
// remote worker service (spec §5's "separate long-lived service" case).
// The handler runs each task exactly as fanout/inmem does, via
// Registry.Execute — the single implementation of the run/snapshot
// sequence; tracking is not re-activated in the handler process.
func Operation(reg *fanout.Registry, logger telemetry.Logger) nexus.Operation[fanout.TaskRequest, fanout.TaskResult] {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return nexus.NewSyncOperation(operationName, func(ctx context.Context, req fanout.TaskRequest, options nexus.StartOperationOptions) (fanout.TaskResult, error) {
		return reg.Execute(ctx, req, logger), nil
	})
}

var _ fanout.Engine = (*Engine)(nil)
