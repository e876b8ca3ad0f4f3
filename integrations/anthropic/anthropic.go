// Package anthropic is a trackable adapter over
// github.com/anthropics/anthropic-sdk-go (spec §6 supplement: worked
// mapping-document example). Go has no attribute to duck-punch on the
// vendored SDK's *anthropic.MessageService itself, so the trackable
// surface is this package's own forwarding call slots — settable
// package-level func variables the Wrapping Engine can install a
// dispatcher into, every call still reaching the real Messages API.
package anthropic

import (
	"context"
	"reflect"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pypads-go/pypads/intercept"
	"github.com/pypads-go/pypads/wrap"
)

// containerID and the reference below share the dotted form a mapping
// document's implementation entry names (spec §3).
const containerID = "integrations.anthropic"

// NewClient is the "init" call shape: constructing an *sdk.Client from an
// API key. Wrapped under CallShape Class so the mapping's pypads_init hook
// fires once per client construction.
var NewClient = newClient

func newClient(apiKey string) *sdk.Client {
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return &c
}

// Predict is the "predict" call shape: a single non-streaming Messages.New
// request. Wrapped under CallShape Free.
var Predict = predict

func predict(ctx context.Context, client *sdk.Client, params sdk.MessageNewParams) (*sdk.Message, error) {
	return client.Messages.New(ctx, params)
}

// NewMessageParams builds a single-turn MessageNewParams for model,
// prompting with a single user text block. A convenience for callers (the
// demo CLI) that do not need the full encode/decode pipeline the teacher's
// model adapters implement.
func NewMessageParams(model, prompt string) sdk.MessageNewParams {
	return sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: 1024,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
}

// Register installs this package's discovery routine with i. Real
// duck-punching runs a Factory from the package's own init(); the demo CLI
// calls Register explicitly once its pypads.Instance exists instead, since
// Go import order cannot guarantee an Instance is ready before init()
// fires (see intercept.Factory).
func Register(i *intercept.Interceptor) {
	i.Register(containerID, factory)
}

// factory matches this package's Algorithm mapping (keyed on containerID,
// the pseudo-module reference mappings/anthropic.yaml declares) and wraps
// each member the mapping's hooks name, mirroring how a Python module
// reference selects which of its functions get instrumented (spec §4.6).
func factory(ctx context.Context, i *intercept.Interceptor) error {
	if _, _, err := i.WrapSymbol(ctx, containerID, containerID, "NewClient", wrap.Class, reflect.ValueOf(&NewClient).Elem()); err != nil {
		return err
	}
	_, _, err := i.WrapSymbol(ctx, containerID, containerID, "Predict", wrap.Free, reflect.ValueOf(&Predict).Elem())
	return err
}
