// Package openai is a trackable adapter over
// github.com/openai/openai-go (spec §6 supplement: worked mapping-document
// example), following the same forwarding-slot shape as
// integrations/anthropic: the vendored client's methods cannot be
// duck-punched directly, so this package's own call slots are what the
// Wrapping Engine installs a dispatcher into.
package openai

import (
	"context"
	"reflect"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/pypads-go/pypads/intercept"
	"github.com/pypads-go/pypads/wrap"
)

const containerID = "integrations.openai"

// NewClient is the "init" call shape: constructing an openai.Client from an
// API key.
var NewClient = newClient

func newClient(apiKey string) openai.Client {
	return openai.NewClient(option.WithAPIKey(apiKey))
}

// Predict is the "predict" call shape: a single Chat Completions request.
var Predict = predict

func predict(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return client.Chat.Completions.New(ctx, params)
}

// Register installs this package's discovery routine with i.
func Register(i *intercept.Interceptor) {
	i.Register(containerID, factory)
}

func factory(ctx context.Context, i *intercept.Interceptor) error {
	if _, _, err := i.WrapSymbol(ctx, containerID, containerID, "NewClient", wrap.Class, reflect.ValueOf(&NewClient).Elem()); err != nil {
		return err
	}
	_, _, err := i.WrapSymbol(ctx, containerID, containerID, "Predict", wrap.Free, reflect.ValueOf(&Predict).Elem())
	return err
}
