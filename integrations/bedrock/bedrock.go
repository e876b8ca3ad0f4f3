// Package bedrock is a trackable adapter over
// github.com/aws/aws-sdk-go-v2/service/bedrockruntime (spec §6 supplement:
// worked mapping-document example), following the same forwarding-slot
// shape as integrations/anthropic and integrations/openai.
package bedrock

import (
	"context"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/pypads-go/pypads/intercept"
	"github.com/pypads-go/pypads/wrap"
)

const containerID = "integrations.bedrock"

// NewClient is the "init" call shape: constructing a bedrockruntime.Client
// from the ambient AWS configuration.
var NewClient = newClient

func newClient(ctx context.Context) (*bedrockruntime.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// Predict is the "predict" call shape: a single Converse request.
var Predict = predict

func predict(ctx context.Context, client *bedrockruntime.Client, params *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	return client.Converse(ctx, params)
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
