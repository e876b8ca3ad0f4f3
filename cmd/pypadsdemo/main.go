// Command pypadsdemo wires a pypads.Instance against the anthropic, openai
// and bedrock integration adapters, makes a tracked anthropic.NewClient
// call (plus anthropic.Predict when ANTHROPIC_API_KEY is set), and prints
// the id of the run the backend recorded them under. The openai and
// bedrock slots are wrapped but not called. It is the end-to-end exercise
// of the mapping documents under mappings/.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pypads-go/pypads"
	"github.com/pypads-go/pypads/config"
	"github.com/pypads-go/pypads/funcregistry"
	"github.com/pypads-go/pypads/integrations/anthropic"
	"github.com/pypads-go/pypads/integrations/bedrock"
	"github.com/pypads-go/pypads/integrations/openai"
)

// callLogger is a minimal tracked-call logger: Pre records the event's
// configured `with` parameters as run params, Post records a call-count
// metric and logs the outcome. Implements funcregistry.Logger,
// funcregistry.PreHook and funcregistry.PostHook (spec §4.3, §4.7 step 5).
type callLogger struct {
	name   string
	pypads *pypads.Instance
	runID  string
	seen   int
}

func (l *callLogger) Name() string { return l.name }

func (l *callLogger) Pre(ctx context.Context, c funcregistry.Call) error {
	for k, v := range c.Params {
		if err := l.pypads.Backend.LogParam(ctx, l.runID, l.name+"."+k, v); err != nil {
			return err
		}
	}
	return nil
}

func (l *callLogger) Post(ctx context.Context, c funcregistry.Call, result any, callErr error) error {
	l.seen++
	if err := l.pypads.Backend.LogMetric(ctx, l.runID, l.name+".calls", float64(l.seen), l.seen); err != nil {
		return err
	}
	if callErr != nil {
		return l.pypads.Backend.SetTag(ctx, l.runID, l.name+".last_error", callErr.Error())
	}
	return nil
}

func main() {
	ctx := context.Background()

	inst, err := pypads.New(
		pypads.WithMappingPaths("mappings"),
		pypads.WithImportantPackages("github.com/pypads-go/pypads"),
	)
	must(err)

	anthropic.Register(inst.Intercept)
	openai.Register(inst.Intercept)
	bedrock.Register(inst.Intercept)
	must(inst.Activate(ctx))

	runID, err := inst.StartRun(ctx, "demo", map[string]string{"demo": "pypadsdemo"})
	must(err)
	defer func() { must(inst.EndRun(ctx, runID)) }()

	cfg := config.Default()
	cfg.Events = map[string]config.EventBinding{
		"track_init":    {On: []string{"pypads_init"}, Order: 1},
		"track_predict": {On: []string{"pypads_predict"}, Order: 1},
	}
	must(inst.SetConfiguration(ctx, runID, cfg))

	for _, name := range []string{"track_init", "track_predict"} {
		inst.Functions.Register(name, "", "", &callLogger{name: name, pypads: inst, runID: runID})
	}

	// anthropic.NewClient/Predict and their openai/bedrock counterparts are
	// now dispatcher-wrapped; calling them records pypads_init/pypads_predict
	// through callLogger exactly as a real integration call would.
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	client := anthropic.NewClient(apiKey)
	fmt.Println("anthropic client constructed:", client != nil)

	if apiKey != "" {
		params := anthropic.NewMessageParams("claude-sonnet-4-5-20250929", "Say hello in five words.")
		if _, err := anthropic.Predict(ctx, client, params); err != nil {
			fmt.Println("predict call failed:", err)
		}
	} else {
		fmt.Println("ANTHROPIC_API_KEY unset; skipping the tracked predict call")
	}

	runSummary, _ := json.Marshal(map[string]string{"run_id": runID})
	fmt.Println("run:", string(runSummary))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
