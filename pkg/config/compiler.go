package config

import (
	"fmt"

	"github.com/a-essam23/go-canvas/pkg/pipeline"
	"github.com/a-essam23/go-canvas/pkg/protocol"
)

type ActionFuncProvider func(event protocol.Event) (pipeline.ActionFunc, bool)
type ModifierFuncProvider func(name string) (pipeline.ModifierFunc, bool)

// ClientEvents are the events a client may send; each gets a pipeline.
var ClientEvents = []protocol.Event{
	protocol.EventJoin,
	protocol.EventLeave,
	protocol.EventStrokeChunk,
	protocol.EventStrokeEnd,
	protocol.EventUndo,
	protocol.EventRedo,
	protocol.EventCursor,
}

// CompilePipelines builds, for every client event, the configured modifier
// steps followed by the event's core action.
func CompilePipelines(cfg *Config, actions ActionFuncProvider, modifiers ModifierFuncProvider) error {
	known := make(map[string]bool, len(ClientEvents))
	for _, ev := range ClientEvents {
		known[string(ev)] = true
	}
	for name := range cfg.Events {
		if !known[name] {
			return fmt.Errorf("unknown event '%s' in configuration", name)
		}
	}

	cfg.Pipelines = make(map[protocol.Event][]pipeline.Step, len(ClientEvents))
	for _, ev := range ClientEvents {
		eventCfg := cfg.Events[string(ev)]
		pipe := make([]pipeline.Step, 0, len(eventCfg.Modifiers)+1)
		for _, modCfg := range eventCfg.Modifiers {
			fn, ok := modifiers(modCfg.Name)
			if !ok {
				return fmt.Errorf("unknown modifier '%s' in event '%s'", modCfg.Name, ev)
			}
			pipe = append(pipe, pipeline.Step{
				Name:     modCfg.Name,
				Function: pipeline.ActionFunc(fn),
				Params:   modCfg.Params,
				Modifier: true,
			})
		}
		fn, ok := actions(ev)
		if !ok {
			return fmt.Errorf("no action registered for event '%s'", ev)
		}
		pipe = append(pipe, pipeline.Step{Name: string(ev), Function: fn})
		cfg.Pipelines[ev] = pipe
	}
	return nil
}
