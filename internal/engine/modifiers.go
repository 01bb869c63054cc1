package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/a-essam23/go-canvas/pkg/pipeline"
	"github.com/a-essam23/go-canvas/pkg/state"
)

// modifierRequireRoom rejects events from connections that have not joined.
// Core actions check membership themselves; this only makes the rejection
// visible to the client.
func modifierRequireRoom(pctx *pipeline.Cargo, params ...string) error {
	if len(params) != 0 {
		return errors.New("'require_room' modifier does not accept any parameters")
	}
	if pctx.RoomID == "" {
		return errNotInRoom
	}
	return nil
}

type rateLimitState struct {
	Requests int
}

func parseRate(rate string) (int, time.Duration, error) {
	parts := strings.Split(rate, "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid rate_limit format: %s", rate)
	}

	limit, err := strconv.Atoi(parts[0])
	if err != nil || limit <= 0 {
		return 0, 0, fmt.Errorf("invalid rate_limit count: %s", parts[0])
	}

	var duration time.Duration
	switch strings.ToLower(parts[1]) {
	case "s":
		duration = time.Second
	case "m":
		duration = time.Minute
	case "h":
		duration = time.Hour
	default:
		return 0, 0, fmt.Errorf("invalid rate_limit duration unit: %s", parts[1])
	}
	return limit, duration, nil
}

// newRateLimitModifier limits each connection to N events per window, e.g.
// "60/s". The window starts at the first event and its state is removed by
// a timer when it ends.
func newRateLimitModifier(logger *slog.Logger) pipeline.ModifierFunc {
	return func(pctx *pipeline.Cargo, params ...string) error {
		if len(params) != 1 {
			return errors.New("'rate_limit' modifier requires exactly one parameter (e.g., '10/m')")
		}
		limit, duration, err := parseRate(params[0])
		if err != nil {
			return err
		}

		modifierName := "rate_limit"
		connID := pctx.UserID()
		eventName := string(pctx.Message.Event)
		sm := pctx.StateManager

		existingState, found := sm.GetModifierState(modifierName, connID, eventName)
		if !found {
			// First request in the window. Create the state.
			newState := &state.ModifierState{Value: &rateLimitState{Requests: 1}}
			newState.Timer = time.AfterFunc(duration, func() {
				logger.Debug("Auto-cleaning expired rate_limit state", "connID", connID, "event", eventName)
				sm.DeleteModifierState(modifierName, connID, eventName)
			})
			sm.SetModifierState(modifierName, connID, eventName, newState)
			return nil
		}

		// the router runs one connection's events sequentially, so the
		// counter has a single writer
		currentState := existingState.Value.(*rateLimitState)
		if currentState.Requests < limit {
			currentState.Requests++
			return nil
		}

		return fmt.Errorf("rate limit for event '%s' exceeded", eventName)
	}
}
