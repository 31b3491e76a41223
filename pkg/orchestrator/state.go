package orchestrator

import "context"

// State enumerates the stations a single chat pass moves through.
type State int

const (
	StateLoadContext State = iota
	StateBuildPrompt
	StateGenerateResponse
	StatePersistTurn
	StateCheckContinue
	StateExtractHighlights
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateLoadContext:
		return "load_context"
	case StateBuildPrompt:
		return "build_prompt"
	case StateGenerateResponse:
		return "generate_response"
	case StatePersistTurn:
		return "persist_turn"
	case StateCheckContinue:
		return "check_continue"
	case StateExtractHighlights:
		return "extract_highlights"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// stepFunc executes one station and names the next.
type stepFunc func(ctx context.Context, t *turn) State
