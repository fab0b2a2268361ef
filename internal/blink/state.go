package blink

// Phase is the blink state machine's position.
type Phase int

const (
	Open Phase = iota
	Closing
)

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// State is the blink state machine. StartMs is only meaningful while Closing.
type State struct {
	Phase   Phase
	StartMs float64
}

// Outcome describes what a single step did.
type Outcome int

const (
	OutcomeNone           Outcome = iota // no transition
	OutcomeNoFace                        // frame skipped, nothing analysed
	OutcomeOnset                         // Open -> Closing
	OutcomeOnsetRejected                 // rising edge with a failing gate, stayed Open
	OutcomeBlink                         // Closing -> Open, counted
	OutcomeTooShort                      // Closing -> Open, below MinBlinkDurationMs
	OutcomeTooLong                       // Closing -> Open, above MaxBlinkDurationMs
)

var outcomeNames = map[Outcome]string{
	OutcomeNone:          "none",
	OutcomeNoFace:        "no_face",
	OutcomeOnset:         "onset",
	OutcomeOnsetRejected: "onset_rejected",
	OutcomeBlink:         "blink",
	OutcomeTooShort:      "too_short",
	OutcomeTooLong:       "too_long",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Gates records the validation gates evaluated on a step.
type Gates struct {
	BothEyesClosing bool
	HeadStable      bool
}

// Passed reports whether every gate passed.
func (g Gates) Passed() bool {
	return g.BothEyesClosing && g.HeadStable
}
