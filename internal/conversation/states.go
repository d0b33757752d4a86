package conversation

// State is one step of the logging flow. Transitions are owned entirely
// by Engine.Step; nothing else mutates a session's state.
type State int

const (
	StateSelectingDate State = iota
	StateAwaitingMetricChoice
	StateAwaitingMetricValue
	StateAwaitingMealInput
	StateAwaitingItemQuantityEdit
	StateAwaitingMealConfirmation
	StateAwaitingMacroEdit
	StateAskLogMore
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateSelectingDate:
		return "selecting-date"
	case StateAwaitingMetricChoice:
		return "awaiting-metric-choice"
	case StateAwaitingMetricValue:
		return "awaiting-metric-value"
	case StateAwaitingMealInput:
		return "awaiting-meal-input"
	case StateAwaitingItemQuantityEdit:
		return "awaiting-item-quantity-edit"
	case StateAwaitingMealConfirmation:
		return "awaiting-meal-confirmation"
	case StateAwaitingMacroEdit:
		return "awaiting-macro-edit"
	case StateAskLogMore:
		return "ask-log-more"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// EventKind tags inbound conversation events.
type EventKind int

const (
	EventText EventKind = iota
	EventPhoto
	EventAudio
	EventChoice
	EventCancel
	EventStart
)

// Event is one inbound user action, already stripped of transport
// details. Media carries photo or audio bytes for those kinds.
type Event struct {
	Kind     EventKind
	Text     string
	Media    []byte
	MimeType string
	Choice   string
	UserID   int64
}

// Button is one inline keyboard button.
type Button struct {
	Label string
	Data  string
}

// Reply is one outbound message. A nil Keyboard means plain text.
type Reply struct {
	Text     string
	Keyboard [][]Button
}

// Choice payloads shared between keyboards and the transition function.
const (
	choiceLogMeal      = "log_meal"
	choiceCancelLog    = "cancel_log"
	choiceConfirmYes   = "confirm_meal_yes"
	choiceConfirmNo    = "confirm_meal_no"
	choiceEditMacros   = "edit_macros"
	choiceLogMore      = "log_more"
	choiceFinishLog    = "finish_log"
	metricChoicePrefix = "log_"
)
