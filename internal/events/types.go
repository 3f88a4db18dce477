package events

// Event enumerates high-level topics inside the execution engine.
type Event string

const (
	EventBar            Event = "market.bar"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderTerminal  Event = "order.terminal"
	EventPositionChange Event = "position.change"
	EventPositionDrift  Event = "position.drift"
	EventFeedDrop       Event = "feed.drop"
)
