package constants

// Fixed user-facing texts. The end user always receives one of a normal
// reply, the tool-loop fallback, or the apology. Never a raw internal error.
const (
	// MsgToolLoopFallback is sent when the tool-call loop hits its iteration
	// bound before the model produces final content.
	MsgToolLoopFallback = "I started working on that but couldn't finish within my tool budget. Could you narrow the request down?"

	// MsgProviderApology is sent when the provider keeps failing after retries.
	MsgProviderApology = "Sorry, I'm having trouble reaching my language model right now. Please try again in a moment."

	// MsgTurnCancelled is recorded in the session when an in-flight run is
	// cancelled, so later context reflects the incomplete turn.
	MsgTurnCancelled = "[turn cancelled before completion]"
)
