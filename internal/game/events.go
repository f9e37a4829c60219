package game

// Event names broadcast to a match's room. The transport layer delivers
// them in the order the match emits them.
const (
	EventPlayerJoined    = "playerJoined"
	EventPlayerLeft      = "playerLeft"
	EventPlayersUpdate   = "playersUpdate"
	EventPlayerReady     = "playerReady"
	EventMatchStarted    = "matchStarted"
	EventNewQuestion     = "newQuestion"
	EventQuestionResults = "questionResults"
	EventMatchEnded      = "matchEnded"
)

// Broadcaster delivers an event to every participant of a match's room.
// Implementations must preserve per-room ordering.
type Broadcaster interface {
	Broadcast(matchCode, event string, payload any)
}

// ReadyChange is the payload of EventPlayerReady.
type ReadyChange struct {
	Nickname string `json:"nickname"`
	Ready    bool   `json:"ready"`
}
