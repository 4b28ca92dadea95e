package models

// Titles shown above the board for each lifecycle state.
const (
	TitleWaiting = "Waiting for players"
	TitlePlaying = "Fill in the blanks"
	TitleStopped = "STOP!"
)

// CountdownTicks is the length of the cosmetic pre-round countdown.
const CountdownTicks = 3

// ViewState is everything a participant's screen renders. It is derived
// locally from the last pushed session plus the local timers.
type ViewState struct {
	GameID     string     `json:"gameId"`
	Title      string     `json:"title"`
	Countdown  string     `json:"countdown"`
	TimeLeft   int        `json:"timeLeft"`
	Letter     string     `json:"letter"`
	Round      int        `json:"round"`
	Players    []Player   `json:"players"`
	GameStatus GameStatus `json:"gameStatus"`
	Host       string     `json:"host"`
	IsHost     bool       `json:"isHost"`
	Ready      bool       `json:"ready"`
	Points     int        `json:"points"`
	Editable   bool       `json:"editable"`
	Scoring    bool       `json:"scoring"`
	Closed     bool       `json:"closed"`
}

// TitleFor maps a lifecycle state to its board title.
func TitleFor(status GameStatus) string {
	switch status {
	case StatusInProgress:
		return TitlePlaying
	case StatusStopped:
		return TitleStopped
	default:
		return TitleWaiting
	}
}

// DisplayRound is the round number shown to players; nothing has been
// played before round 1 starts, so 0 renders as 1.
func DisplayRound(round int) int {
	if round == 0 {
		return 1
	}
	return round
}
