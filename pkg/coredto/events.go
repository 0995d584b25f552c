package coredto

// Event names published to a match's realtime channel. Subscribers are
// passive consumers; the core only ever writes.
const (
	EventGameStart   = "game:start"
	EventMove        = "move"
	EventTimeUpdate  = "time:update"
	EventGameEnd     = "game:end"
	EventDrawOffer   = "draw:offer"
	EventDrawDecline = "draw:decline"
)

type PlayerInfo struct {
	ID     string `json:"id"`
	Rating int    `json:"rating"`
}

type GameStartEvent struct {
	GameID      string     `json:"gameId"`
	White       PlayerInfo `json:"white"`
	Black       PlayerInfo `json:"black"`
	TimeControl string     `json:"timeControl"`
	InitialTime int        `json:"initialTime"`
}

type MoveEvent struct {
	Move string `json:"move"`
	FEN  string `json:"fen"`
	From string `json:"from"`
	To   string `json:"to"`
}

type TimeUpdateEvent struct {
	WhiteTime int `json:"whiteTime"`
	BlackTime int `json:"blackTime"`
}

type GameEndEvent struct {
	Result string `json:"result"`
	Reason string `json:"reason"`
}

type DrawOfferEvent struct {
	OfferedBy string `json:"offeredBy"`
}

type DrawDeclineEvent struct {
	DeclinedBy string `json:"declinedBy"`
}
