package protocol

// Event types.
const (
	EventPairFormed      = "PAIR_FORMED"
	EventPairDissolved   = "PAIR_DISSOLVED"
	EventTrade           = "TRADE"
	EventMarketClear     = "MARKET_CLEAR"
	EventMarketFormed    = "MARKET_FORMED"
	EventMarketDissolved = "MARKET_DISSOLVED"
	EventForage          = "FORAGE"
)

// Event is one entry of a tick's event stream. Decimal amounts are carried
// as strings so they survive JSON without float rounding.
type Event struct {
	Tick uint64 `json:"tick"`
	Type string `json:"type"`
	// Agents lists the agents involved, ascending.
	Agents []int  `json:"agents,omitempty"`
	Reason string `json:"reason,omitempty"`

	Trade  *TradeEvent  `json:"trade,omitempty"`
	Market *MarketEvent `json:"market,omitempty"`
	Forage *ForageEvent `json:"forage,omitempty"`
}

type TradeEvent struct {
	BuyerID    int     `json:"buyer_id"`
	SellerID   int     `json:"seller_id"`
	PairType   string  `json:"pair_type"`
	Good       string  `json:"good"`
	Numeraire  string  `json:"numeraire"`
	Quantity   string  `json:"quantity"`
	Payment    string  `json:"payment"`
	Price      string  `json:"price"`
	BuyerGain  float64 `json:"buyer_gain"`
	SellerGain float64 `json:"seller_gain"`
	Source     string  `json:"source"`
	Protocol   string  `json:"protocol,omitempty"`
}

type MarketEvent struct {
	MarketID     int    `json:"market_id"`
	Center       [2]int `json:"center"`
	Participants int    `json:"participants"`
	Commodity    string `json:"commodity,omitempty"`
	Numeraire    string `json:"numeraire,omitempty"`
	Price        string `json:"price,omitempty"`
	Quantity     string `json:"quantity,omitempty"`
	Converged    bool   `json:"converged"`
	Iterations   int    `json:"iterations,omitempty"`
}

type ForageEvent struct {
	Pos    [2]int `json:"pos"`
	Good   string `json:"good"`
	Amount string `json:"amount"`
}

// AgentState is the per-agent row of a TICK message.
type AgentState struct {
	ID        int    `json:"id"`
	Pos       [2]int `json:"pos"`
	A         string `json:"A"`
	B         string `json:"B"`
	M         string `json:"M"`
	PartnerID int    `json:"partner_id"`
	Target    string `json:"target,omitempty"`
}

// TICK (server -> observer, and one line per tick in the event log)
type TickMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	Tick            uint64       `json:"tick"`
	Digest          string       `json:"digest"`
	Events          []Event      `json:"events"`
	Agents          []AgentState `json:"agents,omitempty"`
}

// SUBSCRIBE (observer -> server)
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Agents requests per-agent state rows in every TICK.
	Agents bool `json:"agents,omitempty"`
}

// WELCOME (server -> observer)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Agents          int    `json:"agents"`
}
