// Package relay streams committed market events to WebSocket subscribers.
//
// Clients subscribe per market address, or to "*" for every market:
//
//	-> {"action":"subscribe","markets":["<market>"]}
//	<- {"type":"subscribed","markets":["<market>"]}
//	<- {"type":"event","event":{...}}
package relay

import "prediction-market-amm/internal/domain"

// AllMarkets subscribes to every market.
const AllMarkets = "*"

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"

	typeEvent      = "event"
	typeSubscribed = "subscribed"
	typeError      = "error"
)

type request struct {
	Action  string   `json:"action"`
	Markets []string `json:"markets"`
}

type message struct {
	Type    string        `json:"type"`
	Event   *domain.Event `json:"event,omitempty"`
	Markets []string      `json:"markets,omitempty"`
	Error   string        `json:"error,omitempty"`
}
