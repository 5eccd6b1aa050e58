package connector

import "github.com/MathewBravo/realtime-db/internal/events"

type Connector interface {
	Start() (<-chan events.ChangeEvent, error)
	Stop() error
}
