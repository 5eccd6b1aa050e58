package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/internal/events"
)

type Pipeline struct {
	config   *configs.PipelineConfig
	outputCh chan events.ChangeEvent
}

func NewPipeline(cfg *configs.PipelineConfig) *Pipeline {
	return &Pipeline{
		config:   cfg,
		outputCh: make(chan events.ChangeEvent, 100),
	}
}

// Start filters, masks and routes events until eventCh is closed, then closes
// the returned channel.
func (p *Pipeline) Start(eventCh <-chan events.ChangeEvent) <-chan events.ChangeEvent {
	go p.processLoop(eventCh)
	return p.outputCh
}

func (p *Pipeline) processLoop(eventCh <-chan events.ChangeEvent) {
	for event := range eventCh {
		if p.isExcluded(event) {
			continue
		}
		if !p.isKindAllowed(event) {
			continue
		}
		event = p.applyPIIMasks(event)
		event = p.determineRoute(event)
		p.outputCh <- event
	}
	close(p.outputCh)
}

func (p *Pipeline) isExcluded(event events.ChangeEvent) bool {
	return slices.Contains(p.config.ExcludedTables, event.Table)
}

// An empty kinds list lets every kind through.
func (p *Pipeline) isKindAllowed(event events.ChangeEvent) bool {
	tableOptions, exists := p.config.Tables[event.Table]
	if !exists || len(tableOptions.Kinds) == 0 {
		return true
	}
	return slices.Contains(tableOptions.Kinds, event.Kind.String())
}

func (p *Pipeline) applyPIIMasks(event events.ChangeEvent) events.ChangeEvent {
	tableOptions, exists := p.config.Tables[event.Table]
	if !exists {
		return event
	}
	for _, mask := range tableOptions.PIIMasks {
		for _, row := range event.Rows {
			fld, ok := row[mask.Field]
			if !ok || fld == nil {
				continue
			}
			switch mask.Action {
			case "redact":
				row[mask.Field] = "REDACTED"
			case "hash":
				fldStr := fmt.Sprintf("%v", fld)
				if b, ok := fld.([]byte); ok {
					fldStr = string(b)
				}
				hash := sha256.Sum256([]byte(fldStr))
				row[mask.Field] = hex.EncodeToString(hash[:])
			case "mask_partial":
				if s, ok := fld.(string); ok {
					row[mask.Field] = maskPartial(s)
				}
			}
		}
	}

	return event
}

func maskPartial(s string) string {
	n := len(s)
	if n <= 4 {
		return strings.Repeat("*", n)
	}
	return strings.Repeat("*", n-4) + s[n-4:]
}

func (p *Pipeline) determineRoute(event events.ChangeEvent) events.ChangeEvent {
	tableOptions, exists := p.config.Tables[event.Table]
	if !exists || tableOptions.Route == "" {
		event.Route = p.config.DefaultRoute
		return event
	}
	event.Route = tableOptions.Route
	return event
}
