package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"attribution-engine/internal/domain"
)

// Envelope is one touchpoint payload received from a streaming source.
type Envelope struct {
	TenantID string
	Input    domain.TouchpointInput
	Source   string

	// Ack marks the message as processed. Nil for sources without acknowledgement.
	Ack func(ctx context.Context) error

	// AckOnly envelopes carry no touchpoint. They keep acknowledgements of
	// empty or undecodable messages in delivery order.
	AckOnly bool
}

// TouchpointSource streams touchpoint payloads from an external feed.
type TouchpointSource interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Subscribe starts delivery. The channel is closed when ctx is cancelled
	// or the source is closed.
	Subscribe(ctx context.Context) (<-chan *Envelope, error)

	// Close releases the source.
	Close() error
}

// DecodePayload decodes a JSON frame holding one touchpoint or an array of them.
// Items without a tenantId take defaultTenant.
func DecodePayload(data []byte, defaultTenant string) ([]domain.TouchpointInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var items []domain.TouchpointInput
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode touchpoint batch: %w", err)
		}
	} else {
		var in domain.TouchpointInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("decode touchpoint: %w", err)
		}
		items = []domain.TouchpointInput{in}
	}

	for i := range items {
		if items[i].TenantID == "" {
			items[i].TenantID = defaultTenant
		}
	}
	return items, nil
}
