package dataset

import (
	"encoding/json"
	"time"
)

// Dataset is a named extraction configuration. A nil OwnerTenantID marks a
// shared dataset visible to every tenant; otherwise only the owner sees it.
type Dataset struct {
	ID            string          `json:"id"`
	OwnerTenantID *string         `json:"owner_tenant_id,omitempty"`
	Name          string          `json:"name"`
	EntityType    string          `json:"entity_type"`
	Extractor     string          `json:"extractor"`
	Tags          []string        `json:"tags"`
	Sources       []string        `json:"sources"`
	Config        json.RawMessage `json:"config"`
	IsEnabled     bool            `json:"is_enabled"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
