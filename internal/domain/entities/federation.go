package entities

import "time"

// Federation types as published by registries
const (
	FederationTypeHubAndSpoke = "hub-and-spoke"
	FederationTypeMesh        = "mesh"
)

// Federation represents one federation whose metadata document is
// aggregated into the catalog.
type Federation struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Slug                  string     `json:"slug"`
	Type                  string     `json:"type,omitempty"` // hub-and-spoke, mesh, or empty
	URL                   string     `json:"url,omitempty"`  // federation home page
	MetadataURL           string     `json:"metadata_url,omitempty"`
	FileID                string     `json:"file_id,omitempty"`     // ID attribute of the last parsed document root
	Fingerprint           string     `json:"fingerprint,omitempty"` // digest of the last stored document
	RegistrationAuthority string     `json:"registration_authority,omitempty"`
	Country               string     `json:"country,omitempty"`
	IsInterfederation     bool       `json:"is_interfederation"`
	MetadataUpdate        *time.Time `json:"metadata_update,omitempty"` // last successful refresh
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}
