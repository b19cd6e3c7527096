package entities

import "time"

// ReadableProtocols maps protocol URNs to display names
var ReadableProtocols = map[string]string{
	"urn:oasis:names:tc:SAML:1.1:protocol": "SAML 1.1",
	"urn:oasis:names:tc:SAML:2.0:protocol": "SAML 2.0",
	"urn:mace:shibboleth:1.0":              "Shibboleth 1.0",
}

// Entity represents one SAML entity known to the catalog, keyed by its
// globally unique entityID URI. An entity may belong to several
// federations; its descriptive fields come from a single authoritative
// federation document at reconciliation time.
type Entity struct {
	ID                    string            `json:"id"`
	EntityID              string            `json:"entityid"`
	Name                  map[string]string `json:"name,omitempty"` // display name per language
	RegistrationAuthority string            `json:"registration_authority,omitempty"`
	RegistrationInstant   string            `json:"registration_instant,omitempty"`
	Protocols             []string          `json:"protocols,omitempty"`
	Scopes                []string          `json:"scopes,omitempty"`
	Types                 []string          `json:"types,omitempty"`       // descriptor type xml names
	Federations           []string          `json:"federations,omitempty"` // federation IDs in membership order
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// HasType reports whether the entity carries the given descriptor type
func (e *Entity) HasType(xmlName string) bool {
	for _, t := range e.Types {
		if t == xmlName {
			return true
		}
	}
	return false
}

// HasProtocol reports whether the entity supports the given protocol URN
func (e *Entity) HasProtocol(urn string) bool {
	for _, p := range e.Protocols {
		if p == urn {
			return true
		}
	}
	return false
}

// DisplayProtocols returns human-readable protocol names, falling back
// to the raw URN for unknown protocols.
func (e *Entity) DisplayProtocols() []string {
	out := make([]string, 0, len(e.Protocols))
	for _, p := range e.Protocols {
		if name, ok := ReadableProtocols[p]; ok {
			out = append(out, name)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// EntityType is a descriptor role tag, created lazily the first time a
// new descriptor type is seen in any document.
type EntityType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`     // display name, e.g. "IDP"
	XMLName string `json:"xml_name"` // element name, e.g. "IDPSSODescriptor"
}

// EntityStat is one append-only time-series point: the count of a named
// feature within a federation at a refresh timestamp.
type EntityStat struct {
	ID           string    `json:"id"`
	FederationID string    `json:"federation_id"`
	Feature      string    `json:"feature"`
	Value        int64     `json:"value"`
	Time         time.Time `json:"time"`
}
