package entities

// ParsedEntity is one entity descriptor extracted from a metadata
// document. Optional fields stay nil/empty when the document never
// carried them, which keeps "absent" distinguishable from "empty" for
// language-set computation.
type ParsedEntity struct {
	EntityID              string
	FileID                string
	Types                 []string // present descriptor types in preference order
	PrimaryType           string   // first matching descriptor type
	DisplayName           map[string]string
	Description           map[string]string
	InformationURL        map[string]string
	PrivacyURL            map[string]string
	Organization          map[string]Organization
	Logos                 []Logo
	RegistrationAuthority string
	RegistrationInstant   string
	Protocols             []string
	Scopes                []string
	RequiredAttributes    []string
	OptionalAttributes    []string
	Contacts              []Contact
	Languages             []string // union of language keys, first-seen order
	RawXML                []byte
}

// Organization is the md:Organization triplet for one language
type Organization struct {
	Name        string
	DisplayName string
	URL         string
}

// Logo is one mdui:Logo entry
type Logo struct {
	Width  int
	Height int
	File   string
	Lang   string
}

// Contact is one md:ContactPerson entry; any field may be absent
type Contact struct {
	Type      string
	GivenName string
	SurName   string
	Email     string
}

// FederationHeader holds the root element attributes of a federation
// container document.
type FederationHeader struct {
	ID   string
	Name string
}
