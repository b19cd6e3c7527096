package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/pkg/metrics"
)

// SAML metadata namespaces consumed by the parser
const (
	nsMD     = "urn:oasis:names:tc:SAML:2.0:metadata"
	nsMDUI   = "urn:oasis:names:tc:SAML:metadata:ui"
	nsMDRPI  = "urn:oasis:names:tc:SAML:metadata:rpi"
	nsShibMD = "urn:mace:shibboleth:metadata:1.0"
)

// DescriptorTypes is the fixed preference order for entity roles. The
// first present type is the primary type used for protocol lookup.
var DescriptorTypes = []string{"IDPSSODescriptor", "SPSSODescriptor"}

// DescriptorTypeDisplay maps a descriptor xml name to its display name
func DescriptorTypeDisplay(xmlName string) string {
	return strings.Replace(xmlName, "SSODescriptor", "", 1)
}

// Source is a metadata document that can be scanned repeatedly and
// sliced for raw fragments. *os.File and *bytes.Reader both qualify.
type Source interface {
	io.ReadSeeker
	io.ReaderAt
}

// DocumentParser streams over one SAML metadata document. Entity
// subtrees are discarded as soon as they are consumed, so memory stays
// bounded no matter how many descriptors the aggregate holds. Listing
// IDs and extracting a single entity are separate forward-only passes.
type DocumentParser struct {
	src          Source
	closer       io.Closer
	fileID       string
	name         string
	isFederation bool
	rootEntityID string
}

// NewParser opens a parser over an in-memory or file-backed document.
// Only the root element is read here; the body is left untouched until
// a pass asks for it. A root that is neither an EntitiesDescriptor nor
// an EntityDescriptor fails with ErrBadFormat.
func NewParser(src Source) (*DocumentParser, error) {
	p := &DocumentParser{src: src}
	if err := p.readRoot(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewParserFromFile opens a parser over a document on disk. The caller
// owns Close.
func NewParserFromFile(path string) (*DocumentParser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	p, err := NewParser(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.closer = f
	return p, nil
}

// Close releases the underlying file, if any
func (p *DocumentParser) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// FileID returns the ID attribute of the document root, if present
func (p *DocumentParser) FileID() string { return p.fileID }

// IsFederation reports whether the root is a federation container
// (EntitiesDescriptor) rather than a single entity.
func (p *DocumentParser) IsFederation() bool { return p.isFederation }

// FederationHeader returns the root element's ID and Name attributes.
// It never scans past the root element.
func (p *DocumentParser) FederationHeader() (*entities.FederationHeader, error) {
	if !p.isFederation {
		return nil, fmt.Errorf("%w: root element is not a federation container", ErrBadFormat)
	}
	return &entities.FederationHeader{ID: p.fileID, Name: p.name}, nil
}

func (p *DocumentParser) readRoot() error {
	if _, err := p.src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	dec := xml.NewDecoder(p.src)
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Space != nsMD {
			return fmt.Errorf("%w: unexpected root element %s", ErrBadFormat, se.Name.Local)
		}
		switch se.Name.Local {
		case "EntitiesDescriptor":
			p.isFederation = true
		case "EntityDescriptor":
			p.rootEntityID = attrValue(se.Attr, "entityID")
		default:
			return fmt.Errorf("%w: unexpected root element %s", ErrBadFormat, se.Name.Local)
		}
		p.fileID = attrValue(se.Attr, "ID")
		p.name = attrValue(se.Attr, "Name")
		return nil
	}
}

// EntityIDs streams once over the document and collects the entityID of
// every entity descriptor, discarding each subtree immediately.
func (p *DocumentParser) EntityIDs() ([]string, error) {
	start := time.Now()
	defer func() {
		metrics.ParseDuration.WithLabelValues("ids").Observe(float64(time.Since(start).Milliseconds()))
	}()

	if _, err := p.src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	dec := xml.NewDecoder(p.src)

	var ids []string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Space == nsMD && se.Name.Local == "EntityDescriptor" {
			if id := attrValue(se.Attr, "entityID"); id != "" {
				ids = append(ids, id)
			}
			// drop the whole subtree, keeping memory flat
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
			}
		}
		// nested EntitiesDescriptor groups are descended into naturally
	}
}

// Entity scans until it finds the descriptor with the given entityID
// and extracts its record. Descriptors that do not match are skipped
// without being materialized. details=false limits extraction to the
// fields reconciliation compares; details=true pulls the full record.
func (p *DocumentParser) Entity(entityID string, details bool) (*entities.ParsedEntity, error) {
	start := time.Now()
	defer func() {
		metrics.ParseDuration.WithLabelValues("entity").Observe(float64(time.Since(start).Milliseconds()))
	}()

	if _, err := p.src.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	dec := xml.NewDecoder(p.src)

	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Space != nsMD || se.Name.Local != "EntityDescriptor" {
			continue
		}
		if attrValue(se.Attr, "entityID") != entityID {
			if err := dec.Skip(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
			}
			continue
		}

		var desc entityDescriptorXML
		if err := dec.DecodeElement(&desc, &se); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
		}

		raw, err := p.rawFragment(offset, dec.InputOffset())
		if err != nil {
			return nil, err
		}
		return buildParsedEntity(&desc, raw, details), nil
	}
}

// rawFragment slices the exact source bytes of one element
func (p *DocumentParser) rawFragment(start, end int64) ([]byte, error) {
	if end <= start {
		return nil, nil
	}
	raw := make([]byte, end-start)
	if _, err := io.ReadFull(io.NewSectionReader(p.src, start, end-start), raw); err != nil {
		return nil, fmt.Errorf("%w: extracting raw fragment: %v", ErrBadFormat, err)
	}
	return raw, nil
}

func attrValue(attrs []xml.Attr, local string) string {
	for _, a := range attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// XML binding structs. Tags carry the full namespace so that foreign
// elements with colliding local names cannot leak in.

type entityDescriptorXML struct {
	EntityID      string         `xml:"entityID,attr"`
	FileID        string         `xml:"ID,attr"`
	IDPSSO        *roleXML       `xml:"urn:oasis:names:tc:SAML:2.0:metadata IDPSSODescriptor"`
	SPSSO         *roleXML       `xml:"urn:oasis:names:tc:SAML:2.0:metadata SPSSODescriptor"`
	Extensions    *extensionsXML `xml:"urn:oasis:names:tc:SAML:2.0:metadata Extensions"`
	Organizations []orgXML       `xml:"urn:oasis:names:tc:SAML:2.0:metadata Organization"`
	Contacts      []contactXML   `xml:"urn:oasis:names:tc:SAML:2.0:metadata ContactPerson"`
}

func (d *entityDescriptorXML) role(xmlName string) *roleXML {
	switch xmlName {
	case "IDPSSODescriptor":
		return d.IDPSSO
	case "SPSSODescriptor":
		return d.SPSSO
	}
	return nil
}

type roleXML struct {
	Protocols  string         `xml:"protocolSupportEnumeration,attr"`
	Extensions *extensionsXML `xml:"urn:oasis:names:tc:SAML:2.0:metadata Extensions"`
	ACS        []acsXML       `xml:"urn:oasis:names:tc:SAML:2.0:metadata AttributeConsumingService"`
}

type extensionsXML struct {
	RegistrationInfo *regInfoXML `xml:"urn:oasis:names:tc:SAML:metadata:rpi RegistrationInfo"`
	Scopes           []scopeXML  `xml:"urn:mace:shibboleth:metadata:1.0 Scope"`
	UIInfo           *uiInfoXML  `xml:"urn:oasis:names:tc:SAML:metadata:ui UIInfo"`
}

type regInfoXML struct {
	Authority string `xml:"registrationAuthority,attr"`
	Instant   string `xml:"registrationInstant,attr"`
}

type scopeXML struct {
	Value string `xml:",chardata"`
}

type uiInfoXML struct {
	DisplayNames    []localizedXML `xml:"urn:oasis:names:tc:SAML:metadata:ui DisplayName"`
	Descriptions    []localizedXML `xml:"urn:oasis:names:tc:SAML:metadata:ui Description"`
	InformationURLs []localizedXML `xml:"urn:oasis:names:tc:SAML:metadata:ui InformationURL"`
	PrivacyURLs     []localizedXML `xml:"urn:oasis:names:tc:SAML:metadata:ui PrivacyStatementURL"`
	Logos           []logoXML      `xml:"urn:oasis:names:tc:SAML:metadata:ui Logo"`
}

type localizedXML struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

type logoXML struct {
	Width  string `xml:"width,attr"`
	Height string `xml:"height,attr"`
	Lang   string `xml:"lang,attr"`
	Value  string `xml:",chardata"`
}

type orgXML struct {
	Names        []localizedXML `xml:"urn:oasis:names:tc:SAML:2.0:metadata OrganizationName"`
	DisplayNames []localizedXML `xml:"urn:oasis:names:tc:SAML:2.0:metadata OrganizationDisplayName"`
	URLs         []localizedXML `xml:"urn:oasis:names:tc:SAML:2.0:metadata OrganizationURL"`
}

type acsXML struct {
	RequestedAttributes []reqAttrXML `xml:"urn:oasis:names:tc:SAML:2.0:metadata RequestedAttribute"`
}

type reqAttrXML struct {
	Name       string `xml:"Name,attr"`
	IsRequired string `xml:"isRequired,attr"`
}

type contactXML struct {
	Type      string `xml:"contactType,attr"`
	GivenName string `xml:"urn:oasis:names:tc:SAML:2.0:metadata GivenName"`
	SurName   string `xml:"urn:oasis:names:tc:SAML:2.0:metadata SurName"`
	Email     string `xml:"urn:oasis:names:tc:SAML:2.0:metadata EmailAddress"`
}

// buildParsedEntity converts the decoded element into the domain record
func buildParsedEntity(desc *entityDescriptorXML, raw []byte, details bool) *entities.ParsedEntity {
	entity := &entities.ParsedEntity{
		EntityID: desc.EntityID,
		FileID:   desc.FileID,
		RawXML:   raw,
	}

	var roles []*roleXML
	for _, xmlName := range DescriptorTypes {
		if role := desc.role(xmlName); role != nil {
			entity.Types = append(entity.Types, xmlName)
			roles = append(roles, role)
		}
	}
	if len(entity.Types) > 0 {
		entity.PrimaryType = entity.Types[0]
		entity.Protocols = strings.Fields(roles[0].Protocols)
	}

	// extension blocks in document order: entity-level first, then roles
	exts := []*extensionsXML{desc.Extensions}
	for _, role := range roles {
		exts = append(exts, role.Extensions)
	}

	var langs []string
	seen := map[string]bool{}
	trackLangs := func(m map[string]string) {
		for _, l := range orderedKeys(m) {
			if !seen[l] {
				seen[l] = true
				langs = append(langs, l)
			}
		}
	}

	entity.DisplayName = localizedMap(exts, func(ui *uiInfoXML) []localizedXML { return ui.DisplayNames })
	trackLangs(entity.DisplayName)

	for _, ext := range exts {
		if ext == nil || ext.RegistrationInfo == nil {
			continue
		}
		entity.RegistrationAuthority = ext.RegistrationInfo.Authority
		if details {
			entity.RegistrationInstant = ext.RegistrationInfo.Instant
		}
		break
	}

	if !details {
		return entity
	}

	entity.Description = localizedMap(exts, func(ui *uiInfoXML) []localizedXML { return ui.Descriptions })
	trackLangs(entity.Description)
	entity.InformationURL = localizedMap(exts, func(ui *uiInfoXML) []localizedXML { return ui.InformationURLs })
	trackLangs(entity.InformationURL)
	entity.PrivacyURL = localizedMap(exts, func(ui *uiInfoXML) []localizedXML { return ui.PrivacyURLs })
	trackLangs(entity.PrivacyURL)

	entity.Organization = organizationMap(desc.Organizations)
	trackLangsOrg(entity.Organization, seen, &langs)

	for _, ext := range exts {
		if ext == nil || ext.UIInfo == nil {
			continue
		}
		for _, logo := range ext.UIInfo.Logos {
			file := strings.TrimSpace(logo.Value)
			if file == "" {
				continue // the file content is required
			}
			entity.Logos = append(entity.Logos, entities.Logo{
				Width:  atoiDefault(logo.Width),
				Height: atoiDefault(logo.Height),
				File:   file,
				Lang:   logo.Lang,
			})
		}
	}

	scopeSeen := map[string]bool{}
	for _, ext := range exts {
		if ext == nil {
			continue
		}
		for _, scope := range ext.Scopes {
			v := strings.TrimSpace(scope.Value)
			if v == "" || scopeSeen[v] {
				continue
			}
			scopeSeen[v] = true
			entity.Scopes = append(entity.Scopes, v)
		}
	}

	for _, role := range roles {
		for _, acs := range role.ACS {
			for _, attr := range acs.RequestedAttributes {
				if attr.Name == "" {
					continue
				}
				if attr.IsRequired == "true" {
					entity.RequiredAttributes = append(entity.RequiredAttributes, attr.Name)
				} else {
					entity.OptionalAttributes = append(entity.OptionalAttributes, attr.Name)
				}
			}
		}
	}

	for _, c := range desc.Contacts {
		entity.Contacts = append(entity.Contacts, entities.Contact{
			Type:      c.Type,
			GivenName: strings.TrimSpace(c.GivenName),
			SurName:   strings.TrimSpace(c.SurName),
			Email:     strings.TrimSpace(c.Email),
		})
	}

	entity.Languages = langs
	return entity
}

// localizedMap folds UIInfo entries across extension blocks into a
// lang-keyed map. Nodes without a lang attribute are dropped because
// the language is the map key.
func localizedMap(exts []*extensionsXML, pick func(*uiInfoXML) []localizedXML) map[string]string {
	var out map[string]string
	for _, ext := range exts {
		if ext == nil || ext.UIInfo == nil {
			continue
		}
		for _, node := range pick(ext.UIInfo) {
			if node.Lang == "" {
				continue // the lang attribute is required
			}
			if out == nil {
				out = map[string]string{}
			}
			out[node.Lang] = strings.TrimSpace(node.Value)
		}
	}
	return out
}

func organizationMap(orgs []orgXML) map[string]entities.Organization {
	var out map[string]entities.Organization
	set := func(lang string, apply func(*entities.Organization)) {
		if lang == "" {
			return
		}
		if out == nil {
			out = map[string]entities.Organization{}
		}
		org := out[lang]
		apply(&org)
		out[lang] = org
	}
	for _, o := range orgs {
		for _, n := range o.Names {
			v := strings.TrimSpace(n.Value)
			set(n.Lang, func(org *entities.Organization) { org.Name = v })
		}
		for _, n := range o.DisplayNames {
			v := strings.TrimSpace(n.Value)
			set(n.Lang, func(org *entities.Organization) { org.DisplayName = v })
		}
		for _, n := range o.URLs {
			v := strings.TrimSpace(n.Value)
			set(n.Lang, func(org *entities.Organization) { org.URL = v })
		}
	}
	return out
}

func trackLangsOrg(orgs map[string]entities.Organization, seen map[string]bool, langs *[]string) {
	keys := make([]string, 0, len(orgs))
	for k := range orgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, l := range keys {
		if !seen[l] {
			seen[l] = true
			*langs = append(*langs, l)
		}
	}
}

func orderedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func atoiDefault(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
