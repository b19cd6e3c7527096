package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"
)

const fixtureDoc = `<?xml version="1.0" encoding="UTF-8"?>
<md:EntitiesDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
    xmlns:mdui="urn:oasis:names:tc:SAML:metadata:ui"
    xmlns:mdrpi="urn:oasis:names:tc:SAML:metadata:rpi"
    xmlns:shibmd="urn:mace:shibboleth:metadata:1.0"
    ID="_aggregate42" Name="Example Federation">
  <md:EntityDescriptor entityID="https://idp.example.org/saml" ID="_ent1">
    <md:Extensions>
      <mdrpi:RegistrationInfo registrationAuthority="https://registry.example.org"
          registrationInstant="2019-04-01T12:00:00Z"/>
    </md:Extensions>
    <md:IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol urn:mace:shibboleth:1.0">
      <md:Extensions>
        <shibmd:Scope regexp="false">example.org</shibmd:Scope>
        <shibmd:Scope regexp="false">example.org</shibmd:Scope>
        <shibmd:Scope regexp="false">students.example.org</shibmd:Scope>
        <mdui:UIInfo>
          <mdui:DisplayName xml:lang="en">Example IdP</mdui:DisplayName>
          <mdui:DisplayName xml:lang="de">Beispiel IdP</mdui:DisplayName>
          <mdui:DisplayName>No Language</mdui:DisplayName>
          <mdui:Description xml:lang="en">Identity provider of Example Org</mdui:Description>
          <mdui:InformationURL xml:lang="fr">https://example.org/info</mdui:InformationURL>
          <mdui:PrivacyStatementURL xml:lang="en">https://example.org/privacy</mdui:PrivacyStatementURL>
          <mdui:Logo width="64" height="48" xml:lang="en">https://example.org/logo.png</mdui:Logo>
          <mdui:Logo>https://example.org/nosize.png</mdui:Logo>
          <mdui:Logo width="16" height="16">   </mdui:Logo>
        </mdui:UIInfo>
      </md:Extensions>
    </md:IDPSSODescriptor>
    <md:Organization>
      <md:OrganizationName xml:lang="en">Example Org</md:OrganizationName>
      <md:OrganizationDisplayName xml:lang="en">Example Organization</md:OrganizationDisplayName>
      <md:OrganizationURL xml:lang="en">https://example.org</md:OrganizationURL>
    </md:Organization>
    <md:ContactPerson contactType="technical">
      <md:GivenName>Ada</md:GivenName>
      <md:SurName>Lovelace</md:SurName>
      <md:EmailAddress>mailto:ada@example.org</md:EmailAddress>
    </md:ContactPerson>
    <md:ContactPerson contactType="support">
      <md:EmailAddress>support@example.org</md:EmailAddress>
    </md:ContactPerson>
  </md:EntityDescriptor>
  <md:EntityDescriptor entityID="https://sp.example.edu/shibboleth">
    <md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
      <md:Extensions>
        <mdui:UIInfo>
          <mdui:DisplayName xml:lang="en">Example SP</mdui:DisplayName>
        </mdui:UIInfo>
      </md:Extensions>
      <md:AttributeConsumingService index="0">
        <md:RequestedAttribute Name="urn:oid:0.9.2342.19200300.100.1.3" isRequired="true"/>
        <md:RequestedAttribute Name="urn:oid:2.5.4.42" isRequired="false"/>
        <md:RequestedAttribute Name="urn:oid:2.5.4.4"/>
      </md:AttributeConsumingService>
    </md:SPSSODescriptor>
  </md:EntityDescriptor>
  <md:EntitiesDescriptor Name="nested-group">
    <md:EntityDescriptor entityID="https://both.example.net/saml">
      <md:IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:1.1:protocol"/>
      <md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol"/>
    </md:EntityDescriptor>
  </md:EntitiesDescriptor>
</md:EntitiesDescriptor>`

func newFixtureParser(t *testing.T, doc string) *DocumentParser {
	t.Helper()
	p, err := NewParser(bytes.NewReader([]byte(doc)))
	if err != nil {
		t.Fatalf("NewParser() error = %v", err)
	}
	return p
}

func TestFederationHeader(t *testing.T) {
	p := newFixtureParser(t, fixtureDoc)

	if !p.IsFederation() {
		t.Fatal("IsFederation() = false for an EntitiesDescriptor root")
	}
	header, err := p.FederationHeader()
	if err != nil {
		t.Fatalf("FederationHeader() error = %v", err)
	}
	if header.ID != "_aggregate42" {
		t.Errorf("header.ID = %q", header.ID)
	}
	if header.Name != "Example Federation" {
		t.Errorf("header.Name = %q", header.Name)
	}
}

func TestFederationHeaderSingleEntityRoot(t *testing.T) {
	doc := `<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://solo.example.org"/>`
	p := newFixtureParser(t, doc)

	if p.IsFederation() {
		t.Fatal("IsFederation() = true for an EntityDescriptor root")
	}
	if _, err := p.FederationHeader(); !errors.Is(err, ErrBadFormat) {
		t.Errorf("FederationHeader() error = %v, want ErrBadFormat", err)
	}
}

func TestUnexpectedRoot(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"wrong element", `<Catalog xmlns="urn:example"/>`},
		{"wrong namespace", `<EntitiesDescriptor xmlns="urn:example"/>`},
		{"not xml", `this is not xml`},
		{"empty", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewParser(bytes.NewReader([]byte(tt.doc))); !errors.Is(err, ErrBadFormat) {
				t.Errorf("NewParser() error = %v, want ErrBadFormat", err)
			}
		})
	}
}

func TestEntityIDs(t *testing.T) {
	p := newFixtureParser(t, fixtureDoc)

	ids, err := p.EntityIDs()
	if err != nil {
		t.Fatalf("EntityIDs() error = %v", err)
	}
	want := []string{
		"https://idp.example.org/saml",
		"https://sp.example.edu/shibboleth",
		"https://both.example.net/saml",
	}
	if len(ids) != len(want) {
		t.Fatalf("EntityIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestEntityIDsSingleEntityRoot(t *testing.T) {
	doc := `<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" entityID="https://solo.example.org"><md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol"/></md:EntityDescriptor>`
	p := newFixtureParser(t, doc)

	ids, err := p.EntityIDs()
	if err != nil {
		t.Fatalf("EntityIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "https://solo.example.org" {
		t.Errorf("EntityIDs() = %v", ids)
	}
}

func TestEntityIDsMalformed(t *testing.T) {
	doc := `<md:EntitiesDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata">
  <md:EntityDescriptor entityID="https://a.example.org">`
	p := newFixtureParser(t, doc)

	if _, err := p.EntityIDs(); !errors.Is(err, ErrBadFormat) {
		t.Errorf("EntityIDs() error = %v, want ErrBadFormat", err)
	}
}

func TestEntityDetails(t *testing.T) {
	p := newFixtureParser(t, fixtureDoc)

	entity, err := p.Entity("https://idp.example.org/saml", true)
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}

	if entity.EntityID != "https://idp.example.org/saml" {
		t.Errorf("EntityID = %q", entity.EntityID)
	}
	if entity.FileID != "_ent1" {
		t.Errorf("FileID = %q", entity.FileID)
	}
	if entity.PrimaryType != "IDPSSODescriptor" {
		t.Errorf("PrimaryType = %q", entity.PrimaryType)
	}
	if len(entity.Types) != 1 || entity.Types[0] != "IDPSSODescriptor" {
		t.Errorf("Types = %v", entity.Types)
	}
	if len(entity.Protocols) != 2 || entity.Protocols[0] != "urn:oasis:names:tc:SAML:2.0:protocol" {
		t.Errorf("Protocols = %v", entity.Protocols)
	}

	// nodes without xml:lang are dropped
	if len(entity.DisplayName) != 2 || entity.DisplayName["en"] != "Example IdP" || entity.DisplayName["de"] != "Beispiel IdP" {
		t.Errorf("DisplayName = %v", entity.DisplayName)
	}
	if entity.Description["en"] != "Identity provider of Example Org" {
		t.Errorf("Description = %v", entity.Description)
	}
	if entity.InformationURL["fr"] != "https://example.org/info" {
		t.Errorf("InformationURL = %v", entity.InformationURL)
	}
	if entity.PrivacyURL["en"] != "https://example.org/privacy" {
		t.Errorf("PrivacyURL = %v", entity.PrivacyURL)
	}

	if entity.RegistrationAuthority != "https://registry.example.org" {
		t.Errorf("RegistrationAuthority = %q", entity.RegistrationAuthority)
	}
	if entity.RegistrationInstant != "2019-04-01T12:00:00Z" {
		t.Errorf("RegistrationInstant = %q", entity.RegistrationInstant)
	}

	// duplicates collapse, order preserved
	if len(entity.Scopes) != 2 || entity.Scopes[0] != "example.org" || entity.Scopes[1] != "students.example.org" {
		t.Errorf("Scopes = %v", entity.Scopes)
	}

	// logo with no content dropped, missing dimensions default to zero
	if len(entity.Logos) != 2 {
		t.Fatalf("Logos = %v", entity.Logos)
	}
	if entity.Logos[0].Width != 64 || entity.Logos[0].Height != 48 || entity.Logos[0].Lang != "en" {
		t.Errorf("Logos[0] = %+v", entity.Logos[0])
	}
	if entity.Logos[1].Width != 0 || entity.Logos[1].Height != 0 {
		t.Errorf("Logos[1] = %+v", entity.Logos[1])
	}

	org, ok := entity.Organization["en"]
	if !ok || org.Name != "Example Org" || org.DisplayName != "Example Organization" || org.URL != "https://example.org" {
		t.Errorf("Organization = %v", entity.Organization)
	}

	if len(entity.Contacts) != 2 {
		t.Fatalf("Contacts = %v", entity.Contacts)
	}
	if entity.Contacts[0].GivenName != "Ada" || entity.Contacts[0].SurName != "Lovelace" || entity.Contacts[0].Type != "technical" {
		t.Errorf("Contacts[0] = %+v", entity.Contacts[0])
	}
	if entity.Contacts[1].GivenName != "" || entity.Contacts[1].Email != "support@example.org" {
		t.Errorf("Contacts[1] = %+v", entity.Contacts[1])
	}

	// language union across display name, description, URLs, organization
	wantLangs := map[string]bool{"en": true, "de": true, "fr": true}
	if len(entity.Languages) != len(wantLangs) {
		t.Errorf("Languages = %v", entity.Languages)
	}
	for _, l := range entity.Languages {
		if !wantLangs[l] {
			t.Errorf("unexpected language %q", l)
		}
	}

	if !bytes.Contains(entity.RawXML, []byte(`entityID="https://idp.example.org/saml"`)) {
		t.Errorf("RawXML does not contain the descriptor: %.80s", entity.RawXML)
	}
	if !bytes.HasSuffix(bytes.TrimSpace(entity.RawXML), []byte("</md:EntityDescriptor>")) {
		t.Errorf("RawXML truncated: %.80s...", entity.RawXML)
	}
}

func TestEntityRequestedAttributes(t *testing.T) {
	p := newFixtureParser(t, fixtureDoc)

	entity, err := p.Entity("https://sp.example.edu/shibboleth", true)
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}

	if len(entity.RequiredAttributes) != 1 || entity.RequiredAttributes[0] != "urn:oid:0.9.2342.19200300.100.1.3" {
		t.Errorf("RequiredAttributes = %v", entity.RequiredAttributes)
	}
	// missing isRequired defaults to optional
	if len(entity.OptionalAttributes) != 2 {
		t.Errorf("OptionalAttributes = %v", entity.OptionalAttributes)
	}
}

func TestEntityMultipleRoles(t *testing.T) {
	p := newFixtureParser(t, fixtureDoc)

	entity, err := p.Entity("https://both.example.net/saml", false)
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}

	if len(entity.Types) != 2 {
		t.Fatalf("Types = %v", entity.Types)
	}
	// preference order fixes the primary type regardless of document order
	if entity.PrimaryType != "IDPSSODescriptor" {
		t.Errorf("PrimaryType = %q", entity.PrimaryType)
	}
	if len(entity.Protocols) != 1 || entity.Protocols[0] != "urn:oasis:names:tc:SAML:1.1:protocol" {
		t.Errorf("Protocols = %v (primary role selects the enumeration)", entity.Protocols)
	}
}

func TestEntityWithoutDetails(t *testing.T) {
	p := newFixtureParser(t, fixtureDoc)

	entity, err := p.Entity("https://idp.example.org/saml", false)
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}

	if entity.DisplayName["en"] != "Example IdP" {
		t.Errorf("DisplayName should be extracted without details: %v", entity.DisplayName)
	}
	if entity.RegistrationAuthority == "" {
		t.Error("RegistrationAuthority should be extracted without details")
	}
	if entity.Description != nil || entity.Organization != nil || entity.Contacts != nil || entity.Languages != nil {
		t.Error("detail fields should stay empty without details")
	}
}

func TestEntityNotFound(t *testing.T) {
	p := newFixtureParser(t, fixtureDoc)

	if _, err := p.Entity("https://missing.example.org", true); !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("Entity() error = %v, want ErrEntityNotFound", err)
	}
}

// TestEntityIDsLargeDocument exercises the streaming pass over an
// aggregate with 10,000 descriptors. The pass must return every ID
// without retaining subtrees: once the result is released, the live
// heap must be back within a fixed bound regardless of document size.
func TestEntityIDsLargeDocument(t *testing.T) {
	const n = 10000

	var sb strings.Builder
	sb.WriteString(`<md:EntitiesDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata" xmlns:mdui="urn:oasis:names:tc:SAML:metadata:ui" Name="big">`)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, `<md:EntityDescriptor entityID="https://entity-%d.example.org/saml">
<md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
<md:Extensions><mdui:UIInfo><mdui:DisplayName xml:lang="en">Entity %d</mdui:DisplayName></mdui:UIInfo></md:Extensions>
</md:SPSSODescriptor>
</md:EntityDescriptor>`, i, i)
	}
	sb.WriteString(`</md:EntitiesDescriptor>`)

	p := newFixtureParser(t, sb.String())

	runtime.GC()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	// the ID slice stays scoped to the closure so only parser-internal
	// retention can show up in the heap afterwards
	count, lastID := func() (int, string) {
		ids, err := p.EntityIDs()
		if err != nil {
			t.Fatalf("EntityIDs() error = %v", err)
		}
		if len(ids) == 0 {
			t.Fatal("EntityIDs() returned no IDs")
		}
		return len(ids), ids[len(ids)-1]
	}()

	runtime.GC()
	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	if count != n {
		t.Fatalf("len(ids) = %d, want %d", count, n)
	}
	if lastID != fmt.Sprintf("https://entity-%d.example.org/saml", n-1) {
		t.Errorf("last id = %q", lastID)
	}

	const heapBound = 1 << 20 // independent of descriptor count
	if after.HeapAlloc > before.HeapAlloc && after.HeapAlloc-before.HeapAlloc > heapBound {
		t.Errorf("live heap grew by %d bytes across the pass, want under %d",
			after.HeapAlloc-before.HeapAlloc, heapBound)
	}

	// a targeted second pass still finds a late entity
	entity, err := p.Entity(lastID, false)
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}
	if entity.PrimaryType != "SPSSODescriptor" {
		t.Errorf("PrimaryType = %q", entity.PrimaryType)
	}
}
