package services

import (
	"context"
	"testing"
	"time"

	"github.com/devilmonastery/fedmet/internal/config"
	"github.com/devilmonastery/fedmet/internal/domain/entities"
)

func TestStatsCount(t *testing.T) {
	svc := NewStatsService(nil, nil, config.DefaultFeatures(), testLogger())

	members := []*entities.Entity{
		{
			EntityID:  "https://idp1.example.org",
			Types:     []string{"IDPSSODescriptor"},
			Protocols: []string{"urn:oasis:names:tc:SAML:2.0:protocol", "urn:mace:shibboleth:1.0"},
		},
		{
			EntityID:  "https://idp2.example.org",
			Types:     []string{"IDPSSODescriptor"},
			Protocols: []string{"urn:oasis:names:tc:SAML:1.1:protocol"},
		},
		{
			EntityID:  "https://sp.example.org",
			Types:     []string{"SPSSODescriptor"},
			Protocols: []string{"urn:oasis:names:tc:SAML:2.0:protocol"},
		},
		{
			EntityID:  "https://both.example.org",
			Types:     []string{"IDPSSODescriptor", "SPSSODescriptor"},
			Protocols: []string{"urn:oasis:names:tc:SAML:2.0:protocol"},
		},
	}

	counts := svc.Count(members)

	want := map[string]int64{
		"idp":       3,
		"sp":        2,
		"idp_saml2": 2,
		"idp_saml1": 1,
		"idp_shib1": 1,
		"sp_saml2":  2,
		"sp_saml1":  0,
		"sp_shib1":  0,
	}
	for feature, n := range want {
		if counts[feature] != n {
			t.Errorf("Count()[%s] = %d, want %d", feature, counts[feature], n)
		}
	}
}

func TestStatsRecordStampsRunTime(t *testing.T) {
	entityRepo := newFakeEntityRepo()
	statRepo := &fakeStatRepo{}
	svc := NewStatsService(entityRepo, statRepo, config.DefaultFeatures(), testLogger())
	fed := testFederation("fed1", "Test Federation")

	idp := &entities.Entity{
		ID:       "e1",
		EntityID: "https://idp.example.org",
		Types:    []string{"IDPSSODescriptor"},
	}
	if err := entityRepo.Create(context.Background(), idp); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := entityRepo.AddFederation(context.Background(), "e1", "fed1"); err != nil {
		t.Fatalf("AddFederation() error = %v", err)
	}

	at := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	if err := svc.Record(context.Background(), fed, at); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if len(statRepo.rows) != len(config.DefaultFeatures()) {
		t.Fatalf("rows = %d, want %d (one per feature)", len(statRepo.rows), len(config.DefaultFeatures()))
	}
	for _, row := range statRepo.rows {
		if !row.Time.Equal(at) {
			t.Errorf("row %s time = %v, want %v", row.Feature, row.Time, at)
		}
		if row.FederationID != "fed1" {
			t.Errorf("row %s federation = %q, want fed1", row.Feature, row.FederationID)
		}
		if row.ID == "" {
			t.Errorf("row %s has no ID", row.Feature)
		}
	}

	idpRows, _ := statRepo.ListByFeature(context.Background(), "fed1", "idp")
	if len(idpRows) != 1 || idpRows[0].Value != 1 {
		t.Errorf("idp rows = %+v, want a single row with value 1", idpRows)
	}
}
