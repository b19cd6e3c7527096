package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/devilmonastery/fedmet/internal/domain/entities"
	"github.com/devilmonastery/fedmet/internal/domain/repositories"
	"github.com/devilmonastery/fedmet/internal/metadata"
	"github.com/devilmonastery/fedmet/internal/notify"
	"github.com/devilmonastery/fedmet/internal/pkg/metrics"
)

// RefreshService drives one refresh run: for every federation it
// fetches the remote document, skips unchanged content, and feeds
// changed documents through parse, reconcile and persist. One
// federation's failure never stops the run; it is reported, notified,
// and the loop moves on.
type RefreshService struct {
	fedRepo    repositories.FederationRepository
	fetcher    *metadata.Fetcher
	store      *metadata.Store
	reconciler *ReconcileService
	stats      *StatsService
	notifier   notify.Notifier
	subject    string
	log        *slog.Logger
}

// NewRefreshService creates a new refresh service
func NewRefreshService(
	fedRepo repositories.FederationRepository,
	fetcher *metadata.Fetcher,
	store *metadata.Store,
	reconciler *ReconcileService,
	stats *StatsService,
	notifier notify.Notifier,
	subjectPrefix string,
	log *slog.Logger,
) *RefreshService {
	return &RefreshService{
		fedRepo:    fedRepo,
		fetcher:    fetcher,
		store:      store,
		reconciler: reconciler,
		stats:      stats,
		notifier:   notifier,
		subject:    subjectPrefix,
		log:        log,
	}
}

// RefreshReport summarizes one refresh run. Every stat row written
// during the run carries the single Time value, so points from the same
// run line up across federations.
type RefreshReport struct {
	Time      time.Time
	Refreshed []string                   // slugs whose documents were reconciled
	Unchanged []string                   // slugs skipped by the fingerprint gate
	Outcomes  map[string]*RefreshOutcome // per-federation counts for reconciled documents
	Failures  map[string]string          // slug -> error message
}

// RefreshOutcome reports what one federation's refresh did
type RefreshOutcome struct {
	Changed bool
	Removed int
	Updated int
	Orphans []string
}

// Failed reports whether any federation in the run failed
func (r *RefreshReport) Failed() bool { return len(r.Failures) > 0 }

// Refresh runs a refresh over all federations, or over a single one
// when slugFilter is non-empty. force bypasses the fingerprint gate.
func (s *RefreshService) Refresh(ctx context.Context, slugFilter string, force bool) (*RefreshReport, error) {
	feds, err := s.targetFederations(ctx, slugFilter)
	if err != nil {
		return nil, err
	}

	report := &RefreshReport{
		Time:     time.Now().UTC(),
		Outcomes: make(map[string]*RefreshOutcome),
		Failures: make(map[string]string),
	}

	for _, fed := range feds {
		outcome, err := s.refreshGuarded(ctx, fed, report.Time, force)

		switch {
		case err != nil:
			report.Failures[fed.Slug] = err.Error()
			metrics.FederationRefreshes.WithLabelValues(fed.Slug, "error").Inc()
			s.log.Error("federation refresh failed",
				slog.String("federation", fed.Slug),
				slog.String("error", err.Error()))
			s.notifyFailure(ctx, fed, err)
		case outcome.Changed:
			report.Refreshed = append(report.Refreshed, fed.Slug)
			report.Outcomes[fed.Slug] = outcome
			metrics.FederationRefreshes.WithLabelValues(fed.Slug, "ok").Inc()
		default:
			report.Unchanged = append(report.Unchanged, fed.Slug)
			metrics.FederationRefreshes.WithLabelValues(fed.Slug, "unchanged").Inc()
		}
	}

	if report.Failed() {
		metrics.RefreshRuns.WithLabelValues("error").Inc()
	} else {
		metrics.RefreshRuns.WithLabelValues("ok").Inc()
	}

	s.log.Info("refresh run finished",
		slog.Time("run", report.Time),
		slog.Int("refreshed", len(report.Refreshed)),
		slog.Int("unchanged", len(report.Unchanged)),
		slog.Int("failed", len(report.Failures)))

	return report, nil
}

func (s *RefreshService) targetFederations(ctx context.Context, slugFilter string) ([]*entities.Federation, error) {
	if slugFilter != "" {
		fed, err := s.fedRepo.GetBySlug(ctx, slugFilter)
		if err != nil {
			return nil, err
		}
		return []*entities.Federation{fed}, nil
	}
	return s.fedRepo.List(ctx)
}

// refreshGuarded turns a panic inside one federation's refresh into an
// ordinary error so a malformed document or a repository bug cannot
// take down the rest of the run.
func (s *RefreshService) refreshGuarded(ctx context.Context, fed *entities.Federation, at time.Time, force bool) (outcome *RefreshOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic refreshing %s: %v", fed.Slug, r)
		}
	}()
	return s.RefreshFederation(ctx, fed, at, force)
}

// RefreshFederation refreshes a single federation and reports what the
// refresh did. The order is deliberate: reconcile first, then
// store the document, then record the new fingerprint. A failure at any
// step leaves the old fingerprint in place, so the next run fetches and
// retries the same content instead of silently skipping it.
//
// Statistics are recorded for every attempt, even failed ones, so the
// time series has a point per run per federation.
func (s *RefreshService) RefreshFederation(ctx context.Context, fed *entities.Federation, at time.Time, force bool) (*RefreshOutcome, error) {
	defer func() {
		if err := s.stats.Record(ctx, fed, at); err != nil {
			s.log.Error("failed to record statistics",
				slog.String("federation", fed.Slug),
				slog.String("error", err.Error()))
		}
	}()

	data, err := s.fetcher.Fetch(ctx, fed.MetadataURL)
	if errors.Is(err, metadata.ErrNoSource) {
		s.log.Info("federation has no metadata source", slog.String("federation", fed.Slug))
		return &RefreshOutcome{}, nil
	}
	if err != nil {
		return nil, err
	}

	if !force && !metadata.Changed(fed.Fingerprint, data) {
		s.log.Debug("metadata unchanged", slog.String("federation", fed.Slug))
		return &RefreshOutcome{}, nil
	}

	parser, err := metadata.NewParser(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if err := s.applyHeader(ctx, fed, parser); err != nil {
		return nil, err
	}

	result, err := s.reconciler.Reconcile(ctx, fed, parser)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(fed.Slug, data); err != nil {
		return nil, err
	}
	if err := s.fedRepo.UpdateDocumentState(ctx, fed.ID, metadata.Fingerprint(data), parser.FileID(), at); err != nil {
		return nil, fmt.Errorf("failed to record document state: %w", err)
	}
	fed.Fingerprint = metadata.Fingerprint(data)
	fed.FileID = parser.FileID()
	fed.MetadataUpdate = &at

	s.log.Info("federation refreshed",
		slog.String("federation", fed.Slug),
		slog.Int("bytes", len(data)),
		slog.Int("removed", result.Removed),
		slog.Int("updated", result.Updated),
		slog.Int("orphans", len(result.Orphans)))

	return &RefreshOutcome{
		Changed: true,
		Removed: result.Removed,
		Updated: result.Updated,
		Orphans: result.Orphans,
	}, nil
}

// applyHeader folds the document root attributes into the federation
// record. A published name wins over the locally configured one; the
// slug follows the name so on-disk documents stay addressable.
func (s *RefreshService) applyHeader(ctx context.Context, fed *entities.Federation, parser *metadata.DocumentParser) error {
	if !parser.IsFederation() {
		return nil
	}
	header, err := parser.FederationHeader()
	if err != nil {
		return err
	}
	if header.Name == "" || header.Name == fed.Name {
		return nil
	}

	fed.Name = header.Name
	fed.Slug = FederationSlug(header.Name)
	fed.UpdatedAt = time.Now()
	if err := s.fedRepo.Update(ctx, fed); err != nil {
		return fmt.Errorf("failed to rename federation: %w", err)
	}
	s.log.Info("federation renamed from document header",
		slog.String("federation", fed.Slug),
		slog.String("name", header.Name))
	return nil
}

func (s *RefreshService) notifyFailure(ctx context.Context, fed *entities.Federation, refreshErr error) {
	subject := s.subject + " " + fed.Name
	body := fmt.Sprintf("Refreshing federation %q (%s) failed:\n\n%s\n",
		fed.Name, fed.MetadataURL, refreshErr.Error())

	if err := s.notifier.Notify(ctx, subject, body); err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		s.log.Error("failed to send notification",
			slog.String("federation", fed.Slug),
			slog.String("error", err.Error()))
		return
	}
	metrics.NotificationsSent.WithLabelValues("ok").Inc()
}
