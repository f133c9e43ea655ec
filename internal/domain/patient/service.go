package patient

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cnics/mireview/internal/platform/apperr"
)

// Service resolves patients for event creation. When a registry is
// configured it is authoritative and every hit is mirrored into the primary
// database; otherwise the mirror itself is the store.
type Service struct {
	mirror   MirrorStore
	registry Store
	writable bool
	logger   zerolog.Logger
}

func NewService(mirror MirrorStore, logger zerolog.Logger) *Service {
	return &Service{mirror: mirror, logger: logger}
}

// SetRegistry makes an external store authoritative for lookups and
// creates.
func (s *Service) SetRegistry(registry Store) {
	s.registry = registry
}

// SetWritable allows FindOrCreate to create missing patients.
func (s *Service) SetWritable(writable bool) {
	s.writable = writable
}

func (s *Service) authority() Store {
	if s.registry != nil {
		return s.registry
	}
	return s.mirror
}

// FindOrCreate looks the patient up by its external key and creates it when
// missing and the store is writable. The write is not part of any caller
// transaction.
func (s *Service) FindOrCreate(ctx context.Context, sitePatientID, site string) (*Patient, error) {
	sitePatientID = strings.TrimSpace(sitePatientID)
	site = strings.TrimSpace(site)
	if sitePatientID == "" || site == "" {
		return nil, apperr.Validation("site_patient_id and site are required")
	}

	store := s.authority()
	p, err := store.FindByKey(ctx, sitePatientID, site)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		if !s.writable {
			return nil, apperr.Validationf("No patient found with id %s at site %s", sitePatientID, site)
		}
		p = &Patient{SitePatientID: sitePatientID, Site: site}
		if err := store.Create(ctx, p); err != nil {
			return nil, apperr.Unavailable("patient store unavailable", err)
		}
		s.logger.Info().Int64("patient_id", p.ID).Str("site", site).Msg("patient created")
	default:
		return nil, apperr.Unavailable("patient store unavailable", err)
	}

	if s.registry != nil {
		if err := s.mirror.Upsert(ctx, p); err != nil {
			s.logger.Error().Err(err).Int64("patient_id", p.ID).Str("site", site).Msg("patient mirror upsert failed")
			return nil, apperr.Unavailable("patient mirror out of sync with registry", err)
		}
	}
	return p, nil
}
