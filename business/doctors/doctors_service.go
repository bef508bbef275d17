package doctors

import (
	"context"
	"errors"

	"mediMeet/domain"
	"mediMeet/pkg/logger"
)

// DoctorRepository contract interface
type DoctorRepository interface {
	FindDoctorByID(ctx context.Context, id uint) (domain.User, error)
	ListVerifiedDoctors(ctx context.Context, specialty string) ([]domain.User, error)
}

// ListingCache is a read-through cache for rendered doctor listings.
type ListingCache interface {
	GetDoctorListing(ctx context.Context, specialty string) ([]domain.User, error)
	SetDoctorListing(ctx context.Context, specialty string, doctors []domain.User) error
}

// ErrCacheMiss must be returned by ListingCache.GetDoctorListing when no
// entry exists for the specialty.
var ErrCacheMiss = errors.New("cache miss")

type DoctorsService struct {
	doctorRepo DoctorRepository
	cache      ListingCache
}

func NewDoctorsService(doctorRepo DoctorRepository, cache ListingCache) *DoctorsService {
	return &DoctorsService{
		doctorRepo: doctorRepo,
		cache:      cache,
	}
}

func (s *DoctorsService) GetDoctorByID(ctx context.Context, id uint) (domain.User, error) {
	doctor, err := s.doctorRepo.FindDoctorByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrDoctorNotFound) {
			logger.Error("Failed to get doctor by ID", err)
		}
		return domain.User{}, err
	}

	return doctor, nil
}

// ListDoctors serves verified doctors for a specialty through the cache. A
// cache failure degrades to the database, never to a request failure.
func (s *DoctorsService) ListDoctors(ctx context.Context, specialty string) ([]domain.User, error) {
	if s.cache != nil {
		cached, err := s.cache.GetDoctorListing(ctx, specialty)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			logger.Warn("Doctor listing cache read failed", err)
		}
	}

	listing, err := s.doctorRepo.ListVerifiedDoctors(ctx, specialty)
	if err != nil {
		logger.Error("Failed to list doctors", err)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetDoctorListing(ctx, specialty, listing); err != nil {
			logger.Warn("Doctor listing cache write failed", err)
		}
	}

	return listing, nil
}
