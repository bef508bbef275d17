package doctors

import (
	"context"
	"errors"
	"testing"

	"mediMeet/domain"
)

type fakeDoctorRepo struct {
	doctors []domain.User
	calls   int
	err     error
}

func (f *fakeDoctorRepo) FindDoctorByID(ctx context.Context, id uint) (domain.User, error) {
	for _, d := range f.doctors {
		if d.ID == id {
			return d, nil
		}
	}
	return domain.User{}, domain.ErrDoctorNotFound
}

func (f *fakeDoctorRepo) ListVerifiedDoctors(ctx context.Context, specialty string) ([]domain.User, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.doctors, nil
}

type fakeListingCache struct {
	entries map[string][]domain.User
	getErr  error
	sets    int
}

func (f *fakeListingCache) GetDoctorListing(ctx context.Context, specialty string) ([]domain.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if listing, ok := f.entries[specialty]; ok {
		return listing, nil
	}
	return nil, ErrCacheMiss
}

func (f *fakeListingCache) SetDoctorListing(ctx context.Context, specialty string, doctors []domain.User) error {
	f.sets++
	if f.entries == nil {
		f.entries = make(map[string][]domain.User)
	}
	f.entries[specialty] = doctors
	return nil
}

func someDoctor(id uint, specialty string) domain.User {
	return domain.User{
		ID:        id,
		Role:      domain.RoleDoctor,
		FullName:  "Dr. Example",
		Specialty: &specialty,
		Verified:  true,
	}
}

func TestListDoctors_CacheMissFillsCache(t *testing.T) {
	repo := &fakeDoctorRepo{doctors: []domain.User{someDoctor(1, "cardiology")}}
	cache := &fakeListingCache{}
	svc := NewDoctorsService(repo, cache)

	listing, err := svc.ListDoctors(context.Background(), "cardiology")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listing) != 1 || repo.calls != 1 || cache.sets != 1 {
		t.Fatalf("expected db hit + cache fill, got listing=%d calls=%d sets=%d", len(listing), repo.calls, cache.sets)
	}
}

func TestListDoctors_CacheHitSkipsRepo(t *testing.T) {
	repo := &fakeDoctorRepo{}
	cache := &fakeListingCache{entries: map[string][]domain.User{
		"cardiology": {someDoctor(1, "cardiology")},
	}}
	svc := NewDoctorsService(repo, cache)

	listing, err := svc.ListDoctors(context.Background(), "cardiology")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listing) != 1 || repo.calls != 0 {
		t.Fatalf("expected cache hit, got listing=%d repo calls=%d", len(listing), repo.calls)
	}
}

func TestListDoctors_CacheFailureFallsBackToRepo(t *testing.T) {
	repo := &fakeDoctorRepo{doctors: []domain.User{someDoctor(1, "cardiology")}}
	cache := &fakeListingCache{getErr: errors.New("redis down")}
	svc := NewDoctorsService(repo, cache)

	listing, err := svc.ListDoctors(context.Background(), "cardiology")
	if err != nil {
		t.Fatalf("cache failure must not fail the request: %v", err)
	}
	if len(listing) != 1 || repo.calls != 1 {
		t.Fatalf("expected repo fallback, got listing=%d calls=%d", len(listing), repo.calls)
	}
}

func TestGetDoctorByID_NotFound(t *testing.T) {
	svc := NewDoctorsService(&fakeDoctorRepo{}, nil)

	_, err := svc.GetDoctorByID(context.Background(), 42)
	if !errors.Is(err, domain.ErrDoctorNotFound) {
		t.Fatalf("expected doctor not found, got %v", err)
	}
}
