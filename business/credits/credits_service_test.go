package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediMeet/domain"
)

// fakeLedgerStore mirrors the postgres ledger repository semantics in memory:
// every method is one atomic unit, the allocation idempotency key is
// re-checked under the lock, and the balance check runs inside the transfer.
type fakeLedgerStore struct {
	mu    sync.Mutex
	users map[uint]*domain.User
	rows  []domain.CreditTransaction
	refID uint
}

func newFakeLedgerStore(users ...domain.User) *fakeLedgerStore {
	s := &fakeLedgerStore{users: make(map[uint]*domain.User)}
	for i := range users {
		u := users[i]
		s.users[u.ID] = &u
	}
	return s
}

func (s *fakeLedgerStore) AllocateCredits(ctx context.Context, userID uint, amount int, packageID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}

	now := time.Now()
	for _, row := range s.rows {
		if row.UserID != userID || row.Type != domain.TxTypeCreditPurchase || row.PackageID == nil {
			continue
		}
		if *row.PackageID == packageID && row.CreatedAt.Year() == now.Year() && row.CreatedAt.Month() == now.Month() {
			return domain.User{}, domain.ErrAlreadyAllocated
		}
	}

	s.appendRow(userID, amount, domain.TxTypeCreditPurchase, &packageID)
	user.Credits += amount

	return *user, nil
}

func (s *fakeLedgerStore) TransferCredits(ctx context.Context, patientID, doctorID uint, amount int) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	patient, ok := s.users[patientID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	doctor, ok := s.users[doctorID]
	if !ok {
		return domain.User{}, domain.ErrDoctorNotFound
	}

	if patient.Credits < amount {
		return domain.User{}, domain.ErrInsufficientCredits
	}

	s.appendRow(patientID, -amount, domain.TxTypeAppointmentDeduction, nil)
	s.appendRow(doctorID, amount, domain.TxTypeAppointmentDeduction, nil)
	patient.Credits -= amount
	doctor.Credits += amount

	return *patient, nil
}

func (s *fakeLedgerStore) ListByUser(ctx context.Context, userID uint) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CreditTransaction
	for _, row := range s.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeLedgerStore) BalanceAudit(ctx context.Context, userID uint) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return 0, 0, domain.ErrUserNotFound
	}

	sum := 0
	for _, row := range s.rows {
		if row.UserID == userID {
			sum += row.Amount
		}
	}
	return user.Credits, sum, nil
}

func (s *fakeLedgerStore) appendRow(userID uint, amount int, txType string, packageID *string) {
	s.refID++
	s.rows = append(s.rows, domain.CreditTransaction{
		ID:        s.refID,
		UserID:    userID,
		Amount:    amount,
		Type:      txType,
		PackageID: packageID,
		CreatedAt: time.Now(),
	})
}

func (s *fakeLedgerStore) totalCredits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, u := range s.users {
		total += u.Credits
	}
	return total
}

func (s *fakeLedgerStore) purchaseRows(userID uint) []domain.CreditTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.CreditTransaction
	for _, row := range s.rows {
		if row.UserID == userID && row.Type == domain.TxTypeCreditPurchase {
			out = append(out, row)
		}
	}
	return out
}

type fakeEntitlements struct {
	mu     sync.Mutex
	active map[string]bool
	calls  int
	err    error
}

func (f *fakeEntitlements) HasPlan(ctx context.Context, externalID, tier string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.active[tier], nil
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeInvalidator) InvalidateViews(ctx context.Context, views ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	return nil
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newService(store *fakeLedgerStore, ents *fakeEntitlements) (*CreditsService, *fakeInvalidator) {
	inv := &fakeInvalidator{}
	svc := NewCreditsService(store, ents, inv, []string{"view:doctors", "view:appointments"})
	return svc, inv
}

func patientUser(id uint, credits int) domain.User {
	return domain.User{
		ID:         id,
		ExternalID: "ext_patient",
		Role:       domain.RolePatient,
		Credits:    credits,
	}
}

func doctorUser(id uint) domain.User {
	return domain.User{
		ID:         id,
		ExternalID: "ext_doctor",
		Role:       domain.RoleDoctor,
	}
}

func strPtr(s string) *string { return &s }

func TestAllocateMonthlyCredits_GrantsPlanQuota(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 0))
	ents := &fakeEntitlements{active: map[string]bool{domain.PlanStandard: true, domain.PlanPremium: true}}
	svc, inv := newService(store, ents)

	marker := &domain.CreditTransaction{
		UserID:    1,
		Amount:    0,
		Type:      domain.TxTypeCreditPurchase,
		PackageID: strPtr(domain.PlanFreeUser),
		CreatedAt: time.Now(),
	}

	updated, err := svc.AllocateMonthlyCredits(context.Background(), patientUser(1, 0), marker)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	// premium wins over standard by precedence
	if updated.Credits != 24 {
		t.Fatalf("expected 24 credits, got %d", updated.Credits)
	}

	rows := store.purchaseRows(1)
	if len(rows) != 1 {
		t.Fatalf("expected 1 purchase row, got %d", len(rows))
	}
	if *rows[0].PackageID != domain.PlanPremium || rows[0].Amount != 24 {
		t.Fatalf("unexpected purchase row: %+v", rows[0])
	}

	if inv.count() != 1 {
		t.Fatalf("expected 1 view invalidation, got %d", inv.count())
	}
}

func TestAllocateMonthlyCredits_SkipsWhenAlreadyGrantedThisMonth(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 24))
	ents := &fakeEntitlements{active: map[string]bool{domain.PlanPremium: true}}
	svc, inv := newService(store, ents)

	latest := &domain.CreditTransaction{
		UserID:    1,
		Amount:    24,
		Type:      domain.TxTypeCreditPurchase,
		PackageID: strPtr(domain.PlanPremium),
		CreatedAt: time.Now(),
	}

	updated, err := svc.AllocateMonthlyCredits(context.Background(), patientUser(1, 24), latest)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if updated.Credits != 24 {
		t.Fatalf("balance changed on idempotent call: %d", updated.Credits)
	}
	if len(store.purchaseRows(1)) != 0 {
		t.Fatal("no new ledger row expected on idempotent call")
	}
	if inv.count() != 0 {
		t.Fatal("no invalidation expected on idempotent call")
	}
}

func TestAllocateMonthlyCredits_LastMonthGrantDoesNotBlock(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 24))
	ents := &fakeEntitlements{active: map[string]bool{domain.PlanPremium: true}}
	svc, _ := newService(store, ents)

	latest := &domain.CreditTransaction{
		UserID:    1,
		Amount:    24,
		Type:      domain.TxTypeCreditPurchase,
		PackageID: strPtr(domain.PlanPremium),
		CreatedAt: time.Now().AddDate(0, -1, 0),
	}

	updated, err := svc.AllocateMonthlyCredits(context.Background(), patientUser(1, 24), latest)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if updated.Credits != 48 {
		t.Fatalf("expected fresh monthly grant, got %d credits", updated.Credits)
	}
}

func TestAllocateMonthlyCredits_TierChangeRegrantsSameMonth(t *testing.T) {
	// standard was granted earlier this month, then the user upgraded
	store := newFakeLedgerStore(patientUser(1, 10))
	ents := &fakeEntitlements{active: map[string]bool{domain.PlanPremium: true}}
	svc, _ := newService(store, ents)

	latest := &domain.CreditTransaction{
		UserID:    1,
		Amount:    10,
		Type:      domain.TxTypeCreditPurchase,
		PackageID: strPtr(domain.PlanStandard),
		CreatedAt: time.Now(),
	}

	updated, err := svc.AllocateMonthlyCredits(context.Background(), patientUser(1, 10), latest)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if updated.Credits != 34 {
		t.Fatalf("expected 10+24 credits after upgrade, got %d", updated.Credits)
	}
}

func TestAllocateMonthlyCredits_NonPatientIsNoop(t *testing.T) {
	store := newFakeLedgerStore(doctorUser(2))
	ents := &fakeEntitlements{active: map[string]bool{domain.PlanPremium: true}}
	svc, _ := newService(store, ents)

	doctor := doctorUser(2)
	updated, err := svc.AllocateMonthlyCredits(context.Background(), doctor, nil)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if updated != doctor {
		t.Fatalf("doctor should pass through unchanged: %+v", updated)
	}
	if ents.calls != 0 {
		t.Fatal("entitlements should not be consulted for non-patients")
	}
}

func TestAllocateMonthlyCredits_NoActivePlanIsNoop(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 7))
	ents := &fakeEntitlements{active: map[string]bool{}}
	svc, _ := newService(store, ents)

	user := patientUser(1, 7)
	updated, err := svc.AllocateMonthlyCredits(context.Background(), user, nil)
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}
	if updated.Credits != 7 || len(store.purchaseRows(1)) != 0 {
		t.Fatal("no allocation expected without an active plan")
	}
}

func TestAllocateMonthlyCredits_EntitlementFailure(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 0))
	ents := &fakeEntitlements{err: errors.New("provider unavailable")}
	svc, _ := newService(store, ents)

	_, err := svc.AllocateMonthlyCredits(context.Background(), patientUser(1, 0), nil)
	if err == nil {
		t.Fatal("expected error when entitlement provider fails")
	}
	if len(store.purchaseRows(1)) != 0 {
		t.Fatal("no ledger row may be written on failure")
	}
}

func TestAllocateMonthlyCredits_ConcurrentSingleGrant(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 0))
	ents := &fakeEntitlements{active: map[string]bool{domain.PlanPremium: true}}
	svc, _ := newService(store, ents)

	const workers = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// every request carries the same stale view: no grant yet
			_, err := svc.AllocateMonthlyCredits(context.Background(), patientUser(1, 0), nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent allocate returned error: %v", err)
		}
	}

	rows := store.purchaseRows(1)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one committed purchase row, got %d", len(rows))
	}

	cached, sum, _ := store.BalanceAudit(context.Background(), 1)
	if cached != 24 || sum != 24 {
		t.Fatalf("expected exactly one quota increment, cached=%d ledger=%d", cached, sum)
	}
}

func TestChargeAppointment_TransfersFee(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 5), doctorUser(2))
	svc, inv := newService(store, &fakeEntitlements{})

	before := store.totalCredits()

	patient, err := svc.ChargeAppointment(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if patient.Credits != 3 {
		t.Fatalf("expected patient balance 3, got %d", patient.Credits)
	}

	_, doctorSum, _ := store.BalanceAudit(context.Background(), 2)
	if doctorSum != AppointmentCreditCost {
		t.Fatalf("expected doctor ledger +%d, got %d", AppointmentCreditCost, doctorSum)
	}

	patientRows, _ := store.ListByUser(context.Background(), 1)
	doctorRows, _ := store.ListByUser(context.Background(), 2)
	if len(patientRows) != 1 || len(doctorRows) != 1 {
		t.Fatalf("expected one ledger row per side, got %d/%d", len(patientRows), len(doctorRows))
	}
	if patientRows[0].Amount != -doctorRows[0].Amount {
		t.Fatalf("rows must have equal magnitude: %d vs %d", patientRows[0].Amount, doctorRows[0].Amount)
	}

	// settlement conserves total credits
	if after := store.totalCredits(); after != before {
		t.Fatalf("settlement changed total credits: %d -> %d", before, after)
	}

	if inv.count() != 1 {
		t.Fatalf("expected 1 view invalidation, got %d", inv.count())
	}
}

func TestChargeAppointment_DrainsToInsufficient(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 5), doctorUser(2))
	svc, _ := newService(store, &fakeEntitlements{})
	ctx := context.Background()

	patient, err := svc.ChargeAppointment(ctx, 1, 2)
	if err != nil || patient.Credits != 3 {
		t.Fatalf("first booking: credits=%d err=%v", patient.Credits, err)
	}

	patient, err = svc.ChargeAppointment(ctx, 1, 2)
	if err != nil || patient.Credits != 1 {
		t.Fatalf("second booking: credits=%d err=%v", patient.Credits, err)
	}

	_, err = svc.ChargeAppointment(ctx, 1, 2)
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits, got %v", err)
	}

	cached, sum, _ := store.BalanceAudit(ctx, 1)
	if cached != 1 || sum != -4 {
		t.Fatalf("balance must stay 1 after rejection, cached=%d ledger=%d", cached, sum)
	}
}

func TestChargeAppointment_NotFound(t *testing.T) {
	store := newFakeLedgerStore(patientUser(1, 5))
	svc, _ := newService(store, &fakeEntitlements{})

	_, err := svc.ChargeAppointment(context.Background(), 99, 1)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected patient not found, got %v", err)
	}

	_, err = svc.ChargeAppointment(context.Background(), 1, 99)
	if !errors.Is(err, domain.ErrDoctorNotFound) {
		t.Fatalf("expected doctor not found, got %v", err)
	}

	if cached, _, _ := store.BalanceAudit(context.Background(), 1); cached != 5 {
		t.Fatalf("failed settlement must not mutate balances, got %d", cached)
	}
}

func TestChargeAppointment_ConcurrentNeverOverdraws(t *testing.T) {
	const initial = 5
	store := newFakeLedgerStore(patientUser(1, initial), doctorUser(2))
	svc, _ := newService(store, &fakeEntitlements{})

	before := store.totalCredits()

	const workers = 10

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ChargeAppointment(context.Background(), 1, 2)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, domain.ErrInsufficientCredits) {
			t.Fatalf("unexpected settlement error: %v", err)
		}
	}

	if successes*AppointmentCreditCost > initial {
		t.Fatalf("overdraw: %d settlements of %d against balance %d", successes, AppointmentCreditCost, initial)
	}

	cached, sum, _ := store.BalanceAudit(context.Background(), 1)
	if cached < 0 {
		t.Fatalf("patient balance went negative: %d", cached)
	}
	if cached != initial-successes*AppointmentCreditCost {
		t.Fatalf("balance %d does not match %d successful settlements", cached, successes)
	}
	if cached != initial+sum {
		t.Fatalf("cached balance %d diverged from ledger sum %d", cached, sum)
	}

	if after := store.totalCredits(); after != before {
		t.Fatalf("settlements changed total credits: %d -> %d", before, after)
	}

	t.Logf("%d of %d concurrent bookings settled, final balance %d", successes, workers, cached)
}
