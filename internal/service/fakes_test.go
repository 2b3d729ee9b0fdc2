package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-booking-api/internal/models"
	"github.com/noah-isme/studio-booking-api/internal/repository"
	appErrors "github.com/noah-isme/studio-booking-api/pkg/errors"
)

// memStore is an in-memory stand-in for the Postgres schema.
type memStore struct {
	users       map[string]models.User
	memberships map[string]models.MembershipWindow
	templates   map[string]models.ClassTemplate
	staff       map[string]map[string]bool
	managers    map[string]map[string]bool
	instances   map[string]models.ClassInstance
	enrollments []models.Enrollment
	credits     []models.Credit
	seq         int

	failCancel map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		users:       map[string]models.User{},
		memberships: map[string]models.MembershipWindow{},
		templates:   map[string]models.ClassTemplate{},
		staff:       map[string]map[string]bool{},
		managers:    map[string]map[string]bool{},
		instances:   map[string]models.ClassInstance{},
		failCancel:  map[string]error{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func copySet(in map[string]map[string]bool) map[string]map[string]bool {
	out := make(map[string]map[string]bool, len(in))
	for k, v := range in {
		inner := make(map[string]bool, len(v))
		for kk, vv := range v {
			inner[kk] = vv
		}
		out[k] = inner
	}
	return out
}

func (s *memStore) snapshot() memStore {
	snap := memStore{
		users:       map[string]models.User{},
		memberships: map[string]models.MembershipWindow{},
		templates:   map[string]models.ClassTemplate{},
		staff:       copySet(s.staff),
		managers:    copySet(s.managers),
		instances:   map[string]models.ClassInstance{},
		enrollments: append([]models.Enrollment(nil), s.enrollments...),
		credits:     append([]models.Credit(nil), s.credits...),
		seq:         s.seq,
		failCancel:  s.failCancel,
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.memberships {
		snap.memberships[k] = v
	}
	for k, v := range s.templates {
		snap.templates[k] = v
	}
	for k, v := range s.instances {
		snap.instances[k] = v
	}
	return snap
}

// fakeTx gives WithinTx all-or-nothing semantics over memStore.
type fakeTx struct {
	store     *memStore
	depth     int
	commits   int
	rollbacks int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if f.depth > 0 {
		return fn(ctx)
	}
	snap := f.store.snapshot()
	f.depth++
	err := fn(ctx)
	f.depth--
	if err != nil {
		*f.store = snap
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

type fakeUsers struct{ s *memStore }

func (f fakeUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type fakeMemberships struct{ s *memStore }

func (f fakeMemberships) FindActive(ctx context.Context, studentID string, asOf time.Time) (*models.MembershipWindow, error) {
	m, ok := f.s.memberships[studentID]
	if !ok || !m.ActiveAt(asOf) {
		return nil, nil
	}
	return &m, nil
}

type fakeTemplates struct{ s *memStore }

func (f fakeTemplates) Create(ctx context.Context, tmpl *models.ClassTemplate) error {
	if tmpl.ID == "" {
		tmpl.ID = f.s.nextID("tmpl")
	}
	f.s.templates[tmpl.ID] = *tmpl
	return nil
}

func (f fakeTemplates) FindByID(ctx context.Context, id string) (*models.ClassTemplate, error) {
	t, ok := f.s.templates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (f fakeTemplates) List(ctx context.Context, filter models.ClassTemplateFilter) ([]models.ClassTemplate, int, error) {
	var out []models.ClassTemplate
	for _, t := range f.s.templates {
		if filter.InstructorID == "" || t.InstructorID == filter.InstructorID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, len(out), nil
}

func (f fakeTemplates) UpdateInstructor(ctx context.Context, id, instructorID string) error {
	t, ok := f.s.templates[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.InstructorID = instructorID
	f.s.templates[id] = t
	return nil
}

func (f fakeTemplates) AddStaff(ctx context.Context, templateID, userID string) error {
	if f.s.staff[templateID] == nil {
		f.s.staff[templateID] = map[string]bool{}
	}
	f.s.staff[templateID][userID] = true
	return nil
}

func (f fakeTemplates) RemoveStaff(ctx context.Context, templateID, userID string) error {
	delete(f.s.staff[templateID], userID)
	return nil
}

func (f fakeTemplates) ListStaff(ctx context.Context, templateID string) ([]models.User, error) {
	var out []models.User
	for id := range f.s.staff[templateID] {
		out = append(out, f.s.users[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (f fakeTemplates) IsStaffAssigned(ctx context.Context, templateID, userID string) (bool, error) {
	return f.s.staff[templateID][userID], nil
}

func (f fakeTemplates) ListIDsForStaff(ctx context.Context, userID string) ([]string, error) {
	seen := map[string]bool{}
	for templateID, members := range f.s.staff {
		if members[userID] {
			seen[templateID] = true
		}
	}
	for id, t := range f.s.templates {
		if t.InstructorID == userID {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f fakeTemplates) AddManager(ctx context.Context, templateID, userID string) error {
	if f.s.managers[templateID] == nil {
		f.s.managers[templateID] = map[string]bool{}
	}
	f.s.managers[templateID][userID] = true
	return nil
}

type fakeInstances struct {
	s       *memStore
	bulkErr error
}

func (f fakeInstances) BulkCreate(ctx context.Context, instances []models.ClassInstance) (int, error) {
	inserted := 0
	for _, inst := range instances {
		if f.bulkErr != nil && inserted == len(instances)/2 {
			return inserted, f.bulkErr
		}
		if _, exists := f.s.instances[inst.InstanceID]; exists {
			continue
		}
		f.s.instances[inst.InstanceID] = inst
		inserted++
	}
	return inserted, nil
}

func (f fakeInstances) FindByID(ctx context.Context, id string) (*models.ClassInstance, error) {
	inst, ok := f.s.instances[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &inst, nil
}

func (f fakeInstances) LockByID(ctx context.Context, id string) (*models.ClassInstance, error) {
	return f.FindByID(ctx, id)
}

func (f fakeInstances) ListFutureByTemplate(ctx context.Context, templateID string, from time.Time) ([]models.ClassInstance, error) {
	var out []models.ClassInstance
	for _, inst := range f.s.instances {
		if inst.TemplateID == templateID && !inst.IsCancelled && !inst.StartTime.Before(from) {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f fakeInstances) SetCancelled(ctx context.Context, id string) error {
	inst := f.s.instances[id]
	inst.IsCancelled = true
	f.s.instances[id] = inst
	return nil
}

func (f fakeInstances) ListUpcoming(ctx context.Context, filter models.InstanceFilter) ([]models.ClassInstanceDetail, error) {
	allowed := map[string]bool{}
	for _, id := range filter.TemplateIDs {
		allowed[id] = true
	}
	var out []models.ClassInstanceDetail
	for _, inst := range f.s.instances {
		if inst.IsCancelled || inst.StartTime.Before(filter.From) {
			continue
		}
		if len(allowed) > 0 && !allowed[inst.TemplateID] {
			continue
		}
		tmpl := f.s.templates[inst.TemplateID]
		out = append(out, models.ClassInstanceDetail{
			ClassInstance: inst,
			ClassName:     tmpl.Name,
			InstructorID:  tmpl.InstructorID,
			EnrolledCount: countEnrolled(f.s.enrollmentsOf(inst.InstanceID)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func countEnrolled(enrollments []models.Enrollment) int {
	n := 0
	for _, e := range enrollments {
		if e.Status == models.EnrollmentStatusEnrolled {
			n++
		}
	}
	return n
}

func (s *memStore) enrollmentsOf(instanceID string) []models.Enrollment {
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if e.InstanceID == instanceID {
			out = append(out, e)
		}
	}
	return out
}

type fakeEnrollments struct{ s *memStore }

func (f fakeEnrollments) Create(ctx context.Context, e *models.Enrollment) error {
	for _, existing := range f.s.enrollments {
		if existing.StudentID == e.StudentID && existing.InstanceID == e.InstanceID && existing.Status == models.EnrollmentStatusEnrolled {
			return repository.ErrDuplicate
		}
	}
	if e.ID == "" {
		e.ID = f.s.nextID("enr")
	}
	f.s.enrollments = append(f.s.enrollments, *e)
	return nil
}

func (f fakeEnrollments) index(id string) int {
	for i, e := range f.s.enrollments {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (f fakeEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	i := f.index(id)
	if i < 0 {
		return nil, sql.ErrNoRows
	}
	e := f.s.enrollments[i]
	return &e, nil
}

func (f fakeEnrollments) FindActive(ctx context.Context, studentID, instanceID string) (*models.Enrollment, error) {
	for _, e := range f.s.enrollments {
		if e.StudentID == studentID && e.InstanceID == instanceID && e.Status == models.EnrollmentStatusEnrolled {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeEnrollments) CountActiveByInstance(ctx context.Context, instanceID string) (int, error) {
	return countEnrolled(f.s.enrollmentsOf(instanceID)), nil
}

func (f fakeEnrollments) ListActiveByInstance(ctx context.Context, instanceID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range f.s.enrollmentsOf(instanceID) {
		if e.Status == models.EnrollmentStatusEnrolled {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f fakeEnrollments) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.s.enrollments {
		if e.StudentID != studentID || e.Status != models.EnrollmentStatusEnrolled {
			continue
		}
		inst := f.s.instances[e.InstanceID]
		tmpl := f.s.templates[inst.TemplateID]
		out = append(out, models.EnrollmentDetail{
			Enrollment:        e,
			TemplateID:        inst.TemplateID,
			ClassName:         tmpl.Name,
			InstructorID:      tmpl.InstructorID,
			StartTime:         inst.StartTime,
			EndTime:           inst.EndTime,
			InstanceCancelled: inst.IsCancelled,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f fakeEnrollments) Cancel(ctx context.Context, id string, at time.Time) error {
	if err := f.s.failCancel[id]; err != nil {
		return err
	}
	i := f.index(id)
	if i < 0 || f.s.enrollments[i].Status != models.EnrollmentStatusEnrolled {
		return sql.ErrNoRows
	}
	f.s.enrollments[i].Status = models.EnrollmentStatusCancelled
	f.s.enrollments[i].CancelledAt = &at
	return nil
}

func (f fakeEnrollments) MarkAttendance(ctx context.Context, id string, status models.EnrollmentStatus, staffID string, at time.Time) error {
	i := f.index(id)
	if i < 0 || f.s.enrollments[i].Status != models.EnrollmentStatusEnrolled {
		return sql.ErrNoRows
	}
	f.s.enrollments[i].Status = status
	f.s.enrollments[i].AttendanceMarkedAt = &at
	f.s.enrollments[i].MarkedByStaffID = &staffID
	return nil
}

func (f fakeEnrollments) ListRoster(ctx context.Context, instanceID string) ([]models.RosterEntry, error) {
	var out []models.RosterEntry
	for _, e := range f.s.enrollmentsOf(instanceID) {
		if e.Status == models.EnrollmentStatusCancelled {
			continue
		}
		u := f.s.users[e.StudentID]
		out = append(out, models.RosterEntry{
			EnrollmentID:       e.ID,
			StudentID:          e.StudentID,
			FullName:           u.FullName,
			Email:              u.Email,
			Status:             e.Status,
			PaymentType:        e.PaymentType,
			AttendanceMarkedAt: e.AttendanceMarkedAt,
			MarkedByStaffID:    e.MarkedByStaffID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

type fakeCredits struct{ s *memStore }

func (f fakeCredits) Create(ctx context.Context, c *models.Credit) error {
	if c.SourceEnrollmentID != nil {
		for _, existing := range f.s.credits {
			if existing.SourceEnrollmentID != nil && *existing.SourceEnrollmentID == *c.SourceEnrollmentID {
				return repository.ErrDuplicate
			}
		}
	}
	if c.ID == "" {
		c.ID = f.s.nextID("cr")
	}
	f.s.credits = append(f.s.credits, *c)
	return nil
}

func (f fakeCredits) FindBySourceEnrollment(ctx context.Context, enrollmentID string) (*models.Credit, error) {
	for _, c := range f.s.credits {
		if c.SourceEnrollmentID != nil && *c.SourceEnrollmentID == enrollmentID {
			found := c
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeCredits) OldestUnused(ctx context.Context, studentID string) (*models.Credit, error) {
	var oldest *models.Credit
	for i := range f.s.credits {
		c := f.s.credits[i]
		if c.StudentID != studentID || c.Used {
			continue
		}
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			found := c
			oldest = &found
		}
	}
	if oldest == nil {
		return nil, sql.ErrNoRows
	}
	return oldest, nil
}

func (f fakeCredits) MarkUsed(ctx context.Context, id string, at time.Time) error {
	for i := range f.s.credits {
		if f.s.credits[i].ID == id && !f.s.credits[i].Used {
			f.s.credits[i].Used = true
			f.s.credits[i].UsedAt = &at
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f fakeCredits) CountUnused(ctx context.Context, studentID string) (int, error) {
	n := 0
	for _, c := range f.s.credits {
		if c.StudentID == studentID && !c.Used {
			n++
		}
	}
	return n, nil
}

func (f fakeCredits) ListByStudent(ctx context.Context, studentID string) ([]models.Credit, error) {
	var out []models.Credit
	for _, c := range f.s.credits {
		if c.StudentID == studentID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// fakeCache is a JSON round-tripping map standing in for Redis.
type fakeCache struct {
	entries map[string][]byte
	gets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.gets++
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *fakeCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// harness wires every service over one memStore.
type harness struct {
	store         *memStore
	tx            *fakeTx
	clock         *fakeClock
	cache         *fakeCache
	metrics       *MetricsService
	credits       *CreditService
	booking       *BookingService
	classes       *ClassService
	cancellations *CancellationService
	attendance    *AttendanceService
	payments      *PaymentService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	h := &harness{
		store:   store,
		tx:      &fakeTx{store: store},
		clock:   &fakeClock{t: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		cache:   newFakeCache(),
		metrics: NewMetricsService(),
	}
	logger := zap.NewNop()
	cache := NewCacheService(h.cache, h.metrics, time.Minute, logger, true)

	h.credits = NewCreditService(h.tx, fakeCredits{store}, fakeEnrollments{store}, fakeUsers{store}, h.metrics, logger)
	h.credits.now = h.clock.Now
	h.booking = NewBookingService(BookingServiceParams{
		Tx:          h.tx,
		Instances:   fakeInstances{s: store},
		Templates:   fakeTemplates{store},
		Enrollments: fakeEnrollments{store},
		Users:       fakeUsers{store},
		Memberships: fakeMemberships{store},
		Credits:     h.credits,
		Cache:       cache,
		Metrics:     h.metrics,
		Logger:      logger,
	})
	h.booking.now = h.clock.Now
	h.classes = NewClassService(ClassServiceParams{
		Tx:        h.tx,
		Templates: fakeTemplates{store},
		Instances: fakeInstances{s: store},
		Users:     fakeUsers{store},
		Cache:     cache,
		Metrics:   h.metrics,
		Logger:    logger,
	})
	h.classes.now = h.clock.Now
	h.cancellations = NewCancellationService(h.tx, fakeInstances{s: store}, fakeEnrollments{store}, h.credits, cache, h.metrics, logger)
	h.cancellations.now = h.clock.Now
	h.attendance = NewAttendanceService(AttendanceServiceParams{
		Tx:          h.tx,
		Enrollments: fakeEnrollments{store},
		Instances:   fakeInstances{s: store},
		Templates:   fakeTemplates{store},
		Users:       fakeUsers{store},
		Metrics:     h.metrics,
		Logger:      logger,
	})
	h.attendance.now = h.clock.Now
	h.payments = NewPaymentService(h.booking, nil, logger)
	return h
}

func (h *harness) addUser(id string, role models.UserRole) models.User {
	u := models.User{ID: id, Email: id + "@studio.test", FullName: strings.ToUpper(id[:1]) + id[1:], Role: role}
	h.store.users[id] = u
	return u
}

// addClass stores a template taught by instructorID and one instance per start.
func (h *harness) addClass(templateID, instructorID string, capacity int, starts ...time.Time) []string {
	h.store.templates[templateID] = models.ClassTemplate{
		ID:                templateID,
		Name:              "Class " + templateID,
		StartTime:         starts[0],
		DurationMinutes:   60,
		InstructorID:      instructorID,
		MaxCapacity:       capacity,
		RecurrencePattern: models.RecurrenceWeekly,
	}
	ids := make([]string, 0, len(starts))
	for _, start := range starts {
		id := models.InstanceID(templateID, start)
		h.store.instances[id] = models.ClassInstance{
			InstanceID:  id,
			TemplateID:  templateID,
			StartTime:   start,
			EndTime:     start.Add(time.Hour),
			MaxCapacity: capacity,
		}
		ids = append(ids, id)
	}
	return ids
}

func (h *harness) addCredit(studentID string, createdAt time.Time) models.Credit {
	c := models.Credit{ID: h.store.nextID("cr"), StudentID: studentID, CreatedAt: createdAt, Reason: models.CreditReasonStudentCancellation}
	h.store.credits = append(h.store.credits, c)
	return c
}

func strPtr(s string) *string { return &s }
