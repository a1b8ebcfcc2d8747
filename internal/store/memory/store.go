// Package memory provides an in-process implementation of the store interfaces.
// All operations are serialized by a single mutex; WithTx holds it for the whole
// callback and restores a snapshot if the callback fails.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/musudik/dropmybeat-api/internal/models"
	"github.com/musudik/dropmybeat-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type personRecord struct {
	person       models.Person
	passwordHash []byte
}

type state struct {
	people       map[string]*personRecord
	events       map[string]*models.Event
	participants map[string]*models.EventParticipant
	requests     map[string]*models.SongRequest
}

func newState() *state {
	return &state{
		people:       make(map[string]*personRecord),
		events:       make(map[string]*models.Event),
		participants: make(map[string]*models.EventParticipant),
		requests:     make(map[string]*models.SongRequest),
	}
}

func (st *state) clone() *state {
	c := newState()
	for id, p := range st.people {
		cp := *p
		c.people[id] = &cp
	}
	for id, e := range st.events {
		c.events[id] = e.Clone()
	}
	for id, p := range st.participants {
		cp := *p
		c.participants[id] = &cp
	}
	for id, r := range st.requests {
		c.requests[id] = r.Clone()
	}
	return c
}

// Store implements store.Store in memory.
type Store struct {
	mu   *sync.Mutex
	data *state
	inTx bool

	passwordCost int
}

// Option configures a Store.
type Option func(*Store)

// WithPasswordCost sets the bcrypt cost used for new passwords.
func WithPasswordCost(cost int) Option {
	return func(s *Store) {
		s.passwordCost = cost
	}
}

// NewStore creates an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		mu:           &sync.Mutex{},
		data:         newState(),
		passwordCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock serializes access unless the caller already runs inside WithTx.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// People returns the PersonStore.
func (s *Store) People() store.PersonStore { return &personStore{s} }

// Events returns the EventStore.
func (s *Store) Events() store.EventStore { return &eventStore{s} }

// Participants returns the ParticipantStore.
func (s *Store) Participants() store.ParticipantStore { return &participantStore{s} }

// SongRequests returns the SongRequestStore.
func (s *Store) SongRequests() store.SongRequestStore { return &requestStore{s} }

// WithTx runs fn with exclusive access and rolls back on error.
func (s *Store) WithTx(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &Store{mu: s.mu, data: s.data, inTx: true, passwordCost: s.passwordCost}
	if err := fn(tx); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

type personStore struct{ s *Store }

func (p *personStore) Create(ctx context.Context, person *models.Person, password string) error {
	defer p.s.lock()()

	email := models.NormalizeEmail(person.Email)
	for _, rec := range p.s.data.people {
		if rec.person.Email == email {
			return store.ErrDuplicateKey
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.s.passwordCost)
	if err != nil {
		return err
	}
	if person.ID == "" {
		person.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	person.Email = email
	person.CreatedAt = now
	person.UpdatedAt = now
	p.s.data.people[person.ID] = &personRecord{person: *person, passwordHash: hash}
	return nil
}

func (p *personStore) Get(ctx context.Context, id string) (*models.Person, error) {
	defer p.s.lock()()
	rec, ok := p.s.data.people[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	person := rec.person
	return &person, nil
}

func (p *personStore) GetByEmail(ctx context.Context, email string) (*models.Person, error) {
	defer p.s.lock()()
	email = models.NormalizeEmail(email)
	for _, rec := range p.s.data.people {
		if rec.person.Email == email {
			person := rec.person
			return &person, nil
		}
	}
	return nil, store.ErrNotFound
}

func (p *personStore) Authenticate(ctx context.Context, email, password string) (*models.Person, error) {
	defer p.s.lock()()
	email = models.NormalizeEmail(email)
	for _, rec := range p.s.data.people {
		if rec.person.Email != email {
			continue
		}
		if !rec.person.IsActive || bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)) != nil {
			return nil, store.ErrInvalidCredentials
		}
		person := rec.person
		return &person, nil
	}
	return nil, store.ErrInvalidCredentials
}

func (p *personStore) List(ctx context.Context) ([]*models.Person, error) {
	defer p.s.lock()()
	people := make([]*models.Person, 0, len(p.s.data.people))
	for _, rec := range p.s.data.people {
		person := rec.person
		people = append(people, &person)
	}
	sort.Slice(people, func(i, j int) bool {
		return people[i].CreatedAt.Before(people[j].CreatedAt)
	})
	return people, nil
}

func (p *personStore) SetRole(ctx context.Context, id string, role models.Role) error {
	defer p.s.lock()()
	rec, ok := p.s.data.people[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.person.Role = role
	rec.person.UpdatedAt = time.Now().UTC()
	return nil
}

func (p *personStore) SetActive(ctx context.Context, id string, active bool) error {
	defer p.s.lock()()
	rec, ok := p.s.data.people[id]
	if !ok {
		return store.ErrNotFound
	}
	rec.person.IsActive = active
	rec.person.UpdatedAt = time.Now().UTC()
	return nil
}

type eventStore struct{ s *Store }

func (e *eventStore) Create(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	defer e.s.lock()()
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if _, exists := e.s.data.events[event.ID]; exists {
		return store.ErrDuplicateKey
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	event.Version = 1
	if event.Members == nil {
		event.Members = []models.Member{}
	}
	e.s.data.events[event.ID] = event.Clone()
	return nil
}

func (e *eventStore) Get(ctx context.Context, id string) (*models.Event, error) {
	defer e.s.lock()()
	ev, ok := e.s.data.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return ev.Clone(), nil
}

func (e *eventStore) GetForUpdate(ctx context.Context, id string) (*models.Event, error) {
	return e.Get(ctx, id)
}

func (e *eventStore) List(ctx context.Context, filter store.EventFilter) ([]*models.Event, error) {
	defer e.s.lock()()
	var events []*models.Event
	for _, ev := range e.s.data.events {
		if filter.Status != "" && ev.Status != filter.Status {
			continue
		}
		if filter.ManagerID != "" && ev.ManagerID != filter.ManagerID {
			continue
		}
		if !ev.IsPublic {
			if filter.PublicOnly {
				continue
			}
			if filter.VisibleTo != "" && ev.ManagerID != filter.VisibleTo {
				if _, member := ev.FindMember(filter.VisibleTo); !member {
					continue
				}
			}
		}
		events = append(events, ev.Clone())
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].StartDate.After(events[j].StartDate)
		}
		return events[i].ID < events[j].ID
	})
	return paginate(events, filter.Offset, filter.Limit), nil
}

func (e *eventStore) Update(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	defer e.s.lock()()
	current, ok := e.s.data.events[event.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != event.Version {
		return store.ErrConcurrentModification
	}
	updated := event.Clone()
	updated.Members = current.Members
	updated.LastQueuePosition = current.LastQueuePosition
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()
	updated.Version = current.Version + 1
	e.s.data.events[event.ID] = updated

	event.Version = updated.Version
	event.UpdatedAt = updated.UpdatedAt
	return nil
}

func (e *eventStore) Delete(ctx context.Context, id string) error {
	defer e.s.lock()()
	if _, ok := e.s.data.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(e.s.data.events, id)
	for pid, p := range e.s.data.participants {
		if p.EventID == id {
			delete(e.s.data.participants, pid)
		}
	}
	for rid, r := range e.s.data.requests {
		if r.EventID == id {
			delete(e.s.data.requests, rid)
		}
	}
	return nil
}

func (e *eventStore) AddMember(ctx context.Context, eventID string, member models.Member) error {
	defer e.s.lock()()
	ev, ok := e.s.data.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	if _, exists := ev.FindMember(member.UserID); exists {
		return store.ErrDuplicateKey
	}
	ev.Members = append(ev.Members, member)
	return nil
}

func (e *eventStore) RemoveMember(ctx context.Context, eventID, userID string) error {
	defer e.s.lock()()
	ev, ok := e.s.data.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	if err := ev.RemoveMember(userID); err != nil {
		return store.ErrNotFound
	}
	return nil
}

func (e *eventStore) SetMemberApproval(ctx context.Context, eventID, userID string, approved bool) error {
	defer e.s.lock()()
	ev, ok := e.s.data.events[eventID]
	if !ok {
		return store.ErrNotFound
	}
	m, exists := ev.FindMember(userID)
	if !exists {
		return store.ErrNotFound
	}
	m.IsApproved = approved
	return nil
}

func (e *eventStore) NextQueuePosition(ctx context.Context, eventID string, hint int) (int, error) {
	defer e.s.lock()()
	ev, ok := e.s.data.events[eventID]
	if !ok {
		return 0, store.ErrNotFound
	}
	next := ev.LastQueuePosition + 1
	if hint > next {
		next = hint
	}
	ev.LastQueuePosition = next
	return next, nil
}

func (e *eventStore) LastQueuePosition(ctx context.Context, eventID string) (int, error) {
	defer e.s.lock()()
	ev, ok := e.s.data.events[eventID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return ev.LastQueuePosition, nil
}

type participantStore struct{ s *Store }

func (p *participantStore) Create(ctx context.Context, participant *models.EventParticipant) error {
	defer p.s.lock()()
	if _, ok := p.s.data.events[participant.EventID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range p.s.data.participants {
		if existing.EventID == participant.EventID &&
			existing.Email == models.NormalizeEmail(participant.Email) &&
			strings.EqualFold(existing.LastName, participant.LastName) {
			return store.ErrDuplicateKey
		}
	}
	if participant.ID == "" {
		participant.ID = uuid.New().String()
	}
	participant.Email = models.NormalizeEmail(participant.Email)
	cp := *participant
	p.s.data.participants[participant.ID] = &cp
	return nil
}

func (p *participantStore) Get(ctx context.Context, id string) (*models.EventParticipant, error) {
	defer p.s.lock()()
	participant, ok := p.s.data.participants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *participant
	return &cp, nil
}

func (p *participantStore) ListByEvent(ctx context.Context, eventID string) ([]*models.EventParticipant, error) {
	defer p.s.lock()()
	var out []*models.EventParticipant
	for _, participant := range p.s.data.participants {
		if participant.EventID == eventID {
			cp := *participant
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (p *participantStore) SetApproval(ctx context.Context, id string, approved bool) error {
	defer p.s.lock()()
	participant, ok := p.s.data.participants[id]
	if !ok {
		return store.ErrNotFound
	}
	participant.IsApproved = approved
	return nil
}

func (p *participantStore) Delete(ctx context.Context, id string) error {
	defer p.s.lock()()
	if _, ok := p.s.data.participants[id]; !ok {
		return store.ErrNotFound
	}
	delete(p.s.data.participants, id)
	return nil
}

type requestStore struct{ s *Store }

func (r *requestStore) Create(ctx context.Context, req *models.SongRequest) error {
	defer r.s.lock()()
	if _, ok := r.s.data.events[req.EventID]; !ok {
		return store.ErrNotFound
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if _, exists := r.s.data.requests[req.ID]; exists {
		return store.ErrDuplicateKey
	}
	r.s.data.requests[req.ID] = req.Clone()
	return nil
}

func (r *requestStore) Get(ctx context.Context, id string) (*models.SongRequest, error) {
	defer r.s.lock()()
	req, ok := r.s.data.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return req.Clone(), nil
}

func (r *requestStore) ListByEvent(ctx context.Context, eventID string, filter store.RequestFilter) ([]*models.SongRequest, error) {
	defer r.s.lock()()
	var out []*models.SongRequest
	for _, req := range r.s.data.requests {
		if req.EventID != eventID || !matchesFilter(req, filter) {
			continue
		}
		out = append(out, req.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

func matchesFilter(req *models.SongRequest, filter store.RequestFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, s := range filter.Statuses {
			if req.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.RequestedBy != "" && req.RequestedBy != filter.RequestedBy {
		return false
	}
	if filter.TimeBomb != nil && req.IsTimeBomb != *filter.TimeBomb {
		return false
	}
	return true
}

func (r *requestStore) Save(ctx context.Context, req *models.SongRequest, expected models.RequestStatus) error {
	defer r.s.lock()()
	current, ok := r.s.data.requests[req.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status != expected {
		return store.ErrConcurrentModification
	}
	saved := req.Clone()
	saved.Likes = current.Likes
	saved.LikeCount = current.LikeCount
	r.s.data.requests[req.ID] = saved

	req.Likes = append([]models.Like{}, current.Likes...)
	req.LikeCount = current.LikeCount
	return nil
}

func (r *requestStore) ToggleLike(ctx context.Context, id, userID string, now time.Time) (*models.SongRequest, bool, error) {
	defer r.s.lock()()
	req, ok := r.s.data.requests[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	liked, err := req.ToggleLike(userID, now)
	if err != nil {
		return nil, false, err
	}
	return req.Clone(), liked, nil
}

func (r *requestStore) Delete(ctx context.Context, id string) error {
	defer r.s.lock()()
	if _, ok := r.s.data.requests[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.s.data.requests, id)
	return nil
}

func (r *requestStore) ListExpiredTimeBombs(ctx context.Context, now time.Time, limit int) ([]*models.SongRequest, error) {
	defer r.s.lock()()
	var out []*models.SongRequest
	for _, req := range r.s.data.requests {
		if req.IsTimeBombExpired(now) {
			out = append(out, req.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TimeBombExpiresAt.Before(*out[j].TimeBombExpiresAt)
	})
	return paginate(out, 0, limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
