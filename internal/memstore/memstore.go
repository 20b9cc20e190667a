// Package memstore is an in-memory store.Store used by tests and by local
// runs with STORE=memory.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
	"github.com/kylejryan/insurance-policy-portal/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu        sync.Mutex
	contracts map[string]models.Contract
	users     map[string]models.User
	claims    map[string]models.Claim
	notifs    map[string]models.Notification
	contacts  map[string]models.ContactMessage
	outbox    map[string]models.OutboxEvent
	tasks     map[string]models.Task
}

// New returns an empty store.
func New() *Store {
	return &Store{
		contracts: map[string]models.Contract{},
		users:     map[string]models.User{},
		claims:    map[string]models.Claim{},
		notifs:    map[string]models.Notification{},
		contacts:  map[string]models.ContactMessage{},
		outbox:    map[string]models.OutboxEvent{},
		tasks:     map[string]models.Task{},
	}
}

// ---- contracts ----

func cloneContract(c models.Contract) models.Contract {
	c.Claims = slices.Clone(c.Claims)
	if c.RenewalData != nil {
		r := *c.RenewalData
		c.RenewalData = &r
	}
	return c
}

func (s *Store) createContractLocked(c *models.Contract) error {
	if _, ok := s.contracts[c.ID]; ok {
		return apperr.Conflict("contract already exists")
	}
	u, ok := s.users[c.UserID]
	if !ok {
		return apperr.NotFound("user not found")
	}
	if c.PaymentIntentID != "" {
		for _, other := range s.contracts {
			if other.PaymentIntentID == c.PaymentIntentID {
				return apperr.Conflict("payment intent already used")
			}
		}
	}
	cp := cloneContract(*c)
	if cp.Claims == nil {
		cp.Claims = []string{}
	}
	s.contracts[c.ID] = cp
	u.Contracts = append(slices.Clone(u.Contracts), c.ID)
	s.users[u.ID] = u
	return nil
}

// CreateContract stores c, links it to its owner and queues events.
func (s *Store) CreateContract(_ context.Context, c *models.Contract, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createContractLocked(c); err != nil {
		return err
	}
	s.enqueueLocked(events)
	return nil
}

// GetContract returns the contract with id.
func (s *Store) GetContract(_ context.Context, id string) (*models.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, apperr.NotFound("contract not found")
	}
	c = cloneContract(c)
	return &c, nil
}

// ContractByPaymentIntent finds the contract paid by paymentIntentID.
func (s *Store) ContractByPaymentIntent(_ context.Context, paymentIntentID string) (*models.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contracts {
		if c.PaymentIntentID == paymentIntentID {
			c = cloneContract(c)
			return &c, nil
		}
	}
	return nil, apperr.NotFound("contract not found")
}

func (s *Store) filterContracts(keep func(models.Contract) bool) []models.Contract {
	out := []models.Contract{}
	for _, c := range s.contracts {
		if keep(c) {
			out = append(out, cloneContract(c))
		}
	}
	return out
}

// ContractsByUser lists a user's contracts oldest first.
func (s *Store) ContractsByUser(_ context.Context, userID string) ([]models.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filterContracts(func(c models.Contract) bool { return c.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ContractsByStatus lists contracts in status whose end date is in r.
func (s *Store) ContractsByStatus(_ context.Context, status models.ContractStatus, r store.EndRange) ([]models.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.filterContracts(func(c models.Contract) bool { return c.Status == status && r.Match(c.EndDate) })
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

// TransitionContract applies t when the contract is in one of t.From.
func (s *Store) TransitionContract(_ context.Context, t store.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[t.ID]
	if !ok || !slices.Contains(t.From, c.Status) {
		return false, nil
	}
	at := t.At
	c.Status = t.To
	c.StatusUpdatedAt = &at
	c.UpdatedAt = at
	s.contracts[t.ID] = c
	s.enqueueLocked(t.Events)
	return true, nil
}

// SaveRenewalOffer overwrites the staged offer.
func (s *Store) SaveRenewalOffer(_ context.Context, id string, offer models.RenewalData, allowed []models.ContractStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return apperr.NotFound("contract not found")
	}
	if !slices.Contains(allowed, c.Status) {
		return apperr.Conflict("contract status changed")
	}
	c.RenewalData = &offer
	c.UpdatedAt = offer.OfferedAt
	s.contracts[id] = c
	return nil
}

// ClaimRenewalOffer consumes the offer at version.
func (s *Store) ClaimRenewalOffer(_ context.Context, id string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok || c.RenewalData == nil || !c.RenewalData.RenewalOffered || c.RenewalData.Version != version {
		return apperr.Conflict("renewal offer is no longer available")
	}
	rd := *c.RenewalData
	rd.RenewalOffered = false
	rd.Version = version + 1
	c.RenewalData = &rd
	s.contracts[id] = c
	return nil
}

// ReleaseRenewalOffer restores an offer claimed at version.
func (s *Store) ReleaseRenewalOffer(_ context.Context, id string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok || c.RenewalData == nil || c.RenewalData.RenewalOffered || c.RenewalData.Version != version+1 {
		return apperr.Conflict("renewal offer changed")
	}
	rd := *c.RenewalData
	rd.RenewalOffered = true
	rd.Version = version + 2
	c.RenewalData = &rd
	s.contracts[id] = c
	return nil
}

// CommitRenewal creates next and archives prev atomically.
func (s *Store) CommitRenewal(_ context.Context, next *models.Contract, prev store.Archive, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.contracts[prev.ID]
	if !ok {
		return apperr.NotFound("contract not found")
	}
	if old.Status == models.ContractArchived || old.RenewalData == nil || old.RenewalData.Version != prev.OfferVersion {
		return apperr.Conflict("contract was renewed concurrently")
	}
	if err := s.createContractLocked(next); err != nil {
		return err
	}
	at := prev.At
	old.Status = models.ContractArchived
	old.StatusUpdatedAt = &at
	old.ArchivedAt = &at
	old.ReplacedBy = prev.ReplacedBy
	old.ArchiveReason = prev.Reason
	old.RenewalData = nil
	old.UpdatedAt = at
	s.contracts[old.ID] = old
	s.enqueueLocked(events)
	return nil
}

// appendContractClaimLocked links a claim to its contract.
func (s *Store) appendContractClaimLocked(contractID, claimID string) error {
	c, ok := s.contracts[contractID]
	if !ok {
		return apperr.NotFound("contract not found")
	}
	c.Claims = append(slices.Clone(c.Claims), claimID)
	s.contracts[contractID] = c
	return nil
}

// ---- users ----

func cloneUser(u models.User) models.User {
	u.Contracts = slices.Clone(u.Contracts)
	if u.Settings != nil {
		st := *u.Settings
		u.Settings = &st
	}
	if u.Reset != nil {
		r := *u.Reset
		u.Reset = &r
	}
	return u
}

func (s *Store) emailTakenLocked(email, exceptID string) bool {
	for _, u := range s.users {
		if u.ID != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

// CreateUser stores u; emails are unique.
func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return apperr.Conflict("user already exists")
	}
	if s.emailTakenLocked(u.Email, "") {
		return apperr.Conflict("email already in use")
	}
	cp := cloneUser(*u)
	if cp.Contracts == nil {
		cp.Contracts = []string{}
	}
	s.users[u.ID] = cp
	return nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	u = cloneUser(u)
	return &u, nil
}

// UserByEmail looks a user up by email, case-insensitively.
func (s *Store) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			u = cloneUser(u)
			return &u, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

// UsersByRole lists users holding role, oldest first.
func (s *Store) UsersByRole(_ context.Context, role models.Role) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.User{}
	for _, u := range s.users {
		if u.Role == role {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateUser replaces an existing user.
func (s *Store) UpdateUser(_ context.Context, u *models.User, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return apperr.NotFound("user not found")
	}
	if s.emailTakenLocked(u.Email, u.ID) {
		return apperr.Conflict("email already in use")
	}
	s.users[u.ID] = cloneUser(*u)
	s.enqueueLocked(events)
	return nil
}

// SetProfilePic records the user's picture URL.
func (s *Store) SetProfilePic(_ context.Context, userID, url string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return apperr.NotFound("user not found")
	}
	u.ProfilePic = url
	u.UpdatedAt = at
	s.users[userID] = u
	return nil
}

// DeleteUser removes a user. Their contracts and claims are kept.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperr.NotFound("user not found")
	}
	delete(s.users, id)
	return nil
}

// ---- claims ----

func cloneClaim(c models.Claim) models.Claim {
	c.SupportingFiles = slices.Clone(c.SupportingFiles)
	c.Comments = slices.Clone(c.Comments)
	return c
}

// CreateClaim stores c and appends it to its contract.
func (s *Store) CreateClaim(_ context.Context, c *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[c.ID]; ok {
		return apperr.Conflict("claim already exists")
	}
	if err := s.appendContractClaimLocked(c.ContractID, c.ID); err != nil {
		return err
	}
	s.claims[c.ID] = cloneClaim(*c)
	return nil
}

// GetClaim returns the claim with id.
func (s *Store) GetClaim(_ context.Context, id string) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, apperr.NotFound("claim not found")
	}
	c = cloneClaim(c)
	return &c, nil
}

func (s *Store) filterClaims(keep func(models.Claim) bool) []models.Claim {
	out := []models.Claim{}
	for _, c := range s.claims {
		if keep(c) {
			out = append(out, cloneClaim(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClaimsByUser lists a user's claims oldest first.
func (s *Store) ClaimsByUser(_ context.Context, userID string) ([]models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterClaims(func(c models.Claim) bool { return c.UserID == userID }), nil
}

// ClaimsByStatus lists claims in status oldest first.
func (s *Store) ClaimsByStatus(_ context.Context, status models.ClaimStatus) ([]models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterClaims(func(c models.Claim) bool { return c.Status == status }), nil
}

// UpdateClaim replaces an existing claim.
func (s *Store) UpdateClaim(_ context.Context, c *models.Claim, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[c.ID]; !ok {
		return apperr.NotFound("claim not found")
	}
	s.claims[c.ID] = cloneClaim(*c)
	s.enqueueLocked(events)
	return nil
}

// DeleteClaim removes a claim.
func (s *Store) DeleteClaim(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[id]; !ok {
		return apperr.NotFound("claim not found")
	}
	delete(s.claims, id)
	return nil
}

// ---- notifications ----

// CreateNotification stores n.
func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifs[n.ID] = *n
	return nil
}

// NotificationsByUser lists a user's notifications newest first.
func (s *Store) NotificationsByUser(_ context.Context, userID string) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Notification{}
	for _, n := range s.notifs {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// MarkNotificationRead flags one of the user's notifications as read.
func (s *Store) MarkNotificationRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifs[id]
	if !ok || n.UserID != userID {
		return apperr.NotFound("notification not found")
	}
	n.Read = true
	s.notifs[id] = n
	return nil
}

// MarkAllNotificationsRead flags every unread notification of the user.
func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.notifs {
		if n.UserID == userID && !n.Read {
			n.Read = true
			s.notifs[id] = n
			count++
		}
	}
	return count, nil
}

// ---- contact messages ----

// CreateContactMessage stores m and queues events.
func (s *Store) CreateContactMessage(_ context.Context, m *models.ContactMessage, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[m.ID] = *m
	s.enqueueLocked(events)
	return nil
}

// GetContactMessage returns the message with id.
func (s *Store) GetContactMessage(_ context.Context, id string) (*models.ContactMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.contacts[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	return &m, nil
}

// ContactMessages lists messages newest first.
func (s *Store) ContactMessages(_ context.Context) ([]models.ContactMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.ContactMessage{}
	for _, m := range s.contacts {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// MarkContactReplied records the reply and queues events.
func (s *Store) MarkContactReplied(_ context.Context, id, reply string, at time.Time, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.contacts[id]
	if !ok {
		return apperr.NotFound("message not found")
	}
	m.Replied = true
	m.ReplyMessage = reply
	m.RepliedAt = &at
	s.contacts[id] = m
	s.enqueueLocked(events)
	return nil
}

// ---- outbox ----

func (s *Store) enqueueLocked(events []models.OutboxEvent) {
	for _, e := range events {
		e.To = slices.Clone(e.To)
		s.outbox[e.ID] = e
	}
}

// EnqueueOutbox queues events on their own.
func (s *Store) EnqueueOutbox(_ context.Context, events ...models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enqueueLocked(events)
	return nil
}

// PendingOutbox returns up to limit pending events, oldest first.
func (s *Store) PendingOutbox(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.OutboxEvent{}
	for _, e := range s.outbox {
		if e.State == models.OutboxPending {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetOutboxEvent returns the event with id.
func (s *Store) GetOutboxEvent(_ context.Context, id string) (*models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.outbox[id]
	if !ok {
		return nil, apperr.NotFound("outbox event not found")
	}
	return &e, nil
}

// SaveOutboxEvent replaces an event after a delivery attempt.
func (s *Store) SaveOutboxEvent(_ context.Context, e *models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox[e.ID] = *e
	return nil
}

// Outbox returns every queued event regardless of state, oldest first.
func (s *Store) Outbox() []models.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ContractCount returns the number of stored contracts.
func (s *Store) ContractCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contracts)
}

// ClaimCount returns the number of stored claims.
func (s *Store) ClaimCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

// ---- tasks ----

// CreateTask stores a new task.
func (s *Store) CreateTask(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return apperr.Conflict("task already exists")
	}
	s.tasks[t.ID] = *t
	return nil
}

// GetTask returns the task with id.
func (s *Store) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task not found")
	}
	return &t, nil
}

// Tasks lists every task oldest first.
func (s *Store) Tasks(_ context.Context) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateTask replaces an existing task.
func (s *Store) UpdateTask(_ context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return apperr.NotFound("task not found")
	}
	s.tasks[t.ID] = *t
	return nil
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return apperr.NotFound("task not found")
	}
	delete(s.tasks, id)
	return nil
}
