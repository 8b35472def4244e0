// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-auth/internal/auth"
	"github.com/taibuivan/yomira-auth/internal/platform/mailer"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/pkg/pointer"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// # Clock

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// # In-memory Store

// memoryStore serializes transactions and restores a snapshot on rollback.
type memoryStore struct {
	txMu       sync.Mutex
	mu         sync.Mutex
	identities map[string]auth.Identity
	sessions   map[string]auth.RefreshSession // keyed by identity ID
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		identities: map[string]auth.Identity{},
		sessions:   map[string]auth.RefreshSession{},
	}
}

func (store *memoryStore) Repositories() auth.Repositories {
	return auth.Repositories{
		Identities: memoryIdentities{store},
		Sessions:   memorySessions{store},
	}
}

func (store *memoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos auth.Repositories) error) error {
	store.txMu.Lock()
	defer store.txMu.Unlock()

	store.mu.Lock()
	identities := make(map[string]auth.Identity, len(store.identities))
	for key, value := range store.identities {
		identities[key] = value
	}
	sessions := make(map[string]auth.RefreshSession, len(store.sessions))
	for key, value := range store.sessions {
		sessions[key] = value
	}
	store.mu.Unlock()

	if err := fn(ctx, store.Repositories()); err != nil {
		store.mu.Lock()
		store.identities, store.sessions = identities, sessions
		store.mu.Unlock()
		return err
	}
	return nil
}

func (store *memoryStore) sessionCount(identityID string) int {
	store.mu.Lock()
	defer store.mu.Unlock()
	count := 0
	for _, session := range store.sessions {
		if session.IdentityID == identityID {
			count++
		}
	}
	return count
}

func (store *memoryStore) put(identity auth.Identity) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.identities[identity.ID] = identity
}

type memoryIdentities struct{ store *memoryStore }

func (repository memoryIdentities) find(match func(identity auth.Identity) bool) (*auth.Identity, error) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	for _, identity := range repository.store.identities {
		if match(identity) {
			found := identity
			return &found, nil
		}
	}
	return nil, auth.ErrIdentityNotFound
}

func (repository memoryIdentities) FindByID(_ context.Context, id string) (*auth.Identity, error) {
	return repository.find(func(identity auth.Identity) bool { return identity.ID == id })
}

func (repository memoryIdentities) FindByIDForUpdate(ctx context.Context, id string) (*auth.Identity, error) {
	return repository.FindByID(ctx, id)
}

func (repository memoryIdentities) FindByUsername(_ context.Context, username string) (*auth.Identity, error) {
	return repository.find(func(identity auth.Identity) bool { return identity.Username == username })
}

func (repository memoryIdentities) FindByEmail(_ context.Context, email string) (*auth.Identity, error) {
	return repository.find(func(identity auth.Identity) bool {
		return identity.Email != nil && *identity.Email == email
	})
}

func (repository memoryIdentities) conflict(candidate *auth.Identity) error {
	for _, identity := range repository.store.identities {
		if identity.ID == candidate.ID {
			continue
		}
		if identity.Username == candidate.Username {
			return auth.ErrUsernameTaken
		}
		if identity.Email != nil && candidate.Email != nil && *identity.Email == *candidate.Email {
			return auth.ErrEmailTaken
		}
	}
	return nil
}

func (repository memoryIdentities) Create(_ context.Context, identity *auth.Identity) error {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	if err := repository.conflict(identity); err != nil {
		return err
	}
	repository.store.identities[identity.ID] = *identity
	return nil
}

func (repository memoryIdentities) Save(_ context.Context, identity *auth.Identity) error {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	if _, ok := repository.store.identities[identity.ID]; !ok {
		return auth.ErrIdentityNotFound
	}
	if err := repository.conflict(identity); err != nil {
		return err
	}
	repository.store.identities[identity.ID] = *identity
	return nil
}

type memorySessions struct{ store *memoryStore }

func (repository memorySessions) Upsert(_ context.Context, session *auth.RefreshSession) error {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	repository.store.sessions[session.IdentityID] = *session
	return nil
}

func (repository memorySessions) FindByTokenHash(_ context.Context, tokenHash string) (*auth.RefreshSession, error) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	for _, session := range repository.store.sessions {
		if session.TokenHash == tokenHash {
			found := session
			return &found, nil
		}
	}
	return nil, auth.ErrSessionNotFound
}

func (repository memorySessions) TakeByTokenHash(_ context.Context, tokenHash string) (*auth.RefreshSession, error) {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	for key, session := range repository.store.sessions {
		if session.TokenHash == tokenHash {
			delete(repository.store.sessions, key)
			return &session, nil
		}
	}
	return nil, auth.ErrSessionNotFound
}

func (repository memorySessions) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	for key, session := range repository.store.sessions {
		if session.TokenHash == tokenHash {
			delete(repository.store.sessions, key)
		}
	}
	return nil
}

func (repository memorySessions) DeleteByIdentity(_ context.Context, identityID string) error {
	repository.store.mu.Lock()
	defer repository.store.mu.Unlock()
	delete(repository.store.sessions, identityID)
	return nil
}

// # In-memory OTP Challenges

type memoryChallenges struct {
	mu         sync.Mutex
	challenges map[string]auth.OtpChallenge
}

func newMemoryChallenges() *memoryChallenges {
	return &memoryChallenges{challenges: map[string]auth.OtpChallenge{}}
}

func (repository *memoryChallenges) Replace(_ context.Context, challenge *auth.OtpChallenge) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	repository.challenges[challenge.IdentityID] = *challenge
	return nil
}

func (repository *memoryChallenges) Find(_ context.Context, identityID string) (*auth.OtpChallenge, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()
	challenge, ok := repository.challenges[identityID]
	if !ok {
		return nil, nil
	}
	return &challenge, nil
}

func (repository *memoryChallenges) Update(_ context.Context, identityID string, fn func(challenge *auth.OtpChallenge) (auth.OtpDecision, error)) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	var current *auth.OtpChallenge
	if challenge, ok := repository.challenges[identityID]; ok {
		current = &challenge
	}

	decision, err := fn(current)
	if err != nil {
		return err
	}
	switch decision {
	case auth.OtpPersist:
		if current != nil {
			repository.challenges[identityID] = *current
		}
	case auth.OtpDelete:
		delete(repository.challenges, identityID)
	}
	return nil
}

// # Deliverer

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

type capturingDeliverer struct {
	mu       sync.Mutex
	messages map[string][]mailer.Message
	err      error
}

func newCapturingDeliverer() *capturingDeliverer {
	return &capturingDeliverer{messages: map[string][]mailer.Message{}}
}

func (deliverer *capturingDeliverer) Deliver(_ context.Context, recipient string, message mailer.Message) error {
	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	if deliverer.err != nil {
		return deliverer.err
	}
	deliverer.messages[recipient] = append(deliverer.messages[recipient], message)
	return nil
}

// lastCode returns the code of the most recent message sent to recipient.
func (deliverer *capturingDeliverer) lastCode(t *testing.T, recipient string) string {
	t.Helper()
	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	messages := deliverer.messages[recipient]
	require.NotEmpty(t, messages, "no message delivered to %s", recipient)
	code := sixDigits.FindString(messages[len(messages)-1].Body)
	require.NotEmpty(t, code)
	return code
}

func (deliverer *capturingDeliverer) count(recipient string) int {
	deliverer.mu.Lock()
	defer deliverer.mu.Unlock()
	return len(deliverer.messages[recipient])
}

var errDeliveryDown = errors.New("smtp relay unreachable")

// # Fixture

type fixture struct {
	clock      *clock
	store      *memoryStore
	challenges *memoryChallenges
	deliverer  *capturingDeliverer
	hasher     *sec.BcryptHasher
	signer     *sec.TokenSigner
	service    *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c := newClock()
	signer, err := sec.NewTokenSigner(testSecret, 15*time.Minute, sec.WithClock(c.Now))
	require.NoError(t, err)

	f := &fixture{
		clock:      c,
		store:      newMemoryStore(),
		challenges: newMemoryChallenges(),
		deliverer:  newCapturingDeliverer(),
		hasher:     sec.NewBcryptHasher(4),
		signer:     signer,
	}
	f.service = auth.NewService(auth.Dependencies{
		Store:      f.store,
		Challenges: f.challenges,
		Hasher:     f.hasher,
		Signer:     f.signer,
		Deliverer:  f.deliverer,
	}, auth.Options{
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Clock:           c.Now,
	})
	return f
}

func (f *fixture) seed(t *testing.T, id, username string, email *string, password string, role sec.Role, firstLogin bool) auth.Identity {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)

	identity := auth.Identity{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FirstLogin:   firstLogin,
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	f.store.put(identity)
	return identity
}

func (f *fixture) seedPendingAdmin(t *testing.T) auth.Identity {
	return f.seed(t, "0190a1b2-0000-7000-8000-00000000000a", "admin", nil, "admin", sec.RoleAdmin, true)
}

func (f *fixture) seedPendingUser(t *testing.T) auth.Identity {
	return f.seed(t, "0190a1b2-0000-7000-8000-0000000000b1", "bob", pointer.To("bob@x.com"), "Temp1234", sec.RoleUser, true)
}

func (f *fixture) seedActiveUser(t *testing.T) auth.Identity {
	return f.seed(t, "0190a1b2-0000-7000-8000-0000000000c1", "carol", pointer.To("carol@x.com"), "Secret123", sec.RoleUser, false)
}
