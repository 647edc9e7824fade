package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/portfolio-backend/internal/model"
	"github.com/iliyamo/portfolio-backend/internal/oauth"
	"github.com/iliyamo/portfolio-backend/internal/otp"
	"github.com/iliyamo/portfolio-backend/internal/refresh"
	"github.com/iliyamo/portfolio-backend/internal/repository"
	"github.com/iliyamo/portfolio-backend/internal/token"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// memUsers enforces the same unique rules as the users table.
type memUsers struct {
	mu      sync.Mutex
	byID    map[string]model.User
	saves   int
	saveErr error
}

func newMemUsers() *memUsers { return &memUsers{byID: map[string]model.User{}} }

func (m *memUsers) find(match func(model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u model.User) bool { return u.Email == email })
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u model.User) bool { return u.Username != "" && u.Username == username })
}

func (m *memUsers) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, err := m.FindByUsername(ctx, username)
	return err == nil, nil
}

func (m *memUsers) Save(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for id, other := range m.byID {
		if id == u.ID {
			continue
		}
		if other.Email == u.Email {
			return repository.ErrEmailExists
		}
		if u.Username != "" && other.Username == u.Username {
			return repository.ErrUsernameExists
		}
	}
	m.byID[u.ID] = *u
	m.saves++
	return nil
}

func (m *memUsers) DeleteByEmail(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.byID {
		if u.Email == email {
			delete(m.byID, id)
		}
	}
	return nil
}

func (m *memUsers) put(u model.User) {
	m.mu.Lock()
	m.byID[u.ID] = u
	m.mu.Unlock()
}

type outbox struct {
	mu   sync.Mutex
	sent map[string][]string
	err  error
}

func newOutbox() *outbox { return &outbox{sent: map[string][]string{}} }

func (o *outbox) Send(_ context.Context, address, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent[address] = append(o.sent[address], code)
	return nil
}

func (o *outbox) last(address string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	codes := o.sent[address]
	if len(codes) == 0 {
		return ""
	}
	return codes[len(codes)-1]
}

type fakeProvider struct {
	profile     oauth.Profile
	exchangeErr error
	profileErr  error
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example/auth?state=" + state
}

func (p *fakeProvider) ExchangeCode(_ context.Context, code string) (string, error) {
	if p.exchangeErr != nil {
		return "", p.exchangeErr
	}
	return "provider-" + code, nil
}

func (p *fakeProvider) FetchProfile(_ context.Context, _ string) (oauth.Profile, error) {
	if p.profileErr != nil {
		return oauth.Profile{}, p.profileErr
	}
	return p.profile, nil
}

var errBoom = errors.New("boom")

type harness struct {
	clock    *clockwork.FakeClock
	users    *memUsers
	outbox   *outbox
	otps     *otp.Store
	issuer   *token.Issuer
	registry *refresh.MemoryRegistry
	provider *fakeProvider
	reg      *RegistrationFlow
	sessions *SessionFlow
}

func newHarness(t *testing.T, otpOpts ...otp.Option) *harness {
	t.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		users:    newMemUsers(),
		outbox:   newOutbox(),
		registry: refresh.NewMemoryRegistry(),
		provider: &fakeProvider{},
	}
	opts := append([]otp.Option{otp.WithClock(h.clock), otp.WithLogger(quiet)}, otpOpts...)
	h.otps = otp.NewStore(otp.NewMemoryRepository(), opts...)

	var err error
	h.issuer, err = token.NewIssuer(token.Config{
		Secret:     []byte("test-secret-test-secret-test-sec"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, h.clock, quiet)
	require.NoError(t, err)

	h.reg = NewRegistrationFlow(h.users, h.otps, h.outbox,
		RegistrationConfig{BcryptCost: bcrypt.MinCost, NotifyTimeout: time.Second}, quiet)
	h.sessions = NewSessionFlow(h.users, h.issuer, h.registry, h.provider,
		SessionConfig{BcryptCost: bcrypt.MinCost, ProviderTimeout: time.Second}, quiet)
	return h
}
