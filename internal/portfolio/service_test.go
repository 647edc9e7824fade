package portfolio

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/portfolio-backend/internal/model"
	"github.com/iliyamo/portfolio-backend/internal/repository"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

type memStore struct {
	mu   sync.Mutex
	rows map[string]model.Portfolio
}

func newMemStore() *memStore { return &memStore{rows: map[string]model.Portfolio{}} }

func (m *memStore) Create(_ context.Context, p *model.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = *p
	return nil
}

func (m *memStore) Update(_ context.Context, p *model.Portfolio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[p.ID]
	if !ok || cur.UserID != p.UserID {
		return repository.ErrNotFound
	}
	m.rows[p.ID] = *p
	return nil
}

func (m *memStore) Delete(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.rows[id]
	if !ok || cur.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*model.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) filter(keep func(model.Portfolio) bool) []model.Portfolio {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Portfolio{}
	for _, p := range m.rows {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]model.Portfolio, error) {
	return m.filter(func(p model.Portfolio) bool { return p.UserID == userID }), nil
}

func (m *memStore) ListPublic(_ context.Context) ([]model.Portfolio, error) {
	return m.filter(func(p model.Portfolio) bool { return p.IsPublic }), nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestCreateMapsInputAndEncodesPhoto(t *testing.T) {
	svc, _ := newTestService()

	p, err := svc.Create(context.Background(), "alice", Input{
		Name:     "Alice",
		Email:    "a@x.io",
		Skills:   []string{" go ", "", "sql"},
		IsPublic: true,
		Upload:   &Photo{Data: pngBytes},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, "a@x.io", p.Email)
	assert.Equal(t, []string{"go", "sql"}, p.Skills)
	assert.True(t, p.IsPublic)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pngBytes), p.Photo)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", Input{Name: " "})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.Create(ctx, "alice", Input{Name: "A", Upload: &Photo{Data: []byte("plain text, not an image")}})
	assert.ErrorIs(t, err, ErrInvalidPhoto)

	big := append(append([]byte{}, pngBytes...), make([]byte, MaxPhotoBytes)...)
	_, err = svc.Create(ctx, "alice", Input{Name: "A", Upload: &Photo{Data: big}})
	assert.ErrorIs(t, err, ErrInvalidPhoto)
}

func TestOwnershipRules(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, "alice", Input{Name: "Private"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "bob", p.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.Update(ctx, "bob", p.ID, Input{Name: "Hijack"})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, "bob", p.ID), ErrForbidden)
	_, err = svc.ToggleVisibility(ctx, "bob", p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	got, err := svc.Get(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Private", got.Name)

	_, err = svc.Get(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
}

func TestVisibilityToggleAndPublicListing(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, "alice", Input{Name: "Alice"})
	require.NoError(t, err)

	list, err := svc.ListPublic(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	toggled, err := svc.ToggleVisibility(ctx, "alice", p.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsPublic)

	list, err = svc.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := svc.Get(ctx, "bob", p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, "alice", Input{Name: "Alice", Address: "Main St", Upload: &Photo{Data: pngBytes}})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "alice", p.ID, Input{Name: "Alice B", Skills: []string{"go"}, IsPublic: true})
	require.NoError(t, err)

	assert.Equal(t, "Alice B", updated.Name)
	assert.Equal(t, "Main St", updated.Address)
	assert.Equal(t, p.Photo, updated.Photo)
	assert.Equal(t, []string{"go"}, updated.Skills)
	assert.True(t, updated.IsPublic)

	mine, err := svc.ListMine(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Alice B", mine[0].Name)
}

func TestDeleteRemoves(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	p, err := svc.Create(ctx, "alice", Input{Name: "Alice"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "alice", p.ID))
	assert.Empty(t, store.rows)
	assert.ErrorIs(t, svc.Delete(ctx, "alice", p.ID), ErrPortfolioNotFound)
}

type fakePutter struct{ in *s3.PutObjectInput }

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	return &s3.PutObjectOutput{}, nil
}

func TestS3PhotoStoreUploads(t *testing.T) {
	putter := &fakePutter{}
	store := newS3PhotoStore(putter, "photos", "https://cdn.example/photos/")
	store.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	url, err := store.Store(context.Background(), "alice", Photo{Data: pngBytes, ContentType: "image/png"})
	require.NoError(t, err)

	require.NotNil(t, putter.in)
	assert.Equal(t, "photos", *putter.in.Bucket)
	assert.True(t, strings.HasPrefix(*putter.in.Key, "portfolios/alice/2024/03/"))
	assert.True(t, strings.HasSuffix(*putter.in.Key, ".png"))
	assert.Equal(t, "https://cdn.example/photos/"+*putter.in.Key, url)
}
