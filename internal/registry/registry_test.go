package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/storage"
)

// fakeProvider maps image bytes to embeddings; unknown images have no face.
type fakeProvider struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32
}

func (f *fakeProvider) Embed(ctx context.Context, data []byte) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[string(data)]
	if !ok {
		return nil, embedding.ErrNoFaceDetected
	}
	return v, nil
}

// memImages is an in-memory image store with error injection.
type memImages struct {
	mu        sync.Mutex
	images    map[string][]byte
	seq       int
	saveErr   error
	deleteErr error
}

func newMemImages() *memImages {
	return &memImages{images: make(map[string][]byte)}
}

func (m *memImages) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	ext, ok := storage.AllowedMIMETypes[contentType]
	if !ok {
		return "", storage.ErrUnsupportedType
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := fmt.Sprintf("usuarios/%d%s", m.seq, ext)
	m.images[ref] = bytes.Clone(data)
	return ref, nil
}

func (m *memImages) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.images[ref]
	if !ok {
		return nil, storage.ErrImageNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memImages) Delete(ctx context.Context, ref string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, ref)
	return nil
}

func (m *memImages) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.images)
}

func (m *memImages) has(ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.images[ref]
	return ok
}

var (
	faceA     = []byte("face-a")
	faceA2    = []byte("face-a-second-photo")
	faceB     = []byte("face-b")
	faceC     = []byte("face-c")
	blank     = []byte("no-face")
	zeroFace  = []byte("zero-face")
	testFaces = map[string][]float32{
		"face-a":              {1, 0, 0},
		"face-a-second-photo": {0.98, 0.05, 0},
		"face-b":              {0, 1, 0},
		"face-c":              {0, 0, 1},
		"zero-face":           {0, 0, 0},
	}
)

type fixture struct {
	reg      *Registry
	store    *mock.MockIdentityStore
	images   *memImages
	provider *fakeProvider
}

func newFixture(t *testing.T, requireEmail bool) *fixture {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	f := &fixture{
		store:    mock.NewMockIdentityStore(),
		images:   newMemImages(),
		provider: &fakeProvider{vectors: testFaces},
	}
	f.reg = New(f.store, f.images, f.provider, facematch.NewMatcher(0.37, 0.37), Options{
		RequireEmail: requireEmail,
		Logger:       log,
	})
	return f
}

func jpeg(data []byte) Image {
	return Image{Data: data, ContentType: "image/jpeg"}
}

func (f *fixture) register(t *testing.T, name, email string, face []byte) *database.Identity {
	t.Helper()
	identity, err := f.reg.Register(context.Background(), RegisterInput{
		Name: name, Surname: "Test", Email: email, Image: jpeg(face),
	})
	require.NoError(t, err)
	return identity
}

func TestRegister_Success(t *testing.T) {
	f := newFixture(t, true)

	identity, err := f.reg.Register(context.Background(), RegisterInput{
		Name:    "  Ana ",
		Surname: "Pérez",
		Email:   " Ana@Example.COM ",
		Image:   Image{Data: faceA, ContentType: "image/jpeg; charset=binary"},
	})
	require.NoError(t, err)

	assert.NotZero(t, identity.ID)
	assert.Equal(t, "Ana", identity.Name)
	assert.Equal(t, "Pérez", identity.Surname)
	assert.Equal(t, "ana@example.com", identity.Email)
	assert.Equal(t, testFaces["face-a"], identity.Embedding)
	assert.True(t, strings.HasPrefix(identity.ImageRef, "usuarios/"))
	assert.True(t, strings.HasSuffix(identity.ImageRef, ".jpg"))
	assert.True(t, f.images.has(identity.ImageRef))
	assert.Equal(t, 1, f.store.SerializeCalls)

	stored, err := f.reg.Get(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.ImageRef, stored.ImageRef)
}

func TestRegister_ValidationOrder(t *testing.T) {
	long := strings.Repeat("a", 101)

	tests := []struct {
		name      string
		in        RegisterInput
		wantField string
		wantErr   error
	}{
		{
			name:      "empty name wins over everything",
			in:        RegisterInput{Name: "  ", Surname: "", Email: "bad", Image: Image{ContentType: "text/plain"}},
			wantField: "name",
		},
		{
			name:      "surname checked before email",
			in:        RegisterInput{Name: "Ana", Surname: "", Email: "bad", Image: jpeg(faceA)},
			wantField: "surname",
		},
		{
			name:      "name too long",
			in:        RegisterInput{Name: long, Surname: "X", Email: "a@b.co", Image: jpeg(faceA)},
			wantField: "name",
		},
		{
			name:      "email format checked before image",
			in:        RegisterInput{Name: "Ana", Surname: "X", Email: "not-an-email", Image: Image{ContentType: "text/plain"}},
			wantField: "email",
		},
		{
			name:      "missing email when required",
			in:        RegisterInput{Name: "Ana", Surname: "X", Image: jpeg(faceA)},
			wantField: "email",
		},
		{
			name:      "missing image",
			in:        RegisterInput{Name: "Ana", Surname: "X", Email: "a@b.co"},
			wantField: "image",
		},
		{
			name:    "unsupported media",
			in:      RegisterInput{Name: "Ana", Surname: "X", Email: "a@b.co", Image: Image{Data: faceA, ContentType: "text/plain"}},
			wantErr: ErrUnsupportedMedia,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			_, err := f.reg.Register(context.Background(), tt.in)
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				var ve *ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.wantField, ve.Field)
			}
			assert.Zero(t, f.provider.calls.Load(), "provider must not be called for invalid input")
			assert.Zero(t, f.images.count())
		})
	}
}

func TestRegister_NameLengthCountsCharacters(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.reg.Register(context.Background(), RegisterInput{
		Name: strings.Repeat("ñ", 100), Surname: "X", Image: jpeg(faceA),
	})
	assert.NoError(t, err)
}

func TestRegister_OptionalEmail(t *testing.T) {
	f := newFixture(t, false)
	identity := f.register(t, "Ana", "", faceA)
	assert.Empty(t, identity.Email)

	_, err := f.reg.Register(context.Background(), RegisterInput{
		Name: "Bob", Surname: "X", Email: "broken@", Image: jpeg(faceB),
	})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRegister_ProviderErrorsPassThrough(t *testing.T) {
	f := newFixture(t, true)

	_, err := f.reg.Register(context.Background(), RegisterInput{
		Name: "Ana", Surname: "X", Email: "a@b.co", Image: jpeg(blank),
	})
	assert.ErrorIs(t, err, embedding.ErrNoFaceDetected)

	f.provider.err = &embedding.ProviderError{StatusCode: 503, Err: errors.New("down")}
	_, err = f.reg.Register(context.Background(), RegisterInput{
		Name: "Ana", Surname: "X", Email: "a@b.co", Image: jpeg(faceA),
	})
	var pe *embedding.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 503, pe.StatusCode)

	assert.Zero(t, f.images.count())
	count, _ := f.store.Count(context.Background())
	assert.Zero(t, count)
}

func TestRegister_DuplicateFace(t *testing.T) {
	f := newFixture(t, true)
	first := f.register(t, "Ana", "ana@example.com", faceA)

	_, err := f.reg.Register(context.Background(), RegisterInput{
		Name: "Impostor", Surname: "X", Email: "other@example.com", Image: jpeg(faceA2),
	})
	require.ErrorIs(t, err, ErrDuplicateFace)

	var dup *DuplicateFaceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)
	assert.Less(t, dup.Distance, 0.37)

	count, _ := f.store.Count(context.Background())
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, f.images.count())
}

func TestRegister_ZeroVectorNeverDuplicate(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, "Zero", "", zeroFace)
	f.register(t, "Zero", "", zeroFace)

	count, _ := f.store.Count(context.Background())
	assert.Equal(t, 2, count)
}

func TestRegister_ConcurrentSameFace(t *testing.T) {
	f := newFixture(t, false)

	const workers = 10
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		dupes     atomic.Int32
	)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reg.Register(context.Background(), RegisterInput{
				Name: fmt.Sprintf("Twin%d", i), Surname: "X", Image: jpeg(faceA),
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrDuplicateFace):
				dupes.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), dupes.Load())
	assert.Equal(t, 1, f.images.count())
}

func TestRegister_DuplicateEmailCleansUpImage(t *testing.T) {
	f := newFixture(t, true)
	f.register(t, "Ana", "ana@example.com", faceA)

	_, err := f.reg.Register(context.Background(), RegisterInput{
		Name: "Bob", Surname: "X", Email: "ANA@example.com", Image: jpeg(faceB),
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, 1, f.images.count(), "image of the rejected registration must be removed")
}

func TestRegister_StorageFailureWritesNothing(t *testing.T) {
	f := newFixture(t, true)
	f.images.saveErr = errors.New("disk full")

	_, err := f.reg.Register(context.Background(), RegisterInput{
		Name: "Ana", Surname: "X", Email: "a@b.co", Image: jpeg(faceA),
	})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "save", se.Op)

	count, _ := f.store.Count(context.Background())
	assert.Zero(t, count)
}

func TestRegister_CreateFailureCleansUpImage(t *testing.T) {
	f := newFixture(t, true)
	f.store.CreateError = errors.New("connection reset")

	_, err := f.reg.Register(context.Background(), RegisterInput{
		Name: "Ana", Surname: "X", Email: "a@b.co", Image: jpeg(faceA),
	})
	require.Error(t, err)
	assert.Zero(t, f.images.count())
}

func ptr[T any](v T) *T { return &v }

func TestUpdate_FieldsOnly(t *testing.T) {
	f := newFixture(t, true)
	identity := f.register(t, "Ana", "ana@example.com", faceA)

	updated, err := f.reg.Update(context.Background(), identity.ID, UpdateInput{
		Name:  ptr(" Anita "),
		Email: ptr("ANITA@example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Anita", updated.Name)
	assert.Equal(t, "Test", updated.Surname)
	assert.Equal(t, "anita@example.com", updated.Email)
	assert.Equal(t, identity.ImageRef, updated.ImageRef)
	assert.Equal(t, int32(1), f.provider.calls.Load(), "no embedding without a new image")
}

func TestUpdate_ReplacesImageAndEmbedding(t *testing.T) {
	f := newFixture(t, true)
	identity := f.register(t, "Ana", "ana@example.com", faceA)

	// the identity's own face must not count as a duplicate
	updated, err := f.reg.Update(context.Background(), identity.ID, UpdateInput{Image: ptr(jpeg(faceA2))})
	require.NoError(t, err)
	assert.NotEqual(t, identity.ImageRef, updated.ImageRef)
	assert.Equal(t, testFaces["face-a-second-photo"], updated.Embedding)

	assert.False(t, f.images.has(identity.ImageRef), "old image must be deleted")
	assert.True(t, f.images.has(updated.ImageRef))

	stored, err := f.reg.Get(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.ImageRef, stored.ImageRef)
	assert.Equal(t, updated.Embedding, stored.Embedding)
}

func TestUpdate_DuplicateOfAnotherIdentity(t *testing.T) {
	f := newFixture(t, true)
	a := f.register(t, "Ana", "ana@example.com", faceA)
	b := f.register(t, "Bob", "bob@example.com", faceB)

	_, err := f.reg.Update(context.Background(), b.ID, UpdateInput{
		Name:  ptr("Bobby"),
		Image: ptr(jpeg(faceA2)),
	})
	var dup *DuplicateFaceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, a.ID, dup.ExistingID)

	stored, err := f.reg.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob", stored.Name)
	assert.Equal(t, b.ImageRef, stored.ImageRef)
	assert.Equal(t, 2, f.images.count())
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.reg.Update(context.Background(), 42, UpdateInput{Name: ptr("X")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_InvalidFieldRejectedBeforeEmbedding(t *testing.T) {
	f := newFixture(t, true)
	identity := f.register(t, "Ana", "ana@example.com", faceA)
	calls := f.provider.calls.Load()

	_, err := f.reg.Update(context.Background(), identity.ID, UpdateInput{
		Surname: ptr(""),
		Image:   ptr(jpeg(faceB)),
	})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "surname", ve.Field)
	assert.Equal(t, calls, f.provider.calls.Load())
}

func TestUpdate_WriteFailureKeepsOldImage(t *testing.T) {
	f := newFixture(t, true)
	identity := f.register(t, "Ana", "ana@example.com", faceA)
	f.store.UpdateError = errors.New("deadlock")

	_, err := f.reg.Update(context.Background(), identity.ID, UpdateInput{Image: ptr(jpeg(faceC))})
	require.Error(t, err)
	assert.Equal(t, 1, f.images.count())
	assert.True(t, f.images.has(identity.ImageRef))
}

func TestDelete(t *testing.T) {
	f := newFixture(t, true)
	identity := f.register(t, "Ana", "ana@example.com", faceA)

	require.NoError(t, f.reg.Delete(context.Background(), identity.ID))
	assert.Zero(t, f.images.count())

	_, err := f.reg.Get(context.Background(), identity.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.reg.Delete(context.Background(), identity.ID), ErrNotFound)
}

func TestDelete_ImageFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, true)
	identity := f.register(t, "Ana", "ana@example.com", faceA)
	f.images.deleteErr = errors.New("permission denied")

	assert.NoError(t, f.reg.Delete(context.Background(), identity.ID))
}

func TestRecognize(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	rec, err := f.reg.Recognize(ctx, jpeg(faceA))
	require.NoError(t, err)
	assert.Equal(t, facematch.NoCandidates, rec.Outcome)
	assert.Nil(t, rec.Identity)

	ana := f.register(t, "Ana", "", faceA)
	f.register(t, "Bob", "", faceB)

	rec, err = f.reg.Recognize(ctx, jpeg(faceA2))
	require.NoError(t, err)
	assert.Equal(t, facematch.Recognized, rec.Outcome)
	assert.Equal(t, ana.ID, rec.ID)
	require.NotNil(t, rec.Identity)
	assert.Equal(t, "Ana", rec.Identity.Name)

	rec, err = f.reg.Recognize(ctx, jpeg(faceC))
	require.NoError(t, err)
	assert.Equal(t, facematch.Unmatched, rec.Outcome)
	assert.InDelta(t, 1.0, rec.Distance, 1e-9)
	assert.Nil(t, rec.Identity)
}

func TestRecognize_AllEmbeddingsEmpty(t *testing.T) {
	f := newFixture(t, false)
	f.store.AddIdentity(database.Identity{Name: "Legacy", Surname: "X"})

	rec, err := f.reg.Recognize(context.Background(), jpeg(faceA))
	require.NoError(t, err)
	assert.Equal(t, facematch.NoCandidates, rec.Outcome)
}

func TestRecognize_RejectsUnsupportedMedia(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.reg.Recognize(context.Background(), Image{Data: faceA, ContentType: "image/gif"})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
	assert.Zero(t, f.provider.calls.Load())
}

func TestRecognize_NeverWrites(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, "Ana", "", faceA)
	before := f.store.SerializeCalls

	_, err := f.reg.Recognize(context.Background(), jpeg(faceA))
	require.NoError(t, err)
	assert.Equal(t, before, f.store.SerializeCalls)
	assert.Equal(t, 1, f.images.count())
}

func TestSearch(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, "José", "jose@example.com", faceA)
	f.register(t, "María", "", faceB)

	found, err := f.reg.Search(context.Background(), "jose")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "José", found[0].Name)

	found, err = f.reg.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
