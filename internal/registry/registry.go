// Package registry implements the identity workflows: registration with
// duplicate-face rejection, updates, deletion and recognition of a probe face.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/storage"
)

// Image is an uploaded photograph.
type Image struct {
	Data        []byte
	ContentType string
}

// RegisterInput is a new identity.
type RegisterInput struct {
	Name    string
	Surname string
	Email   string
	Image   Image
}

// UpdateInput holds the fields to change; nil fields are left untouched.
type UpdateInput struct {
	Name    *string
	Surname *string
	Email   *string
	Image   *Image
}

// Recognition is the result of matching a probe face. Identity is set only
// for facematch.Recognized.
type Recognition struct {
	facematch.Result
	Identity *database.Identity
}

// Options configures a Registry.
type Options struct {
	RequireEmail bool
	Metrics      *metrics.Metrics // may be nil
	Logger       logrus.FieldLogger
}

// Registry coordinates the identity store, the image store and the
// embedding provider.
type Registry struct {
	store        database.IdentityStore
	images       storage.ImageStore
	embedder     embedding.Provider
	matcher      *facematch.Matcher
	metrics      *metrics.Metrics
	log          logrus.FieldLogger
	requireEmail bool
}

// New creates a registry.
func New(store database.IdentityStore, images storage.ImageStore, embedder embedding.Provider, matcher *facematch.Matcher, opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		store:        store,
		images:       images,
		embedder:     embedder,
		matcher:      matcher,
		metrics:      opts.Metrics,
		log:          log,
		requireEmail: opts.RequireEmail,
	}
}

// Register validates the input, embeds the face and stores a new identity.
// The duplicate check and the insert run under the registry write lock, so
// two concurrent registrations of the same face cannot both succeed.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*database.Identity, error) {
	identity, err := r.register(ctx, in)
	r.metrics.IncRegistration(registrationResult(err))
	return identity, err
}

func (r *Registry) register(ctx context.Context, in RegisterInput) (*database.Identity, error) {
	name, err := NormalizeName("name", in.Name)
	if err != nil {
		return nil, err
	}
	surname, err := NormalizeName("surname", in.Surname)
	if err != nil {
		return nil, err
	}
	email, err := NormalizeEmail(in.Email, r.requireEmail)
	if err != nil {
		return nil, err
	}
	contentType, err := checkImage(in.Image)
	if err != nil {
		return nil, err
	}

	vector, err := r.embed(ctx, in.Image.Data)
	if err != nil {
		return nil, err
	}

	var created *database.Identity
	err = r.store.Serialize(ctx, func(ctx context.Context) error {
		if err := r.checkDuplicate(ctx, vector, 0); err != nil {
			return err
		}

		ref, err := r.images.Save(ctx, in.Image.Data, contentType)
		if err != nil {
			return &StorageError{Op: "save", Err: err}
		}

		identity := &database.Identity{
			Name:      name,
			Surname:   surname,
			Email:     email,
			Embedding: vector,
			ImageRef:  ref,
		}
		if err := r.store.Create(ctx, identity); err != nil {
			r.discardImage(ref)
			if errors.Is(err, database.ErrDuplicateEmail) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("create identity: %w", err)
		}
		created = identity
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"id":    created.ID,
		"image": created.ImageRef,
	}).Info("identity registered")
	return created, nil
}

// Update changes the given fields of an identity. A new image is embedded
// and checked for duplicates against everyone but the identity itself; the
// record then switches to the new image and embedding in one write and the
// old image is removed afterwards.
func (r *Registry) Update(ctx context.Context, id int64, in UpdateInput) (*database.Identity, error) {
	var (
		name, surname, email *string
		contentType          string
		vector               []float32
	)
	if in.Name != nil {
		v, err := NormalizeName("name", *in.Name)
		if err != nil {
			return nil, err
		}
		name = &v
	}
	if in.Surname != nil {
		v, err := NormalizeName("surname", *in.Surname)
		if err != nil {
			return nil, err
		}
		surname = &v
	}
	if in.Email != nil {
		v, err := NormalizeEmail(*in.Email, r.requireEmail)
		if err != nil {
			return nil, err
		}
		email = &v
	}
	if in.Image != nil {
		ct, err := checkImage(*in.Image)
		if err != nil {
			return nil, err
		}
		contentType = ct
		if vector, err = r.embed(ctx, in.Image.Data); err != nil {
			return nil, err
		}
	}

	var (
		updated *database.Identity
		oldRef  string
	)
	err := r.store.Serialize(ctx, func(ctx context.Context) error {
		current, err := r.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load identity: %w", err)
		}

		next := *current
		if name != nil {
			next.Name = *name
		}
		if surname != nil {
			next.Surname = *surname
		}
		if email != nil {
			next.Email = *email
		}

		var newRef string
		if in.Image != nil {
			if err := r.checkDuplicate(ctx, vector, id); err != nil {
				return err
			}
			if newRef, err = r.images.Save(ctx, in.Image.Data, contentType); err != nil {
				return &StorageError{Op: "save", Err: err}
			}
			next.Embedding = vector
			next.ImageRef = newRef
		}

		if err := r.store.Update(ctx, &next); err != nil {
			if newRef != "" {
				r.discardImage(newRef)
			}
			switch {
			case errors.Is(err, database.ErrNotFound):
				return ErrNotFound
			case errors.Is(err, database.ErrDuplicateEmail):
				return ErrDuplicateEmail
			}
			return fmt.Errorf("update identity: %w", err)
		}

		if newRef != "" {
			oldRef = current.ImageRef
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if oldRef != "" && oldRef != updated.ImageRef {
		r.discardImage(oldRef)
	}
	r.log.WithField("id", id).Info("identity updated")
	return updated, nil
}

// Delete removes an identity and then its image.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	var ref string
	err := r.store.Serialize(ctx, func(ctx context.Context) error {
		current, err := r.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load identity: %w", err)
		}
		if err := r.store.Delete(ctx, id); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("delete identity: %w", err)
		}
		ref = current.ImageRef
		return nil
	})
	if err != nil {
		return err
	}

	if ref != "" {
		r.discardImage(ref)
	}
	r.log.WithField("id", id).Info("identity deleted")
	return nil
}

// Get returns one identity.
func (r *Registry) Get(ctx context.Context, id int64) (*database.Identity, error) {
	identity, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return identity, nil
}

// List returns all identities in registration order.
func (r *Registry) List(ctx context.Context) ([]database.Identity, error) {
	identities, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return identities, nil
}

// Search returns the identities whose name or email contains query,
// ignoring case and diacritics.
func (r *Registry) Search(ctx context.Context, query string) ([]database.Identity, error) {
	identities, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := identities[:0]
	for i := range identities {
		if MatchesSearch(&identities[i], query) {
			out = append(out, identities[i])
		}
	}
	return out, nil
}

// Recognize matches a probe photograph against every registered identity.
// It never writes.
func (r *Registry) Recognize(ctx context.Context, img Image) (*Recognition, error) {
	if _, err := checkImage(img); err != nil {
		return nil, err
	}
	vector, err := r.embed(ctx, img.Data)
	if err != nil {
		return nil, err
	}

	identities, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	result := r.matcher.Recognize(vector, facematch.Candidates(identities))
	r.metrics.ObserveRecognition(string(result.Outcome), result.Distance, result.Outcome != facematch.NoCandidates)

	rec := &Recognition{Result: result}
	if result.Outcome == facematch.Recognized {
		for i := range identities {
			if identities[i].ID == result.ID {
				rec.Identity = &identities[i]
				break
			}
		}
	}

	r.log.WithFields(logrus.Fields{
		"outcome":  result.Outcome,
		"id":       result.ID,
		"distance": result.Distance,
	}).Info("face comparison")
	return rec, nil
}

func (r *Registry) embed(ctx context.Context, data []byte) ([]float32, error) {
	vector, err := r.embedder.Embed(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, embedding.ErrEmptyEmbedding
	}
	return vector, nil
}

// checkDuplicate must run under Serialize.
func (r *Registry) checkDuplicate(ctx context.Context, vector []float32, exclude int64) error {
	identities, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list identities: %w", err)
	}
	if dup, distance, ok := r.matcher.FindDuplicate(vector, facematch.Candidates(identities), exclude); ok {
		return &DuplicateFaceError{ExistingID: dup.ID, Distance: distance}
	}
	return nil
}

// discardImage removes an image that is no longer referenced. Failures leave
// an orphaned file and are only logged.
func (r *Registry) discardImage(ref string) {
	if err := r.images.Delete(context.Background(), ref); err != nil {
		r.log.WithError(err).WithField("image", ref).Warn("failed to delete image")
	}
}

func registrationResult(err error) string {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return metrics.ResultCreated
	case errors.Is(err, ErrDuplicateFace):
		return metrics.ResultDuplicateFace
	case errors.As(err, &validationErr),
		errors.Is(err, ErrUnsupportedMedia),
		errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, embedding.ErrNoFaceDetected),
		errors.Is(err, embedding.ErrEmptyEmbedding),
		errors.Is(err, embedding.ErrInvalidImage):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
