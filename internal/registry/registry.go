// Package registry implements the Tenant → Image Registry:
// a durable mapping tenant ↔ image identifier ↔ artifact path, with a
// reverse lookup that must stay consistent with the forward mapping across
// every operation.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zkgate/internal/apperrors"
)

// Metadata is optional descriptive information about a deployment.
type Metadata struct {
	UseCase     string `json:"use_case"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// Deployment is a tenant's bound guest program.
type Deployment struct {
	CustomerID        string    `json:"customer_id"`
	ImageID           string    `json:"image_id"` // hex
	GuestProgramPath  string    `json:"guest_program_path"`
	CreatedAt         time.Time `json:"created_at"`
	Metadata          *Metadata `json:"metadata,omitempty"`
}

const (
	deploymentKeyPrefix = "deployment:"
	imageIDKeyPrefix    = "image_id:"
	allDeploymentsSet   = "deployments:all"
)

// Registry is the Redis-backed implementation.
type Registry struct {
	redis *redis.Client
}

// New constructs a Registry.
func New(client *redis.Client) *Registry {
	return &Registry{redis: client}
}

// Register creates a new deployment. It does not overwrite an existing
// deployment for the same customer — register must be a
// create-only operation, matching the original image-id-registry's
// register_deployment, which returns false rather than upserting.
func (r *Registry) Register(ctx context.Context, d Deployment) (created bool, err error) {
	key := deploymentKeyPrefix + d.CustomerID

	existing, err := r.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("register: check existing: %w", err))
	}
	if existing > 0 {
		return false, nil
	}

	blob, err := json.Marshal(d)
	if err != nil {
		return false, apperrors.ErrInternal.Wrap(err)
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, key, blob, 0)
	pipe.Set(ctx, imageIDKeyPrefix+d.ImageID, d.CustomerID, 0)
	pipe.SAdd(ctx, allDeploymentsSet, d.CustomerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("register: write: %w", err))
	}
	return true, nil
}

// Update replaces an existing deployment. If the image identifier changed,
// the stale reverse mapping is removed before the new one is installed, so
// forward and reverse mappings never disagree.
func (r *Registry) Update(ctx context.Context, customerID string, d Deployment) (updated bool, err error) {
	key := deploymentKeyPrefix + customerID

	existingBlob, err := r.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("update: read existing: %w", err))
	}

	var existing Deployment
	if err := json.Unmarshal([]byte(existingBlob), &existing); err != nil {
		return false, apperrors.ErrInternal.Wrap(fmt.Errorf("update: corrupt existing record: %w", err))
	}

	d.CustomerID = customerID
	blob, err := json.Marshal(d)
	if err != nil {
		return false, apperrors.ErrInternal.Wrap(err)
	}

	pipe := r.redis.TxPipeline()
	if existing.ImageID != d.ImageID && existing.ImageID != "" {
		pipe.Del(ctx, imageIDKeyPrefix+existing.ImageID)
	}
	pipe.Set(ctx, key, blob, 0)
	pipe.Set(ctx, imageIDKeyPrefix+d.ImageID, customerID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("update: write: %w", err))
	}
	return true, nil
}

// Get looks up a deployment by customer id.
func (r *Registry) Get(ctx context.Context, customerID string) (Deployment, bool, error) {
	blob, err := r.redis.Get(ctx, deploymentKeyPrefix+customerID).Result()
	if errors.Is(err, redis.Nil) {
		return Deployment{}, false, nil
	}
	if err != nil {
		return Deployment{}, false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("get: %w", err))
	}
	var d Deployment
	if err := json.Unmarshal([]byte(blob), &d); err != nil {
		return Deployment{}, false, apperrors.ErrInternal.Wrap(fmt.Errorf("get: corrupt record: %w", err))
	}
	return d, true, nil
}

// GetByImageID looks up a deployment via the reverse mapping.
func (r *Registry) GetByImageID(ctx context.Context, imageID string) (Deployment, bool, error) {
	customerID, err := r.redis.Get(ctx, imageIDKeyPrefix+imageID).Result()
	if errors.Is(err, redis.Nil) {
		return Deployment{}, false, nil
	}
	if err != nil {
		return Deployment{}, false, apperrors.ErrUnavailable.Wrap(fmt.Errorf("get by image id: %w", err))
	}
	return r.Get(ctx, customerID)
}

// Delete removes a deployment and both mappings that point to it.
func (r *Registry) Delete(ctx context.Context, customerID string) error {
	d, found, err := r.Get(ctx, customerID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, deploymentKeyPrefix+customerID)
	if d.ImageID != "" {
		pipe.Del(ctx, imageIDKeyPrefix+d.ImageID)
	}
	pipe.SRem(ctx, allDeploymentsSet, customerID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.ErrUnavailable.Wrap(fmt.Errorf("delete: %w", err))
	}
	return nil
}

// List returns every registered customer id.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	ids, err := r.redis.SMembers(ctx, allDeploymentsSet).Result()
	if err != nil {
		return nil, apperrors.ErrUnavailable.Wrap(fmt.Errorf("list: %w", err))
	}
	return ids, nil
}

// ListDeployments returns the full deployment record for every registered
// customer, not just their ids. A customer id present in allDeploymentsSet
// but missing its deployment key (a race with a concurrent Delete) is
// skipped rather than surfaced as an error.
func (r *Registry) ListDeployments(ctx context.Context) ([]Deployment, error) {
	ids, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Deployment, 0, len(ids))
	for _, id := range ids {
		d, found, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}
