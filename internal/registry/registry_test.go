package registry_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"zkgate/internal/registry"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return registry.New(client)
}

func TestRegister_CreateOnlyNotUpsert(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	created, err := reg.Register(ctx, registry.Deployment{CustomerID: "acme", ImageID: "aa"})
	require.NoError(t, err)
	require.True(t, created)

	createdAgain, err := reg.Register(ctx, registry.Deployment{CustomerID: "acme", ImageID: "bb"})
	require.NoError(t, err)
	require.False(t, createdAgain, "register must not overwrite an existing deployment")

	d, found, err := reg.Get(ctx, "acme")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "aa", d.ImageID)
}

func TestForwardReverseConsistency_AcrossUpdateAndDelete(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, registry.Deployment{CustomerID: "acme", ImageID: "aa"})
	require.NoError(t, err)

	assertConsistent(t, reg, "acme", "aa")

	updated, err := reg.Update(ctx, "acme", registry.Deployment{ImageID: "bb"})
	require.NoError(t, err)
	require.True(t, updated)

	assertConsistent(t, reg, "acme", "bb")

	// Stale reverse mapping must be gone.
	_, found, err := reg.GetByImageID(ctx, "aa")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, reg.Delete(ctx, "acme"))

	_, found, err = reg.Get(ctx, "acme")
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = reg.GetByImageID(ctx, "bb")
	require.NoError(t, err)
	require.False(t, found)
}

func TestUpdate_NonExistentReturnsFalse(t *testing.T) {
	reg := newTestRegistry(t)
	updated, err := reg.Update(context.Background(), "ghost", registry.Deployment{ImageID: "x"})
	require.NoError(t, err)
	require.False(t, updated)
}

func TestList_ReturnsAllCustomers(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	_, _ = reg.Register(ctx, registry.Deployment{CustomerID: "a", ImageID: "1"})
	_, _ = reg.Register(ctx, registry.Deployment{CustomerID: "b", ImageID: "2"})

	ids, err := reg.List(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestListDeployments_ReturnsFullRecords(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	_, _ = reg.Register(ctx, registry.Deployment{CustomerID: "a", ImageID: "1"})
	_, _ = reg.Register(ctx, registry.Deployment{CustomerID: "b", ImageID: "2"})

	deployments, err := reg.ListDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, deployments, 2)

	byCustomer := make(map[string]registry.Deployment, len(deployments))
	for _, d := range deployments {
		byCustomer[d.CustomerID] = d
	}
	require.Equal(t, "1", byCustomer["a"].ImageID)
	require.Equal(t, "2", byCustomer["b"].ImageID)
}

func assertConsistent(t *testing.T, reg *registry.Registry, customerID, imageID string) {
	t.Helper()
	ctx := context.Background()

	byCustomer, found, err := reg.Get(ctx, customerID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, imageID, byCustomer.ImageID)

	byImage, found, err := reg.GetByImageID(ctx, imageID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, customerID, byImage.CustomerID)
}
