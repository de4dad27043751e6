package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-concierge/internal/tenancy"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

func TestStaticInstanceResolver(t *testing.T) {
	mapping, err := ParseInstanceMap(`{" Clinic-A ":"tenant-a","":"x","clinic-b":""}`)
	require.NoError(t, err)
	resolver := NewStaticInstanceResolver(mapping)
	assert.Equal(t, 1, resolver.Len())

	tenant, err := resolver.ResolveTenant(context.Background(), "clinic-a")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", tenant)

	_, err = resolver.ResolveTenant(context.Background(), "clinic-b")
	var unmapped *tenancy.UnmappedInstanceError
	require.True(t, errors.As(err, &unmapped))
	assert.Equal(t, "clinic-b", unmapped.Instance)

	_, err = ParseInstanceMap("{")
	require.Error(t, err)
}

type countingResolver struct {
	calls   int
	mapping map[string]string
	err     error
}

func (c *countingResolver) ResolveTenant(_ context.Context, instance string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	if tenant, ok := c.mapping[instance]; ok {
		return tenant, nil
	}
	return "", &tenancy.UnmappedInstanceError{Instance: instance}
}

func TestCachedInstanceResolver(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingResolver{mapping: map[string]string{"clinic-a": "tenant-a"}}
	resolver := NewCachedInstanceResolver(backing, client, time.Minute, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tenant, err := resolver.ResolveTenant(ctx, "clinic-a")
		require.NoError(t, err)
		assert.Equal(t, "tenant-a", tenant)
	}
	assert.Equal(t, 1, backing.calls)

	for i := 0; i < 2; i++ {
		_, err := resolver.ResolveTenant(ctx, "ghost")
		var unmapped *tenancy.UnmappedInstanceError
		require.True(t, errors.As(err, &unmapped))
	}
	assert.Equal(t, 2, backing.calls, "unmapped answers are cached too")

	require.NoError(t, resolver.Invalidate(ctx, "clinic-a"))
	_, err := resolver.ResolveTenant(ctx, "clinic-a")
	require.NoError(t, err)
	assert.Equal(t, 3, backing.calls)
}

func TestCachedInstanceResolverDoesNotCacheFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingResolver{err: errors.New("db down")}
	resolver := NewCachedInstanceResolver(backing, client, time.Minute, logging.Discard())
	_, err := resolver.ResolveTenant(context.Background(), "clinic-a")
	require.Error(t, err)
	assert.False(t, mr.Exists(instanceCachePrefix+"clinic-a"))
}

func TestPostgresInstanceResolver(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	resolver := NewPostgresInstanceResolver(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT tenant_id FROM instance_bindings").
		WithArgs("clinic-a").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id"}).AddRow("tenant-a"))
	tenant, err := resolver.ResolveTenant(ctx, "Clinic-A")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", tenant)

	mock.ExpectQuery("SELECT tenant_id FROM instance_bindings").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, err = resolver.ResolveTenant(ctx, "ghost")
	var unmapped *tenancy.UnmappedInstanceError
	require.True(t, errors.As(err, &unmapped))

	mock.ExpectQuery("SELECT tenant_id FROM instance_bindings").
		WithArgs("clinic-b").
		WillReturnError(errors.New("connection reset"))
	_, err = resolver.ResolveTenant(ctx, "clinic-b")
	require.Error(t, err)
	assert.False(t, errors.As(err, &unmapped))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInstanceResolverBind(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO tenants").
		WithArgs("tenant-a").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO instance_bindings").
		WithArgs("clinic-a", "tenant-a").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	resolver := NewPostgresInstanceResolver(mock)
	require.NoError(t, resolver.Bind(context.Background(), "clinic-a", "tenant-a"))
	require.Error(t, resolver.Bind(context.Background(), "", "tenant-a"))
	require.NoError(t, mock.ExpectationsWereMet())
}
