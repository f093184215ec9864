package dbctx

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDataSourceScope(t *testing.T) {
	ctx := With(context.Background())

	_, ok := DataSource(ctx)
	assert.False(t, ok)

	require.NoError(t, SetDataSource(ctx, "x"))
	inner, err := ExecuteWithDataSource(ctx, "y", func(ctx context.Context) (string, error) {
		ds, _ := DataSource(ctx)
		return ds, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "y", inner)

	ds, ok := DataSource(ctx)
	assert.True(t, ok)
	assert.Equal(t, "x", ds)
}

func TestDataSourceRestoredOnError(t *testing.T) {
	ctx := With(context.Background())
	require.NoError(t, SetDataSource(ctx, "x"))

	_, err := ExecuteWithDataSource(ctx, "y", func(ctx context.Context) (int, error) {
		return 0, errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	ds, _ := DataSource(ctx)
	assert.Equal(t, "x", ds)
}

func TestDataSourceRestoredOnPanic(t *testing.T) {
	ctx := With(context.Background())

	assert.Panics(t, func() {
		_, _ = ExecuteWithDataSource(ctx, "y", func(ctx context.Context) (int, error) {
			panic("boom")
		})
	})
	_, ok := DataSource(ctx)
	assert.False(t, ok, "unset must stay unset after the scope")
}

func TestNestedDataSource(t *testing.T) {
	ctx := With(context.Background())
	got := []string{}
	_, err := ExecuteWithDataSource(ctx, "a", func(ctx context.Context) (struct{}, error) {
		ds, _ := DataSource(ctx)
		got = append(got, ds)
		_, err := ExecuteWithDataSource(ctx, "b", func(ctx context.Context) (struct{}, error) {
			ds, _ := DataSource(ctx)
			got = append(got, ds)
			return struct{}{}, nil
		})
		ds, _ = DataSource(ctx)
		got = append(got, ds)
		return struct{}{}, err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "a"}, got)
	_, ok := DataSource(ctx)
	assert.False(t, ok)
}

func TestBlankKeysRejected(t *testing.T) {
	ctx := With(context.Background())
	assert.ErrorIs(t, SetDataSource(ctx, " "), ErrInvalidArgument)
	assert.ErrorIs(t, SetTableMapping(ctx, "user", ""), ErrInvalidArgument)
	_, err := ExecuteWithDataSource(ctx, "", func(ctx context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = ExecuteWithTableMapping(ctx, "", "x", func(ctx context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSetWithoutScope(t *testing.T) {
	assert.ErrorIs(t, SetDataSource(context.Background(), "x"), ErrNoScope)
	assert.ErrorIs(t, SetTableMapping(context.Background(), "a", "b"), ErrNoScope)
	assert.Equal(t, "user", TableMapping(context.Background(), "user"))
}

func TestTableMappingRemovedAfterScope(t *testing.T) {
	ctx := With(context.Background())
	inner, err := ExecuteWithTableMapping(ctx, "user", "user_2024", func(ctx context.Context) (string, error) {
		return TableMapping(ctx, "user"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "user_2024", inner)
	assert.Equal(t, "user", TableMapping(ctx, "user"))
	_, ok := LookupTableMapping(ctx, "user")
	assert.False(t, ok)
}

func TestTableMappingsRestoreEach(t *testing.T) {
	ctx := With(context.Background())
	require.NoError(t, SetTableMapping(ctx, "order", "order_1"))

	_, err := ExecuteWithTableMappings(ctx, map[string]string{
		"order": "order_7",
		"item":  "item_7",
	}, func(ctx context.Context) (int, error) {
		assert.Equal(t, "order_7", TableMapping(ctx, "order"))
		assert.Equal(t, "item_7", TableMapping(ctx, "item"))
		return 0, errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	assert.Equal(t, "order_1", TableMapping(ctx, "order"))
	assert.Equal(t, map[string]string{"order": "order_1"}, TableMappings(ctx))
}

func TestForkIsolation(t *testing.T) {
	ctx := With(context.Background())
	require.NoError(t, SetDataSource(ctx, "parent"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := Fork(ctx)
			key := []string{"a", "b"}[i%2]
			_, _ = ExecuteWithDataSource(child, key, func(ctx context.Context) (int, error) {
				ds, _ := DataSource(ctx)
				assert.Equal(t, key, ds)
				return 0, nil
			})
		}(i)
	}
	wg.Wait()

	ds, _ := DataSource(ctx)
	assert.Equal(t, "parent", ds)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterDataSource(DataSourceInfo{Key: "slave1"}))
	require.NoError(t, r.RegisterDataSource(DataSourceInfo{Key: "master", Description: "primary"}))
	assert.ErrorIs(t, r.RegisterDataSource(DataSourceInfo{}), ErrInvalidArgument)

	assert.Equal(t, []string{"master", "slave1"}, r.DataSources())
	info, ok := r.DataSource("slave1")
	require.True(t, ok)
	assert.Equal(t, "slave1", info.Name)

	require.NoError(t, r.RegisterTable("user"))
	assert.ErrorIs(t, r.RegisterTable(""), ErrInvalidArgument)
	assert.Equal(t, []string{"user"}, r.Tables())
}
