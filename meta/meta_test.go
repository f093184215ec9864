package meta

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Audit struct {
	CreatedAt time.Time
	UpdatedBy string
}

type UserAccount struct {
	ID       int64
	UserName string `orm:"column:login"`
	Email    string
	Profile  map[string]any `orm:"json"`
	Secret   string         `orm:"-"`
	internal int
	Audit
}

type Order struct {
	OrderNo string `gorm:"primaryKey;column:order_no"`
	Amount  float64
}

func (Order) TableName() string { return "t_order" }

type NoKey struct {
	Name string
}

type TwoKeys struct {
	A int `orm:"primaryKey"`
	B int `orm:"primaryKey"`
}

func TestBuildDefaults(t *testing.T) {
	r := NewRegistry()
	m, err := Of[UserAccount](r)
	require.NoError(t, err)

	assert.Equal(t, "user_account", m.Table)
	assert.Equal(t, []string{"id", "login", "email", "profile", "created_at", "updated_by"}, m.Columns())
	require.NotNil(t, m.PrimaryKey)
	assert.Equal(t, "ID", m.PrimaryKey.Name)

	f, ok := m.Field("UserName")
	require.True(t, ok)
	assert.True(t, f.ExplicitColumn)
	assert.Equal(t, "login", f.Column)

	p, _ := m.Field("Profile")
	assert.True(t, p.JSON)

	_, ok = m.Field("Secret")
	assert.False(t, ok)
	_, ok = m.Field("internal")
	assert.False(t, ok)

	assert.Equal(t, "login", m.Column("UserName"))
	assert.Equal(t, "login", m.Column("login"))
	assert.Equal(t, "unknown", m.Column("unknown"))
}

func TestTablerAndGormTags(t *testing.T) {
	m, err := NewRegistry().Metadata(&Order{})
	require.NoError(t, err)
	assert.Equal(t, "t_order", m.Table)
	assert.Equal(t, "OrderNo", m.PrimaryKey.Name)
	assert.Equal(t, "order_no", m.PrimaryKey.Column)
}

func TestNoPrimaryKey(t *testing.T) {
	m, err := Of[NoKey](NewRegistry())
	require.NoError(t, err)
	assert.Nil(t, m.PrimaryKey)
	_, err = m.RequirePrimaryKey()
	assert.ErrorIs(t, err, ErrNoPrimaryKey)
}

func TestMultiplePrimaryKeys(t *testing.T) {
	_, err := Of[TwoKeys](NewRegistry())
	assert.ErrorIs(t, err, ErrMultiplePrimaryKeys)
}

func TestNotStruct(t *testing.T) {
	_, err := NewRegistry().Metadata(42)
	assert.ErrorIs(t, err, ErrNotStruct)
	_, err = NewRegistry().Metadata(nil)
	assert.ErrorIs(t, err, ErrNotStruct)
}

func TestCacheAndClear(t *testing.T) {
	r := NewRegistry()
	a, err := Of[UserAccount](r)
	require.NoError(t, err)
	b, err := r.Metadata(UserAccount{})
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, 1, r.CacheSize())

	r.ClearCache()
	assert.Equal(t, 0, r.CacheSize())

	c, err := r.MetadataOf(reflect.TypeOf(&UserAccount{}))
	require.NoError(t, err)
	assert.NotSame(t, a, c, "clear must force a rebuild")
	assert.True(t, a.Equal(c))
	assert.Equal(t, 1, r.CacheSize())
}

func TestConcurrentFirstAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	results := make([]*EntityMetadata, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := Of[Order](r)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()
	for _, m := range results {
		assert.Same(t, results[0], m)
	}
	assert.Equal(t, 1, r.CacheSize())
}

func TestAccessors(t *testing.T) {
	m, err := Of[UserAccount](NewRegistry())
	require.NoError(t, err)

	u := m.New().(*UserAccount)
	id, _ := m.Field("ID")
	assert.True(t, id.IsZero(u))
	require.NoError(t, id.Set(u, 7))
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, int64(7), id.Value(u))
	assert.False(t, id.IsZero(*u))

	by, _ := m.Field("UpdatedBy")
	require.NoError(t, by.Set(u, "ops"))
	assert.Equal(t, "ops", u.UpdatedBy)

	assert.Error(t, id.Set(*u, 1), "non-pointer entity")
	assert.Error(t, id.Set(u, "x"))
	require.NoError(t, by.Set(u, nil))
	assert.Equal(t, "", u.UpdatedBy)
}

type Base struct {
	ID      string `orm:"column:base_id"`
	Version int
}

type Shadowing struct {
	ID int64
	Base
	Version int `orm:"column:rev"`
}

func TestShallowerFieldWins(t *testing.T) {
	m, err := NewRegistry().Metadata(Shadowing{})
	require.NoError(t, err)

	id, ok := m.Field("ID")
	require.True(t, ok)
	assert.Equal(t, "id", id.Column)
	assert.Equal(t, reflect.TypeOf(int64(0)), id.Type)
	assert.Same(t, id, m.PrimaryKey)
	assert.Equal(t, int64(7), id.Value(&Shadowing{ID: 7, Base: Base{ID: "x"}}))

	v, ok := m.Field("Version")
	require.True(t, ok)
	assert.Equal(t, "rev", v.Column)
	assert.Equal(t, []string{"id", "rev"}, m.Columns())
	_, ok = m.Lookup("base_id")
	assert.False(t, ok)
}
