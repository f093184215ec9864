package mapper

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"gorm/routeorm/meta"
)

type Status int

func (Status) EnumValues() []string { return []string{"ACTIVE", "SUSPENDED", "DELETED"} }

type Role string

func (Role) EnumValues() []string { return []string{"admin", "member"} }

type Account struct {
	ID        int64  `orm:"primaryKey"`
	Username  string `orm:"column:user_name"`
	Age       int
	Score     float64
	Active    bool
	Bio       string
	Avatar    []byte
	Token     uuid.UUID
	CreatedAt time.Time
	DeletedAt *time.Time
	SeenAt    sql.NullTime
	Settings  map[string]any `orm:"json"`
	Extra     any            `orm:"json"`
	Tags      []string
	Scores    []int64
	Levels    []int32
	Aliases   pq.StringArray
	Status    Status
	Role      Role
	Nickname  sql.NullString
}

func accountMeta(t *testing.T) *meta.EntityMetadata {
	t.Helper()
	md, err := meta.Of[Account](meta.NewRegistry())
	require.NoError(t, err)
	return md
}

func TestMapScalarsAndText(t *testing.T) {
	m := New(WithLogger(logger.Discard))
	row := Row{
		Columns: []string{"ID", "USER_NAME", "age", "score", "active", "bio", "avatar", "unknown"},
		Values:  []any{int64(7), []byte("alice"), "42", float32(1.5), int64(1), []byte("long text"), []byte{1, 2}, "ignored"},
	}
	a, err := MapRow[Account](m, accountMeta(t), row)
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.ID)
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, 42, a.Age)
	assert.Equal(t, 1.5, a.Score)
	assert.True(t, a.Active)
	assert.Equal(t, "long text", a.Bio)
	assert.Equal(t, []byte{1, 2}, a.Avatar)
}

func TestMapMatchesFieldName(t *testing.T) {
	a, err := MapRow[Account](New(), accountMeta(t), Row{Columns: []string{"username"}, Values: []any{"bob"}})
	require.NoError(t, err)
	assert.Equal(t, "bob", a.Username)
}

func TestAbsentColumnLeavesFieldUntouched(t *testing.T) {
	md := accountMeta(t)
	a := Account{Username: "keep", Age: 3}
	require.NoError(t, New().Map(md, Row{Columns: []string{"age"}, Values: []any{int64(4)}}, &a))
	assert.Equal(t, "keep", a.Username)
	assert.Equal(t, 4, a.Age)
}

func TestMapTemporal(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	row := Row{
		Columns: []string{"created_at", "deleted_at", "seen_at"},
		Values:  []any{"2024-05-06 07:08:09", ts, []byte("2024-05-06")},
	}
	a, err := MapRow[Account](New(), accountMeta(t), row)
	require.NoError(t, err)
	assert.True(t, ts.Equal(a.CreatedAt))
	require.NotNil(t, a.DeletedAt)
	assert.True(t, ts.Equal(*a.DeletedAt))
	assert.True(t, a.SeenAt.Valid)
	assert.Equal(t, 6, a.SeenAt.Time.Day())

	a, err = MapRow[Account](New(), accountMeta(t), Row{Columns: []string{"deleted_at"}, Values: []any{nil}})
	require.NoError(t, err)
	assert.Nil(t, a.DeletedAt)
}

func TestMapUUID(t *testing.T) {
	id := uuid.New()
	for _, raw := range []any{id, [16]byte(id), id[:], id.String()} {
		a, err := MapRow[Account](New(), accountMeta(t), Row{Columns: []string{"token"}, Values: []any{raw}})
		require.NoError(t, err)
		assert.Equal(t, id, a.Token)
	}
}

func TestMapJSON(t *testing.T) {
	md := accountMeta(t)
	a, err := MapRow[Account](New(), md, Row{
		Columns: []string{"settings", "extra"},
		Values:  []any{`{"theme":"dark","size":2}`, []byte(`[1,"x"]`)},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"theme": "dark", "size": float64(2)}, a.Settings)
	assert.Equal(t, []any{float64(1), "x"}, a.Extra)

	a, err = MapRow[Account](New(), md, Row{
		Columns: []string{"settings", "extra"},
		Values:  []any{`{broken`, `not json`},
	})
	require.NoError(t, err)
	assert.Nil(t, a.Settings)
	assert.Equal(t, "not json", a.Extra)

	_, err = MapRow[Account](New(Strict()), md, Row{Columns: []string{"extra"}, Values: []any{`not json`}})
	var mErr *MappingError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "extra", mErr.Column)
	assert.Contains(t, mErr.Entity, "Account")
}

func TestMapArrays(t *testing.T) {
	a, err := MapRow[Account](New(), accountMeta(t), Row{
		Columns: []string{"tags", "scores", "levels", "aliases"},
		Values:  []any{`{a,"b c"}`, []byte(`[1,2,3]`), []any{int64(4), "5"}, []byte(`{x,y}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b c"}, a.Tags)
	assert.Equal(t, []int64{1, 2, 3}, a.Scores)
	assert.Equal(t, []int32{4, 5}, a.Levels)
	assert.Equal(t, pq.StringArray{"x", "y"}, a.Aliases)

	a, err = MapRow[Account](New(), accountMeta(t), Row{Columns: []string{"scores"}, Values: []any{[]int64{9}}})
	require.NoError(t, err)
	assert.Equal(t, []int64{9}, a.Scores)
}

func TestMapEnum(t *testing.T) {
	md := accountMeta(t)
	a, err := MapRow[Account](New(), md, Row{Columns: []string{"status", "role"}, Values: []any{"SUSPENDED", []byte("member")}})
	require.NoError(t, err)
	assert.Equal(t, Status(1), a.Status)
	assert.Equal(t, Role("member"), a.Role)

	a, err = MapRow[Account](New(), md, Row{Columns: []string{"status", "role"}, Values: []any{"2", int64(0)}})
	require.NoError(t, err)
	assert.Equal(t, Status(2), a.Status)
	assert.Equal(t, Role("admin"), a.Role)

	_, err = MapRow[Account](New(Strict()), md, Row{Columns: []string{"status"}, Values: []any{"GONE"}})
	assert.Error(t, err)
}

func TestMapScanner(t *testing.T) {
	a, err := MapRow[Account](New(), accountMeta(t), Row{Columns: []string{"nickname"}, Values: []any{"nick"}})
	require.NoError(t, err)
	assert.Equal(t, sql.NullString{String: "nick", Valid: true}, a.Nickname)
}

func TestLenientConversionFailure(t *testing.T) {
	md := accountMeta(t)
	a, err := MapRow[Account](New(WithLogger(logger.Discard)), md, Row{
		Columns: []string{"age", "user_name"},
		Values:  []any{"not a number", "carol"},
	})
	require.NoError(t, err)
	assert.Zero(t, a.Age)
	assert.Equal(t, "carol", a.Username)

	a, err = MapRow[Account](New(Strict()), md, Row{Columns: []string{"age"}, Values: []any{"not a number"}})
	assert.Error(t, err)
	assert.Zero(t, a)
}

func TestInvalidDestination(t *testing.T) {
	md := accountMeta(t)
	err := New().Map(md, Row{}, Account{})
	assert.True(t, errors.Is(err, ErrInvalidDestination))

	var other struct{ ID int }
	err = New().Map(md, Row{}, &other)
	assert.True(t, errors.Is(err, ErrInvalidDestination))
}

func TestPlanCache(t *testing.T) {
	m := New()
	md := accountMeta(t)
	_, err := MapRow[Account](m, md, Row{})
	require.NoError(t, err)
	_, err = MapRow[Account](m, md, Row{})
	require.NoError(t, err)
	assert.Equal(t, 1, m.CacheSize())

	m.ClearCache()
	assert.Equal(t, 0, m.CacheSize())
}

func TestRowGet(t *testing.T) {
	row := Row{Columns: []string{"ID", "Name"}, Values: []any{1, "x"}}
	v, ok := row.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = row.Get("missing")
	assert.False(t, ok)
}
