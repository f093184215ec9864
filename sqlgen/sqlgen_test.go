package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm/routeorm/criteria"
	"gorm/routeorm/meta"
)

type User struct {
	ID       int64
	UserName string
	Age      int
	DeptID   int64 `orm:"column:dept"`
}

type Log struct {
	Message string
}

func userMeta(t *testing.T) *meta.EntityMetadata {
	m, err := meta.Of[User](meta.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestSelectAll(t *testing.T) {
	st, err := Select(userMeta(t), SelectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM user", st.SQL)
	assert.Empty(t, st.Params)
}

func TestSelectFull(t *testing.T) {
	st, err := Select(userMeta(t), SelectOptions{
		Table:   "user_03",
		Fields:  []string{"ID", "UserName", "age"},
		Where:   criteria.Gte("age", 18).And(criteria.In("dept", 1, 2)),
		OrderBy: []Order{{Field: "Age", Direction: DESC}, {Field: "ID"}},
		Limit:   10,
		Offset:  20,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, user_name, age FROM user_03 WHERE (age >= :age AND dept IN (:dept_0, :dept_1)) ORDER BY age DESC, id ASC LIMIT 10 OFFSET 20", st.SQL)
	assert.Equal(t, map[string]any{"age": 18, "dept_0": 1, "dept_1": 2}, st.Params)
}

func TestSelectGroupHaving(t *testing.T) {
	st, err := Select(userMeta(t), SelectOptions{
		Fields:  []string{"DeptID"},
		GroupBy: []string{"DeptID"},
		Having:  criteria.Gt("COUNT(id)", 3),
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT dept FROM user GROUP BY dept HAVING COUNT(id) > :COUNT_id_", st.SQL)
	assert.Equal(t, map[string]any{"COUNT_id_": 3}, st.Params)
}

func TestSelectSameFieldInWhereAndHaving(t *testing.T) {
	st, err := Select(userMeta(t), SelectOptions{
		Fields:  []string{"age"},
		Where:   criteria.Gt("age", 18),
		GroupBy: []string{"age"},
		Having:  criteria.Lt("age", 60),
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT age FROM user WHERE age > :age GROUP BY age HAVING age < :age_2", st.SQL)
	assert.Equal(t, map[string]any{"age": 18, "age_2": 60}, st.Params)
}

func TestCountSelect(t *testing.T) {
	st, err := CountSelect(userMeta(t), SelectOptions{Where: criteria.Eq("age", 3), Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM user WHERE age = :age", st.SQL)

	st, err = CountSelect(userMeta(t), SelectOptions{
		Table:   "user_1",
		Where:   criteria.Gt("age", 18),
		GroupBy: []string{"age"},
		Having:  criteria.Lt("age", 60),
		OrderBy: []Order{{Field: "age"}},
		Limit:   10,
		Offset:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT age FROM user_1 WHERE age > :age GROUP BY age HAVING age < :age_2) grouped", st.SQL)
	assert.Equal(t, map[string]any{"age": 18, "age_2": 60}, st.Params)
}

func TestSelectRejectsUnsafe(t *testing.T) {
	_, err := Select(userMeta(t), SelectOptions{Fields: []string{"id; drop table x"}})
	assert.ErrorIs(t, err, ErrUnsafeIdentifier)
	_, err = Select(userMeta(t), SelectOptions{Table: "user u"})
	assert.ErrorIs(t, err, ErrUnsafeIdentifier)
	_, err = Select(userMeta(t), SelectOptions{OrderBy: []Order{{Field: "1=1"}}})
	assert.ErrorIs(t, err, ErrUnsafeIdentifier)
}

func TestCount(t *testing.T) {
	st, err := Count(userMeta(t), "", criteria.Eq("user_name", "bob"))
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM user WHERE user_name = :user_name", st.SQL)
	assert.Equal(t, map[string]any{"user_name": "bob"}, st.Params)

	st, err = Count(userMeta(t), "user_1", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM user_1", st.SQL)
}

func TestInsertUpdate(t *testing.T) {
	m := userMeta(t)
	u := &User{ID: 5, UserName: "bob", Age: 30, DeptID: 2}

	st, err := Insert(m, "", u)
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO user (user_name, age, dept) VALUES (:user_name, :age, :dept)", st.SQL)
	assert.Equal(t, map[string]any{"user_name": "bob", "age": 30, "dept": int64(2)}, st.Params)

	st, err = Update(m, "user_9", u)
	require.NoError(t, err)
	assert.Equal(t, "UPDATE user_9 SET user_name = :user_name, age = :age, dept = :dept WHERE id = :id", st.SQL)
	assert.Equal(t, int64(5), st.Params["id"])
}

func TestInsertBatch(t *testing.T) {
	st, err := InsertBatch(userMeta(t), "", []any{&User{UserName: "a"}, User{UserName: "b", Age: 1}})
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO user (user_name, age, dept) VALUES (:user_name_0, :age_0, :dept_0), (:user_name_1, :age_1, :dept_1)", st.SQL)
	assert.Equal(t, "b", st.Params["user_name_1"])
	assert.Len(t, st.Params, 6)

	_, err = InsertBatch(userMeta(t), "", nil)
	assert.ErrorIs(t, err, ErrNoColumns)
}

func TestDelete(t *testing.T) {
	m := userMeta(t)
	st, err := DeleteByID(m, "", 9)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM user WHERE id = :id", st.SQL)
	assert.Equal(t, map[string]any{"id": 9}, st.Params)

	st, err = SelectByID(m, "user_2", 9)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM user_2 WHERE id = :id", st.SQL)

	_, err = Delete(m, "", nil)
	assert.ErrorIs(t, err, ErrUnsafeDelete)
}

func TestNoPrimaryKeyFailsFast(t *testing.T) {
	m, err := meta.Of[Log](meta.NewRegistry())
	require.NoError(t, err)

	_, err = Insert(m, "", &Log{Message: "x"})
	assert.ErrorIs(t, err, meta.ErrNoPrimaryKey)
	_, err = Update(m, "", &Log{Message: "x"})
	assert.ErrorIs(t, err, meta.ErrNoPrimaryKey)
	_, err = DeleteByID(m, "", 1)
	assert.ErrorIs(t, err, meta.ErrNoPrimaryKey)
	_, err = SelectByID(m, "", 1)
	assert.ErrorIs(t, err, meta.ErrNoPrimaryKey)

	st, err := Select(m, SelectOptions{Where: criteria.Like("message", "%x%")})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM log WHERE message LIKE :message", st.SQL)
}

func TestIsSafeIdentifier(t *testing.T) {
	for _, ok := range []string{"a", "_a1", "s.t", "T_1.c"} {
		assert.True(t, IsSafeIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "1a", "a.", "a b", "a;b", "a-b"} {
		assert.False(t, IsSafeIdentifier(bad), bad)
	}
}
