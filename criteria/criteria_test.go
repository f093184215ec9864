package criteria

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimpleOperators(t *testing.T) {
	cases := []struct {
		c   Criteria
		sql string
	}{
		{Eq("age", 30), "age = :age"},
		{Ne("age", 30), "age != :age"},
		{Gt("age", 30), "age > :age"},
		{Gte("age", 30), "age >= :age"},
		{Lt("age", 30), "age < :age"},
		{Lte("age", 30), "age <= :age"},
		{Like("name", "a%"), "name LIKE :name"},
		{NotLike("name", "a%"), "name NOT LIKE :name"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.sql, tc.c.SQL())
		assert.Len(t, tc.c.Params(), 1)
	}
	assert.Equal(t, map[string]any{"age": 30}, Eq("age", 30).Params())
}

func TestDottedField(t *testing.T) {
	c := Eq("u.age", 1)
	assert.Equal(t, "u.age = :u_age", c.SQL())
	assert.Equal(t, map[string]any{"u_age": 1}, c.Params())
}

func TestIn(t *testing.T) {
	c := In("username", "user1", "user2")
	assert.Equal(t, "username IN (:username_0, :username_1)", c.SQL())
	assert.Equal(t, map[string]any{"username_0": "user1", "username_1": "user2"}, c.Params())

	c = NotInSlice("id", []int64{3, 1, 2})
	assert.Equal(t, "id NOT IN (:id_0, :id_1, :id_2)", c.SQL())
	assert.Equal(t, map[string]any{"id_0": int64(3), "id_1": int64(1), "id_2": int64(2)}, c.Params())
}

func TestEmptyIn(t *testing.T) {
	assert.Equal(t, "1 = 0", In("id").SQL())
	assert.Empty(t, In("id").Params())
	assert.Equal(t, "1 = 1", NotIn("id").SQL())
	assert.Equal(t, "(status = :status AND 1 = 0)", Eq("status", 1).And(InSlice("id", []int{})).SQL())
}

func TestBetweenAndNull(t *testing.T) {
	c := Between("age", 20, 30)
	assert.Equal(t, "age BETWEEN :age_start AND :age_end", c.SQL())
	assert.Equal(t, map[string]any{"age_start": 20, "age_end": 30}, c.Params())

	assert.Equal(t, "deleted_at IS NULL", IsNull("deleted_at").SQL())
	assert.Equal(t, "deleted_at IS NOT NULL", IsNotNull("deleted_at").SQL())
	assert.Empty(t, IsNull("deleted_at").Params())
}

func TestCompositeParenthesized(t *testing.T) {
	a, b, c := Eq("a", 1), Eq("b", 2), Eq("c", 3)
	got := a.And(b).Or(c)
	assert.Equal(t, "((a = :a AND b = :b) OR c = :c)", got.SQL())
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "c": 3}, got.Params())

	got = a.And(b.Or(c))
	assert.Equal(t, "(a = :a AND (b = :b OR c = :c))", got.SQL())
}

func TestSameFieldTwice(t *testing.T) {
	c := Gt("age", 10).And(Lt("age", 20)).Or(Eq("age", 99))
	assert.Equal(t, "((age > :age AND age < :age_2) OR age = :age_3)", c.SQL())
	assert.Equal(t, map[string]any{"age": 10, "age_2": 20, "age_3": 99}, c.Params())

	c = In("id", 1, 2).Or(In("id", 3))
	assert.Equal(t, "(id IN (:id_0, :id_1) OR id IN (:id_2_0))", c.SQL())
	assert.Equal(t, map[string]any{"id_0": 1, "id_1": 2, "id_2_0": 3}, c.Params())
}

func TestPlaceholdersMatchParams(t *testing.T) {
	trees := []Criteria{
		Eq("a", 1),
		In("a", 1, 2, 3).And(Between("a", 1, 2)).Or(Eq("a", 4).And(IsNull("b"))),
		Not(Eq("x.y", 1).Or(NotIn("x.y", "p"))).And(Like("x_y", "%")),
		AllOf(Eq("s", 1), nil, Gte("s", 2), AnyOf(Lt("s", 3), Between("s", 4, 5))),
	}
	for _, c := range trees {
		names := Placeholders(c.SQL())
		sort.Strings(names)
		keys := make([]string, 0)
		for k := range c.Params() {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		assert.Equal(t, keys, names, c.SQL())
		// rendering is pure
		assert.Equal(t, c.SQL(), c.SQL())
	}
}

func TestNotAndFolds(t *testing.T) {
	assert.Equal(t, "NOT (a = :a)", Not(Eq("a", 1)).SQL())
	assert.Nil(t, Not(nil))
	assert.Nil(t, AllOf())
	assert.Equal(t, "a = :a", AllOf(nil, Eq("a", 1)).SQL())
	assert.Equal(t, "(a = :a OR b = :b)", AnyOf(Eq("a", 1), Eq("b", 2)).SQL())
	assert.Equal(t, "a = :a", Eq("a", 1).And(nil).SQL())
}

func TestTypedField(t *testing.T) {
	age := Field[int]("age")
	name := Field[string]("user.name")
	c := age.Between(1, 9).And(name.In("a", "b"))
	assert.Equal(t, "(age BETWEEN :age_start AND :age_end AND user.name IN (:user_name_0, :user_name_1))", c.SQL())
	assert.Equal(t, "age", age.Name())
}

func TestPlaceholdersSkipsCasts(t *testing.T) {
	assert.Equal(t, []string{"a", "b_1"}, Placeholders("x = :a::int AND y IN (:b_1)"))
}

func TestRenderAllSharesNames(t *testing.T) {
	sqls, params := RenderAll(Gt("age", 1), nil, Lt("age", 9))
	assert.Equal(t, []string{"age > :age", "", "age < :age_2"}, sqls)
	assert.Equal(t, map[string]any{"age": 1, "age_2": 9}, params)
}
