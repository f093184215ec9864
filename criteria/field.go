package criteria

// Field is a typed column reference. Declaring fields once per entity keeps
// criteria construction checked by the compiler:
//
//	var UserAge = criteria.Field[int]("age")
//	c := UserAge.Gte(18).And(UserName.Like("a%"))
type Field[V any] string

func (f Field[V]) Name() string { return string(f) }

func (f Field[V]) Eq(v V) Criteria      { return Eq(string(f), v) }
func (f Field[V]) Ne(v V) Criteria      { return Ne(string(f), v) }
func (f Field[V]) Gt(v V) Criteria      { return Gt(string(f), v) }
func (f Field[V]) Gte(v V) Criteria     { return Gte(string(f), v) }
func (f Field[V]) Lt(v V) Criteria      { return Lt(string(f), v) }
func (f Field[V]) Lte(v V) Criteria     { return Lte(string(f), v) }
func (f Field[V]) Like(v V) Criteria    { return Like(string(f), v) }
func (f Field[V]) NotLike(v V) Criteria { return NotLike(string(f), v) }
func (f Field[V]) IsNull() Criteria     { return IsNull(string(f)) }
func (f Field[V]) IsNotNull() Criteria  { return IsNotNull(string(f)) }

func (f Field[V]) Between(start, end V) Criteria { return Between(string(f), start, end) }

func (f Field[V]) In(values ...V) Criteria    { return In(string(f), toAny(values)...) }
func (f Field[V]) NotIn(values ...V) Criteria { return NotIn(string(f), toAny(values)...) }

func toAny[V any](values []V) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
