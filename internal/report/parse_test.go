package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PreservesMemberOrder(t *testing.T) {
	t.Parallel()

	v, err := Parse([]byte(`{"b": 1, "a": {"z": true, "y": null}, "c": [1.5, "s"]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	require.Len(t, obj.Members, 3)
	assert.Equal(t, "b", obj.Members[0].Key)
	assert.Equal(t, Number("1"), obj.Members[0].Value)
	assert.Equal(t, "a", obj.Members[1].Key)
	assert.Equal(t, Object{Members: []Member{{Key: "z", Value: Bool(true)}, {Key: "y", Value: Null{}}}}, obj.Members[1].Value)
	assert.Equal(t, Array{Number("1.5"), String("s")}, obj.Members[2].Value)
}

func TestParse_KeysSurviveNestedValues(t *testing.T) {
	t.Parallel()

	v, err := Parse([]byte(`{"outer": {"inner": [{"deep": "x"}], "next": 2}, "last": "y"}`))
	require.NoError(t, err)

	obj := v.(Object)
	require.Len(t, obj.Members, 2)
	assert.Equal(t, "outer", obj.Members[0].Key)
	assert.Equal(t, "last", obj.Members[1].Key)
	outer := obj.Members[0].Value.(Object)
	assert.Equal(t, []string{"inner", "next"}, []string{outer.Members[0].Key, outer.Members[1].Key})
	deep := outer.Members[0].Value.(Array)[0].(Object)
	assert.Equal(t, "deep", deep.Members[0].Key)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte(`{} {}`))
	assert.ErrorIs(t, err, ErrTrailingData)

	_, err = Parse([]byte(`{"a": `))
	assert.Error(t, err)

	_, err = Parse(nil)
	assert.Error(t, err)
}

func TestParseReader(t *testing.T) {
	t.Parallel()

	v, err := ParseReader(strings.NewReader(`["x"]`))
	require.NoError(t, err)
	assert.Equal(t, Array{String("x")}, v)
}

func TestEncode_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := `{"b":[1,"s\"q",true,null],"a":{}}`
	v, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, string(Encode(v)))
}

func TestFromAny_SortsKeys(t *testing.T) {
	t.Parallel()

	v := FromAny(map[string]any{"b": 2.0, "a": []any{"x", nil, true}})
	assert.Equal(t, Object{Members: []Member{
		{Key: "a", Value: Array{String("x"), Null{}, Bool(true)}},
		{Key: "b", Value: Number("2")},
	}}, v)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	v, err := Parse([]byte(`{"ai_analysis": {"response": "hi"}, "n": 3}`))
	require.NoError(t, err)

	s, ok := LookupString(v, "ai_analysis", "response")
	assert.True(t, ok)
	assert.Equal(t, "hi", s)

	_, ok = LookupString(v, "n")
	assert.False(t, ok)
	_, ok = Lookup(v, "missing", "deeper")
	assert.False(t, ok)
}
