package mockbase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func parseArgs(t *testing.T, raw string) *recordQuery {
	t.Helper()
	var args fasthttp.Args
	args.Parse(raw)
	q, err := parseRecordQuery(&args)
	require.NoError(t, err)
	return q
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"plain", "(a,b,7)", []string{"a", "b", "7"}, false},
		{"quoted space", `(a,"b c")`, []string{"a", "b c"}, false},
		{"quoted comma", `("x,y",z)`, []string{"x,y", "z"}, false},
		{"escaped quote", `("say \"hi\"")`, []string{`say "hi"`}, false},
		{"escaped backslash", `("a\\b")`, []string{`a\b`}, false},
		{"quoted empty", `("")`, []string{""}, false},
		{"no parens", "a,b", nil, true},
		{"empty", "()", nil, true},
		{"unterminated", `("abc)`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseList(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRecordQuery(t *testing.T) {
	q := parseArgs(t, `select=id,title&done=eq.false&tag=in.(a,%22b+c%22)&order=id.asc,title.desc&order=score.desc&offset=5&limit=10`)

	assert.Equal(t, []string{"id", "title"}, q.columns)
	require.Len(t, q.filters, 2)
	assert.Equal(t, filter{column: "done", op: "eq", value: "false"}, q.filters[0])
	assert.Equal(t, []string{"a", "b c"}, q.filters[1].values)
	assert.Equal(t, []orderKey{
		{column: "id", ascending: true},
		{column: "title", ascending: false},
		{column: "score", ascending: false},
	}, q.orders)
	assert.Equal(t, 5, q.offset)
	assert.Equal(t, 10, q.limit)

	t.Run("defaults", func(t *testing.T) {
		q := parseArgs(t, "select=*")
		assert.Nil(t, q.columns)
		assert.Equal(t, -1, q.limit)
		assert.Zero(t, q.offset)
	})

	t.Run("errors", func(t *testing.T) {
		for _, raw := range []string{
			"done=false",
			"done=between.1",
			"deleted=is.maybe",
			"tag=in.a,b",
			"limit=-1",
			"offset=x",
			"order=id.sideways",
			"order=.asc",
		} {
			var args fasthttp.Args
			args.Parse(raw)
			_, err := parseRecordQuery(&args)
			assert.Error(t, err, raw)
		}
	})
}

func TestFilterMatch(t *testing.T) {
	row := record{
		"title":      "Write Docs",
		"score":      json.Number("42"),
		"ratio":      0.5,
		"done":       false,
		"deleted_at": nil,
		"created_at": "2024-03-01T10:00:00.5Z",
	}

	tests := []struct {
		raw  string
		want bool
	}{
		{"title=eq.Write Docs", true},
		{"title=neq.Write Docs", false},
		{"score=eq.42", true},
		{"score=eq.42.0", true},
		{"score=gt.9", true},
		{"score=lt.100", true},
		{"score=gte.42", true},
		{"score=lte.41", false},
		{"ratio=lt.1", true},
		{"done=eq.false", true},
		{"done=is.false", true},
		{"done=is.true", false},
		{"deleted_at=is.null", true},
		{"missing=is.null", true},
		{"title=is.null", false},
		{"deleted_at=eq.null", false},
		{"title=like.Write*", true},
		{"title=like.write%", false},
		{"title=ilike.write%", true},
		{"title=like.Writ_ Docs", true},
		{"score=like.4*", false},
		{"score=in.(1,42)", true},
		{"title=in.(a,\"Write Docs\")", true},
		{"created_at=gt.2024-03-01", true},
		{"created_at=lt.2024-03-01T10:00:01Z", true},
		{"created_at=gte.2024-03-02", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			q := parseArgs(t, tt.raw)
			require.Len(t, q.filters, 1)
			assert.Equal(t, tt.want, q.filters[0].match(row))
		})
	}
}

func TestRecordQueryApply(t *testing.T) {
	rows := []record{
		{"id": "1", "team": "b", "score": json.Number("3")},
		{"id": "2", "team": "a", "score": json.Number("10")},
		{"id": "3", "team": "b", "score": nil},
		{"id": "4", "team": "a", "score": json.Number("2")},
	}
	ids := func(rows []record) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r["id"].(string)
		}
		return out
	}

	t.Run("composite order", func(t *testing.T) {
		got := parseArgs(t, "order=team.asc,score.desc").apply(rows)
		assert.Equal(t, []string{"2", "4", "3", "1"}, ids(got))
	})

	t.Run("nulls last ascending", func(t *testing.T) {
		got := parseArgs(t, "order=score.asc").apply(rows)
		assert.Equal(t, []string{"4", "1", "2", "3"}, ids(got))
	})

	t.Run("numeric not lexical", func(t *testing.T) {
		got := parseArgs(t, "score=gt.2&order=score.asc").apply(rows)
		assert.Equal(t, []string{"1", "2"}, ids(got))
	})

	t.Run("offset and limit", func(t *testing.T) {
		got := parseArgs(t, "order=id.asc&offset=1&limit=2").apply(rows)
		assert.Equal(t, []string{"2", "3"}, ids(got))

		got = parseArgs(t, "offset=10").apply(rows)
		assert.Empty(t, got)
	})

	t.Run("projection", func(t *testing.T) {
		got := parseArgs(t, "select=id&team=eq.a").apply(rows)
		assert.Equal(t, []record{{"id": "2"}, {"id": "4"}}, got)
	})

	t.Run("input untouched", func(t *testing.T) {
		got := parseArgs(t, "").apply(rows)
		got[0]["id"] = "changed"
		assert.Equal(t, "1", rows[0]["id"])
	})
}
