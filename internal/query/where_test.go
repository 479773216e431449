package query

import (
	"testing"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWhere_Operators(t *testing.T) {
	record := models.Record{
		"name":   "John Smith",
		"val":    float64(2),
		"price":  "15",
		"gameId": "abc-123",
		"active": true,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{`val=2`, true},
		{`val="2"`, true},
		{`val=3`, false},
		{`price=15`, true},
		{`gameId="abc-123"`, true},
		{`gameId="ABC-123"`, false},
		{`active=true`, true},
		{`active=1`, true},
		{`missing=null`, true},
		{`val<3`, true},
		{`val<2`, false},
		{`val<=2`, true},
		{`val>=2`, true},
		{`val>1`, true},
		{`val>2`, false},
		{`name>"A"`, true},
		{`name<"A"`, false},
		{`missing>1`, false},
		{`name like "smith"`, true},
		{`name LIKE "SMI"`, true},
		{`name like "doe"`, false},
		{`val in (1, 2, 3)`, true},
		{`val in (4, 5)`, false},
		{`gameId in ("abc-123", "x")`, true},
		{`val in ("2")`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := ParseWhere(tt.expr)
			require.NoError(t, err)
			got, err := pred(record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWhere_Connectives(t *testing.T) {
	record := models.Record{"a": float64(1), "b": float64(2)}

	tests := []struct {
		expr string
		want bool
	}{
		{`a=1 and b=2`, true},
		{`a=1 AND b=3`, false},
		{`a=5 or b=2`, true},
		{`a=5 OR b=5`, false},
		{`  a=1  `, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := ParseWhere(tt.expr)
			require.NoError(t, err)
			got, err := pred(record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWhere_MixedConnectivesSplitOnAndOnly(t *testing.T) {
	// The "or" stays inside the second clause, whose value is then not a
	// JSON literal.
	_, err := ParseWhere(`a=1 and b=2 or c=3`)
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, whereSyntaxMessage, qerr.Error())

	// With a string literal the "or" becomes part of the compared value.
	pred, err := ParseWhere(`a=1 and b="x or c=3"`)
	require.NoError(t, err)
	got, err := pred(models.Record{"a": float64(1), "b": "x or c=3"})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestParseWhere_LikeOnNonString(t *testing.T) {
	pred, err := ParseWhere(`val like "2"`)
	require.NoError(t, err)

	_, err = pred(models.Record{"val": float64(2)})
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
}

func TestParseWhere_FirstOperatorWins(t *testing.T) {
	// "<=" is tried before "<" and "=" at the same position.
	pred, err := ParseWhere(`val<=2`)
	require.NoError(t, err)
	got, err := pred(models.Record{"val": float64(2)})
	require.NoError(t, err)
	assert.True(t, got)

	// The field ends at the first operator token, so the value keeps the rest.
	pred, err = ParseWhere(`title="a=b"`)
	require.NoError(t, err)
	got, err = pred(models.Record{"title": "a=b"})
	require.NoError(t, err)
	assert.True(t, got)
}
