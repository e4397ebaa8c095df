package httputil

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    int64
		wantErr string
	}{
		{name: "max int64", vars: map[string]string{"user_id": "9223372036854775807"}, want: 9223372036854775807},
		{name: "negative", vars: map[string]string{"user_id": "-3"}, want: -3},
		{name: "not a number", vars: map[string]string{"user_id": "abc"}, wantErr: `user_id: not an integer (got "abc")`},
		{name: "empty", vars: map[string]string{"user_id": ""}, wantErr: "user_id: missing path parameter"},
		{name: "absent", vars: map[string]string{}, wantErr: "user_id: missing path parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest("GET", "/", nil), tt.vars)

			got, err := ParsePathInt64(req, "user_id")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				var perr *ParamError
				assert.True(t, errors.As(err, &perr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/?page=3&active=true&bad=x", nil)

	page, err := ParseQueryInt(req, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	size, err := ParseQueryInt(req, "page_size", 100)
	require.NoError(t, err)
	assert.Equal(t, 100, size)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.EqualError(t, err, `bad: not an integer (got "x")`)

	active, err := ParseQueryBool(req, "active", false)
	require.NoError(t, err)
	assert.True(t, active)

	missing, err := ParseQueryBool(req, "missing", true)
	require.NoError(t, err)
	assert.True(t, missing)

	_, err = ParseQueryBool(req, "bad", false)
	assert.EqualError(t, err, `bad: not a boolean (got "x")`)
}
