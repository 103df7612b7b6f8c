package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePage(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		want    Page
		wantErr bool
	}{
		{name: "defaults", query: "", want: Page{Number: 1, Size: 100}},
		{name: "explicit", query: "page=3&pageSize=25", want: Page{Number: 3, Size: 25}},
		{name: "max size", query: "pageSize=1000", want: Page{Number: 1, Size: 1000}},
		{name: "zero page", query: "page=0", wantErr: true},
		{name: "too large", query: "pageSize=1001", wantErr: true},
		{name: "not a number", query: "page=abc", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/turbines?"+tc.query, nil)
			got, err := ParsePage(r, 100, 1000)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNewPaged(t *testing.T) {
	p := NewPaged[int](nil, Page{Number: 2, Size: 10}, 21)
	require.Equal(t, []int{}, p.Items)
	require.EqualValues(t, 3, p.TotalPages)
	require.Equal(t, 10, Page{Number: 2, Size: 10}.Offset())
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NoError(t, WriteError(rr, http.StatusBadRequest, "INVALID_FILE", "No file uploaded", map[string]string{"request_id": "r1"}))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var env ErrorEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	require.Equal(t, ErrorEnvelope{Code: "INVALID_FILE", Message: "No file uploaded", Meta: map[string]string{"request_id": "r1"}}, env)
}
