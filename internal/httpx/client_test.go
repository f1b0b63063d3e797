package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gatesync/internal/fault"
)

type recordingObserver struct {
	statuses []int
}

func (o *recordingObserver) ObserveHTTP(_ string, status int) {
	o.statuses = append(o.statuses, status)
}

func TestDo_ReadsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	obs := &recordingObserver{}
	c := New("upstream", DefaultConfig(), WithHTTPClient(srv.Client()), WithObserver(obs))
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/x", nil)
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, []int{201}, obs.statuses)
	assert.Equal(t, "upstream", c.Target())
}

func TestDo_ConnectionFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	obs := &recordingObserver{}
	c := New("hikcentral", DefaultConfig(), WithObserver(obs))
	req, err := http.NewRequest(http.MethodPost, url+"/api", strings.NewReader("{}"))
	require.NoError(t, err)

	_, err = c.Do(context.Background(), req)
	require.Error(t, err)
	assert.True(t, fault.IsTransient(err))
	assert.Equal(t, []int{0}, obs.statuses)
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		status int
		want   fault.Class
	}{
		{200, fault.ClassNone},
		{204, fault.ClassNone},
		{400, fault.ClassRejected},
		{401, fault.ClassRejected},
		{404, fault.ClassRejected},
		{408, fault.ClassTransient},
		{429, fault.ClassTransient},
		{500, fault.ClassTransient},
		{503, fault.ClassTransient},
		{507, fault.ClassTransient},
	}
	for _, tt := range tests {
		err := CheckStatus("op", &Response{StatusCode: tt.status, Body: []byte("body")})
		if tt.want == fault.ClassNone {
			assert.NoError(t, err, "status %d", tt.status)
			continue
		}
		require.Error(t, err, "status %d", tt.status)
		assert.Equal(t, tt.want, fault.ClassOf(err), "status %d", tt.status)
	}
}

func TestSnippet_Truncates(t *testing.T) {
	long := strings.Repeat("a", 500)
	s := snippet([]byte(long))
	assert.Len(t, s, 203)
	assert.True(t, strings.HasSuffix(s, "..."))
}
