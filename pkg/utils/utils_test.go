package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kerbaras/comicdl/pkg/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchRetriesUntilSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "comicdl-test", r.Header.Get("User-Agent"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher(5, time.Second)
	f.Backoff = 0
	f.UserAgent = "comicdl-test"

	body, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchExhaustion(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := NewFetcher(4, time.Second)
	f.Backoff = 0

	_, err := f.Fetch(context.Background(), server.URL)
	var fe *data.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 4, fe.Attempts)
	assert.Equal(t, server.URL, fe.URL)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestFetchPerAttemptTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	f := NewFetcher(2, 50*time.Millisecond)
	f.Backoff = 0

	start := time.Now()
	_, err := f.Fetch(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAPIGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/manga/1/aggregate", r.URL.Path)
		assert.Equal(t, "en", r.URL.Query().Get("translatedLanguage[]"))
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer server.Close()

	api := NewAPI(server.URL, NewFetcher(1, time.Second))
	var out struct {
		Result string `json:"result"`
	}
	err := api.Get(context.Background(), "/manga/1/aggregate", map[string][]string{"translatedLanguage[]": {"en"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Result)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		ascii bool
		want  string
	}{
		{"plain", "One Piece", false, "One Piece"},
		{"separators", `a/b\c:d`, false, "a_b_c_d"},
		{"trailing dots", "name...", false, "name"},
		{"empty", "   ", false, "_"},
		{"fullwidth latin", "ＡＢＣ", false, "ABC"},
		{"keeps cjk", "第1话", false, "第1话"},
		{"accents to ascii", "Café", true, "Cafe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in, tt.ascii))
		})
	}
}

func TestItemPathIsDeterministic(t *testing.T) {
	dir := TaskDir("/dl", "", "Comic", false)
	assert.Equal(t, filepath.Join("/dl", "Comic"), dir)

	a := ItemPath(dir, "chapters", 0, "第1话", 0, "", false)
	b := ItemPath(dir, "chapters", 0, "第1话", 0, "", false)
	assert.Equal(t, a, b)
	assert.Equal(t, filepath.Join("/dl", "Comic", "chapters", "001_第1话", "0001.jpg"), a)

	withAuthor := ItemPath(TaskDir("/dl", "someone", "Comic", false), "chapters", 4, "g", 11, ".jpg", false)
	assert.Equal(t, filepath.Join("/dl", "someone", "Comic", "chapters", "005_g", "0012.jpg"), withAuthor)
}

func TestItemPathSeparatesSameNamedGroups(t *testing.T) {
	first := ItemPath("/dl/Comic", "extras", 0, "番外", 0, ".jpg", false)
	second := ItemPath("/dl/Comic", "extras", 1, "番外", 0, ".jpg", false)
	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Join("/dl", "Comic", "extras", "002_番外", "0001.jpg"), second)
}
