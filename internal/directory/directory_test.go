package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpeeps/coordinator/internal/domain"
)

func TestDirectoryOrderAndLookup(t *testing.T) {
	d, err := New([]domain.Agent{
		{Name: "b", URL: "http://b/"},
		{Name: "a", URL: "http://a"},
	})
	require.NoError(t, err)

	all := d.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Name)
	assert.Equal(t, "http://b", all[0].URL)
	assert.Equal(t, 2, d.Len())

	a, ok := d.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, "http://a", a.URL)

	_, ok = d.Lookup("missing")
	assert.False(t, ok)
}

func TestDirectoryRejectsBadEntries(t *testing.T) {
	_, err := New([]domain.Agent{{Name: "a", URL: "http://a"}, {Name: "a", URL: "http://b"}})
	assert.Error(t, err)

	_, err = New([]domain.Agent{{URL: "http://a"}})
	assert.Error(t, err)

	_, err = New([]domain.Agent{{Name: "a"}})
	assert.Error(t, err)
}

func TestViewsWithHealthProbe(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	sick := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sick.Close()

	d, err := New([]domain.Agent{
		{Name: "up", URL: healthy.URL},
		{Name: "down", URL: sick.URL},
		{Name: "gone", URL: "http://127.0.0.1:1"},
	})
	require.NoError(t, err)

	views := d.Views(context.Background(), true)
	require.Len(t, views, 3)
	require.NotNil(t, views[0].Healthy)
	assert.True(t, *views[0].Healthy)
	assert.False(t, *views[1].Healthy)
	assert.False(t, *views[2].Healthy)

	plain := d.Views(context.Background(), false)
	assert.Nil(t, plain[0].Healthy)
}
