package factory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"marketplace-auth/internal/config"
)

func elasticsearchStub(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"version":{"number":"8.19.0"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newMemoryFactory(t *testing.T, esURL string) *Factory {
	t.Helper()
	t.Setenv("APP_ENV", config.EnvDevelopment)
	t.Setenv("STORE_DRIVER", config.StoreMemory)
	t.Setenv("ELASTICSEARCH_ENABLED", "true")
	t.Setenv("ELASTICSEARCH_URL", esURL)

	f, err := New(config.LoadConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close(context.Background()) })
	return f
}

func TestUnreachableElasticsearchIsNotRegistered(t *testing.T) {
	f := newMemoryFactory(t, elasticsearchStub(t, http.StatusInternalServerError).URL)

	assert.Nil(t, f.esClient)
	assert.NotContains(t, f.HealthCheck(context.Background()), "elasticsearch")
	assert.NotContains(t, f.Publisher().Sinks(), "elasticsearch")
}

func TestHealthyElasticsearchBecomesSink(t *testing.T) {
	f := newMemoryFactory(t, elasticsearchStub(t, http.StatusOK).URL)

	require.NotNil(t, f.esClient)
	checks := f.HealthCheck(context.Background())
	require.Contains(t, checks, "elasticsearch")
	assert.NoError(t, checks["elasticsearch"])
	assert.Contains(t, f.Publisher().Sinks(), "elasticsearch")
}
