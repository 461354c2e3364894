package citethread

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crossRefTestClient(handler http.HandlerFunc) (*CrossRefClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewCrossRefClient("test@example.org")
	client.baseURL = server.URL
	return client, server
}

func TestReferencedWorks(t *testing.T) {
	client, server := crossRefTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Deep learning for citation networks", r.URL.Query().Get("query.bibliographic"))
		assert.Equal(t, "1", r.URL.Query().Get("rows"))
		assert.Equal(t, "test@example.org", r.URL.Query().Get("mailto"))
		w.Write([]byte(`{"message":{"items":[{"DOI":"10.1/self","reference":[{"DOI":"10.1/r1"},{"DOI":"10.1/r2"},{"key":"no-doi"}]}]}}`))
	})
	defer server.Close()

	doi, references, err := client.ReferencedWorks(context.Background(), "Deep learning for citation networks")
	require.NoError(t, err)
	assert.Equal(t, "10.1/self", doi)
	assert.Equal(t, []string{"10.1/r1", "10.1/r2"}, references)
}

func TestReferencedWorksNoMatch(t *testing.T) {
	client, server := crossRefTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"items":[]}}`))
	})
	defer server.Close()

	doi, references, err := client.ReferencedWorks(context.Background(), "unknown title")
	require.NoError(t, err)
	assert.Equal(t, NoReferences, doi)
	assert.Equal(t, []string{NoReferences}, references)
}

func TestReferencedWorksNoReferenceList(t *testing.T) {
	client, server := crossRefTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":{"items":[{"DOI":"10.1/self"}]}}`))
	})
	defer server.Close()

	doi, references, err := client.ReferencedWorks(context.Background(), "known but unreferenced")
	require.NoError(t, err)
	assert.Equal(t, "10.1/self", doi)
	assert.Equal(t, []string{NoReferences}, references)
}

func TestReferencedWorksServerError(t *testing.T) {
	client, server := crossRefTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	})
	defer server.Close()

	_, _, err := client.ReferencedWorks(context.Background(), "any title")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
