package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/bluesky-social/lidmap/mapping"
	"github.com/bluesky-social/lidmap/mapping/httplookup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*Server, *mapping.Resolver) {
	r := mapping.NewResolver(mapping.NewMemStore(), nil, mapping.Config{})
	t.Cleanup(func() { r.Close() })
	return NewServer(r, Config{}), r
}

func doRequest(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, "GET", "/_health", "")
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"status":"ok"`)

	rec = doRequest(srv, "GET", "/nope", "")
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestStoreAndResolveEndpoints(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, "POST", "/v1/mappings", `{"mappings":[{"pn":"1@s.whatsapp.net","lid":"2@lid"},{"pn":"x@lid","lid":"y@lid"}],"batchId":"b-1"}`)
	require.Equal(http.StatusOK, rec.Code)
	var res mapping.StoreResult
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(mapping.StoreResult{Stored: 1, BatchID: "b-1"}, res)

	rec = doRequest(srv, "GET", "/v1/lid?pn="+url.QueryEscape("1:4@s.whatsapp.net"), "")
	assert.Equal(http.StatusOK, rec.Code)
	var jb jidBody
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &jb))
	assert.Equal("2:4@lid", jb.JID)

	rec = doRequest(srv, "GET", "/v1/lid?ignore_device=true&pn="+url.QueryEscape("1:4@s.whatsapp.net"), "")
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &jb))
	assert.Equal("2:0@lid", jb.JID)

	rec = doRequest(srv, "GET", "/v1/pn?lid="+url.QueryEscape("2@lid"), "")
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &jb))
	assert.Equal("1:0@s.whatsapp.net", jb.JID)

	rec = doRequest(srv, "GET", "/v1/pn?lid="+url.QueryEscape("9@lid"), "")
	assert.Equal(http.StatusNotFound, rec.Code)
	assert.Contains(rec.Body.String(), "MappingNotFound")

	rec = doRequest(srv, "GET", "/v1/pn?lid="+url.QueryEscape("9@s.whatsapp.net"), "")
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Contains(rec.Body.String(), "InvalidIdentifier")
}

func TestBulkResolveEndpoint(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv, r := testServer(t)

	_, err := r.StoreMappings(context.Background(), []mapping.Pair{{PN: "1@s.whatsapp.net", LID: "2@lid"}}, mapping.StoreOptions{})
	require.NoError(err)

	rec := doRequest(srv, "POST", "/v1/resolve", `{"pns":["1@s.whatsapp.net","3@s.whatsapp.net"],"lids":["2:7@lid"]}`)
	require.Equal(http.StatusOK, rec.Code)
	var out resolveResponse
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(map[string]string{"1@s.whatsapp.net": "2:0@lid", "3@s.whatsapp.net": ""}, out.LIDs)
	assert.Equal(map[string]string{"2:7@lid": "1:7@s.whatsapp.net"}, out.PNs)

	rec = doRequest(srv, "POST", "/v1/resolve", `{"pns":`)
	assert.Equal(http.StatusBadRequest, rec.Code)
}

func TestLookupEndpoint(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv, r := testServer(t)
	r.Preload([]mapping.Pair{{PN: "1@s.whatsapp.net", LID: "2@lid"}})

	rec := doRequest(srv, "GET", "/v1/lookup?jid="+url.QueryEscape("1@s.whatsapp.net"), "")
	require.Equal(http.StatusOK, rec.Code)
	var body httplookup.LookupResponse
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal([]mapping.LookupResult{{Exists: true, LID: "2:0@lid"}}, body.Results)

	rec = doRequest(srv, "GET", "/v1/lookup?jid="+url.QueryEscape("5@s.whatsapp.net"), "")
	require.Equal(http.StatusOK, rec.Code)
	var missing httplookup.LookupResponse
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &missing))
	assert.Equal([]mapping.LookupResult{{Exists: false}}, missing.Results)
}

// one daemon acting as the external lookup service for another resolver
func TestChainedLookup(t *testing.T) {
	assert := assert.New(t)
	srv, upstream := testServer(t)
	upstream.Preload([]mapping.Pair{{PN: "1@s.whatsapp.net", LID: "2@lid"}})
	hs := httptest.NewServer(srv)
	defer hs.Close()

	client := httplookup.NewClient(hs.URL)
	r := mapping.NewResolver(mapping.NewMemStore(), client.Lookup, mapping.Config{})
	defer r.Close()

	lid, err := r.LIDForPN(context.Background(), "1:3@s.whatsapp.net", mapping.ResolveOptions{})
	assert.NoError(err)
	assert.Equal("2:3@lid", lid)

	_, err = r.LIDForPN(context.Background(), "8@s.whatsapp.net", mapping.ResolveOptions{})
	assert.ErrorIs(err, mapping.ErrNotFound)
}

func TestCacheEndpoints(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, "POST", "/v1/cache/preload", `{"mappings":[{"pn":"1@s.whatsapp.net","lid":"2@lid"},{"pn":"3@s.whatsapp.net","lid":"4@lid"}]}`)
	require.Equal(http.StatusOK, rec.Code)
	var cb countBody
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &cb))
	assert.Equal(2, cb.Count)

	rec = doRequest(srv, "GET", "/v1/cache/stats", "")
	var stats mapping.CacheStats
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(4, stats.Size)

	rec = doRequest(srv, "POST", "/v1/cache/clear?pattern=pn:", "")
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &cb))
	assert.Equal(2, cb.Count)

	rec = doRequest(srv, "POST", "/v1/cache/clear", "")
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &cb))
	assert.Equal(2, cb.Count)
}
