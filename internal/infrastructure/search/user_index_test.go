package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
)

type capturedRequest struct {
	method, path string
	body         string
}

// fakeES answers like an Elasticsearch 8 node; the client refuses to talk to
// anything that does not send the product header.
func fakeES(t *testing.T, status int, reply string) (*UserIndex, chan capturedRequest) {
	t.Helper()
	reqs := make(chan capturedRequest, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		reqs <- capturedRequest{method: r.Method, path: r.URL.Path, body: string(b)}
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	es, err := NewClient([]string{srv.URL}, "", "")
	require.NoError(t, err)
	return NewUserIndex(es, "users-test"), reqs
}

func testUser(t *testing.T) *entity.User {
	t.Helper()
	u, err := entity.NewUser(entity.UserParams{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQ",
		FirstName:    "Alice",
		LastName:     "Wong",
	})
	require.NoError(t, err)
	return u
}

func TestIndex(t *testing.T) {
	x, reqs := fakeES(t, http.StatusCreated, `{"result":"created"}`)

	require.NoError(t, x.Index(context.Background(), testUser(t)))

	req := <-reqs
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/users-test/_doc/user-1", req.path)
	assert.NotContains(t, req.body, "$2a$")
	assert.NotContains(t, strings.ToLower(req.body), "password")

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(req.body), &doc))
	assert.Equal(t, "alice@example.com", doc.Email)
	assert.Equal(t, "Alice Wong", doc.FullName)
	assert.Equal(t, []string{"user"}, doc.Roles)
}

func TestIndex_ErrorStatus(t *testing.T) {
	x, _ := fakeES(t, http.StatusBadRequest, `{"error":"mapper_parsing_exception"}`)
	assert.Error(t, x.Index(context.Background(), testUser(t)))
}

func TestSearch(t *testing.T) {
	reply := `{"hits":{"hits":[
		{"_id":"user-1","_source":{"id":"user-1","email":"alice@example.com","fullName":"Alice Wong","roles":["user"],"isActive":true}},
		{"_id":"user-2","_source":{"id":"user-2","email":"alicia@example.com","fullName":"Alicia Keys","roles":["admin"],"isActive":false}}
	]}}`
	x, reqs := fakeES(t, http.StatusOK, reply)

	docs, err := x.Search(context.Background(), "ali", 500)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "user-1", docs[0].ID)
	assert.Equal(t, []string{"admin"}, docs[1].Roles)
	assert.False(t, docs[1].IsActive)

	req := <-reqs
	assert.Equal(t, "/users-test/_search", req.path)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.body), &body))
	assert.EqualValues(t, 10, body["size"])
	mm := body["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "ali", mm["query"])
}

func TestSearch_ErrorStatus(t *testing.T) {
	x, _ := fakeES(t, http.StatusInternalServerError, `{}`)
	_, err := x.Search(context.Background(), "ali", 5)
	assert.Error(t, err)
}
