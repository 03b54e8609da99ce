package bangumi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/subject/葬送のフリーレン", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`{"results":1,"list":[{"id":400602,"type":2,"name":"葬送のフリーレン","name_cn":"葬送的芙莉莲","images":{"large":"//lain.bgm.tv/l/x.jpg"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(nil, WithEndpoint(srv.URL))
	res, err := c.SearchSubject(context.Background(), "葬送のフリーレン")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 400602, res.ID)
	assert.Equal(t, "葬送的芙莉莲", res.NameCN)
	assert.Equal(t, "https://lain.bgm.tv/l/x.jpg", res.Images.Cover())
}

func TestSearchSubject_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res, err := NewClient(nil, WithEndpoint(srv.URL)).SearchSubject(context.Background(), "nothing")
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestGetSubject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/subjects/400602", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":400602,"type":2,"name":"葬送のフリーレン","name_cn":"葬送的芙莉莲","images":{"common":"//lain.bgm.tv/c/x.jpg"}}`))
	}))
	defer srv.Close()

	s, err := NewClient(nil, WithEndpoint(srv.URL)).GetSubject(context.Background(), 400602)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "葬送のフリーレン", s.Name)
	assert.Equal(t, "https://lain.bgm.tv/c/x.jpg", s.Images.Cover())
}

func TestGetSubject_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(nil, WithEndpoint(srv.URL)).GetSubject(context.Background(), 1)
	require.Error(t, err)
	var berr *Error
	require.True(t, errors.As(err, &berr))
	assert.Equal(t, "subject 1", berr.Query)
}
