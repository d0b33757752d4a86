package usda

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetfit/trackerbot/internal/model"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/foods/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("api_key"))
		assert.Equal(t, "chicken breast", q.Get("query"))
		assert.Equal(t, "5", q.Get("pageSize"))
		assert.Equal(t, "Foundation,SR Legacy,Survey (FNDDS)", q.Get("dataType"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foods": [
			{"fdcId": 100, "description": "Chicken, broiler, breast, raw"},
			{"fdcId": 200, "description": "Chicken, canned"},
			{"fdcId": 0, "description": "junk entry"}
		]}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, zerolog.Nop())
	got, err := c.Search(context.Background(), "chicken breast")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.Candidate{ID: 100, Description: "Chicken, broiler, breast, raw"}, got[0])
}

func TestSearch_NoHitsIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foods": []}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, zerolog.Nop())
	got, err := c.Search(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSearch_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New("bad-key", srv.URL, zerolog.Nop())
	_, err := c.Search(context.Background(), "apple")
	assert.Error(t, err)
}

func TestDetails_LabelNutrients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/food/100", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"labelNutrients": {
			"calories": {"value": 165},
			"protein": {"value": 31},
			"fat": {"value": 3.6}
		}}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, zerolog.Nop())
	n, err := c.Details(context.Background(), 100)
	require.NoError(t, err)
	require.NotNil(t, n.Calories)
	assert.Equal(t, 165.0, *n.Calories)
	require.NotNil(t, n.ProteinG)
	assert.Equal(t, 31.0, *n.ProteinG)
	assert.Nil(t, n.CarbsG, "absent nutrients stay nil")
	assert.Nil(t, n.FiberG)
}

func TestDetails_FoodNutrientsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foodNutrients": [
			{"nutrient": {"id": 1008}, "amount": 379},
			{"nutrient": {"id": 1003}, "amount": 13.2},
			{"nutrient": {"id": 1079}, "amount": 10.1},
			{"nutrient": {"id": 9999}, "amount": 42}
		]}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, zerolog.Nop())
	n, err := c.Details(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, n.Calories)
	assert.Equal(t, 379.0, *n.Calories)
	require.NotNil(t, n.FiberG)
	assert.Equal(t, 10.1, *n.FiberG)
	assert.Nil(t, n.CarbsG)
}

func TestDetails_LabelWinsOverList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"labelNutrients": {"protein": {"value": 30}},
			"foodNutrients": [{"nutrient": {"id": 1003}, "amount": 25}]
		}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, zerolog.Nop())
	n, err := c.Details(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, n.ProteinG)
	assert.Equal(t, 30.0, *n.ProteinG)
}

func TestDetails_NoRelevantNutrients(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foodNutrients": [{"nutrient": {"id": 9999}, "amount": 1}]}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, zerolog.Nop())
	_, err := c.Details(context.Background(), 3)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foods": []}`))
	}))
	defer srv.Close()

	c := New("test-key", srv.URL, zerolog.Nop())
	assert.NoError(t, c.Ping(context.Background()))

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer bad.Close()
	c = New("bad", bad.URL, zerolog.Nop())
	assert.Error(t, c.Ping(context.Background()))
}
