package saures

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListFlats(t *testing.T) {
	t.Run("List Shape", func(t *testing.T) {
		api := newFakeAPI(t)
		api.objectsBody = `{"data":{"list":[{"id":"7","label":"A","house":"1","number":"2"}]}}`
		ts := httptest.NewServer(api)
		defer ts.Close()

		c, _ := newTestClient(t, ts.URL, Options{})
		flats := c.ListFlats(context.Background())
		assert.Equal(t, map[string]string{"7": "A:1:2"}, flats)
		assert.Equal(t, flats, c.Flats())
	})

	t.Run("Objects Shape", func(t *testing.T) {
		api := newFakeAPI(t)
		api.objectsBody = `{"status":"ok","data":{"objects":[
			{"id":12,"label":"Home","house":"5a","number":17},
			{"id":0,"label":"Ghost"},
			{"label":"NoID"},
			{"id":"13","label":"Dacha"}
		]}}`
		ts := httptest.NewServer(api)
		defer ts.Close()

		c, _ := newTestClient(t, ts.URL, Options{})
		assert.Equal(t, map[string]string{
			"12": "Home:5a:17",
			"13": "Dacha::",
		}, c.ListFlats(context.Background()))
	})

	t.Run("String Zero Is A Real ID", func(t *testing.T) {
		api := newFakeAPI(t)
		api.objectsBody = `{"data":{"objects":[
			{"id":"0","label":"Zero"},
			{"id":0.0,"label":"Ghost"},
			{"id":"","label":"Blank"}
		]}}`
		ts := httptest.NewServer(api)
		defer ts.Close()

		c, _ := newTestClient(t, ts.URL, Options{})
		assert.Equal(t, map[string]string{"0": "Zero::"}, c.ListFlats(context.Background()))
	})

	t.Run("Empty Objects Falls Back To List", func(t *testing.T) {
		api := newFakeAPI(t)
		api.objectsBody = `{"data":{"objects":[],"list":[{"id":"3","label":"L","house":"H","number":"N"}]}}`
		ts := httptest.NewServer(api)
		defer ts.Close()

		c, _ := newTestClient(t, ts.URL, Options{})
		assert.Equal(t, map[string]string{"3": "L:H:N"}, c.ListFlats(context.Background()))
	})

	t.Run("HTTP Error", func(t *testing.T) {
		api := newFakeAPI(t)
		api.objectsStatus = http.StatusInternalServerError
		api.objectsBody = `oops`
		ts := httptest.NewServer(api)
		defer ts.Close()

		c, _ := newTestClient(t, ts.URL, Options{})
		flats := c.ListFlats(context.Background())
		assert.NotNil(t, flats)
		assert.Empty(t, flats)

		_, err := c.listFlats(context.Background())
		var statusErr *StatusError
		assert.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
		assert.ErrorIs(t, err, ErrHTTPStatus)
	})

	t.Run("Unexpected Data", func(t *testing.T) {
		api := newFakeAPI(t)
		api.objectsBody = `{"data":["nope"]}`
		ts := httptest.NewServer(api)
		defer ts.Close()

		c, _ := newTestClient(t, ts.URL, Options{})
		assert.Empty(t, c.ListFlats(context.Background()))
	})

	t.Run("Authentication Failure", func(t *testing.T) {
		api := newFakeAPI(t)
		api.loginBody = `{"status":"bad","errors":[{"msg":"wrong password"}]}`
		ts := httptest.NewServer(api)
		defer ts.Close()

		c, _ := newTestClient(t, ts.URL, Options{})
		_, err := c.listFlats(context.Background())
		assert.ErrorIs(t, err, ErrAuthentication)
		_, objects, _ := api.counts()
		assert.Zero(t, objects)
	})

	t.Run("Static Override", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request to %s", r.URL.Path)
		}))
		defer ts.Close()

		static := map[string]string{"1": "Mine:1:1"}
		c, _ := newTestClient(t, ts.URL, Options{StaticFlats: static})
		assert.Equal(t, static, c.ListFlats(context.Background()))

		// mutating the caller's map afterwards doesn't leak in
		static["2"] = "Other"
		assert.Len(t, c.ListFlats(context.Background()), 1)
	})

	t.Run("Replaces Previous Flats", func(t *testing.T) {
		api := newFakeAPI(t)
		api.objectsBody = `{"data":{"list":[{"id":"1","label":"a","house":"b","number":"c"}]}}`
		ts := httptest.NewServer(api)
		defer ts.Close()

		c, _ := newTestClient(t, ts.URL, Options{})
		c.ListFlats(context.Background())
		api.set(func(f *fakeAPI) {
			f.objectsBody = `{"data":{"list":[{"id":"2","label":"x","house":"y","number":"z"}]}}`
		})
		assert.Equal(t, map[string]string{"2": "x:y:z"}, c.ListFlats(context.Background()))
		assert.Equal(t, map[string]string{"2": "x:y:z"}, c.Flats())
	})
}
