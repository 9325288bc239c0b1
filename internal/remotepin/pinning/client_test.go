package pinning

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newService runs a gin router that records the last request body.
func newService(t *testing.T, setup func(r *gin.Engine, last *[]byte)) *Client {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var last []byte
	r.Use(func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer secret" {
			c.AbortWithStatusJSON(401, gin.H{"error": gin.H{"reason": "UNAUTHORIZED", "details": "bad token"}})
			return
		}
		last, _ = ioutil.ReadAll(c.Request.Body)
		c.Next()
	})
	setup(r, &last)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "secret")
}

func TestAddPin(t *testing.T) {
	var body []byte
	c := newService(t, func(r *gin.Engine, last *[]byte) {
		r.POST("/pins", func(ctx *gin.Context) {
			body = *last
			ctx.JSON(202, gin.H{
				"requestid": "req-1",
				"status":    "queued",
				"created":   "2021-05-01T10:00:00Z",
				"pin":       gin.H{"cid": "QmExample"},
				"delegates": []string{"/ip4/203.0.113.1/tcp/4001/p2p/QmDelegate"},
			})
		})
	})

	st, err := c.Add(context.Background(), Pin{Cid: "QmExample", Name: "report"})
	require.NoError(t, err)
	assert.Equal(t, "req-1", st.RequestID)
	assert.Equal(t, Queued, st.Status)
	assert.Equal(t, []string{"/ip4/203.0.113.1/tcp/4001/p2p/QmDelegate"}, st.Delegates)
	assert.Equal(t, time.Date(2021, 5, 1, 10, 0, 0, 0, time.UTC), st.Created.UTC())

	sent := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.Equal(t, "QmExample", sent["cid"])
	assert.Equal(t, "report", sent["name"])
	_, hasOrigins := sent["origins"]
	assert.False(t, hasOrigins)
}

func TestReplaceAndGet(t *testing.T) {
	c := newService(t, func(r *gin.Engine, last *[]byte) {
		r.POST("/pins/:requestid", func(ctx *gin.Context) {
			ctx.JSON(202, gin.H{"requestid": "new-" + ctx.Param("requestid"), "status": "pinning"})
		})
		r.GET("/pins/:requestid", func(ctx *gin.Context) {
			ctx.JSON(200, gin.H{"requestid": ctx.Param("requestid"), "status": "pinned"})
		})
	})

	st, err := c.Replace(context.Background(), "old", Pin{Cid: "QmExample"})
	require.NoError(t, err)
	assert.Equal(t, "new-old", st.RequestID)
	assert.Equal(t, Pinning, st.Status)

	st, err = c.Get(context.Background(), "new-old")
	require.NoError(t, err)
	assert.Equal(t, Pinned, st.Status)
	assert.True(t, st.Status.Terminal())
}

func TestListQuery(t *testing.T) {
	var query map[string][]string
	c := newService(t, func(r *gin.Engine, last *[]byte) {
		r.GET("/pins", func(ctx *gin.Context) {
			query = ctx.Request.URL.Query()
			ctx.JSON(200, gin.H{"count": 1, "results": []gin.H{{"requestid": "a", "status": "failed"}}})
		})
	})

	res, err := c.List(context.Background(), ListOptions{
		Cids:   []string{"QmA", "QmB"},
		Status: []Status{Queued, Pinning},
		Match:  IPartial,
		Name:   "rep",
		Limit:  5,
		Meta:   map[string]string{"app": "rpin"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Results, 1)
	assert.Equal(t, Failed, res.Results[0].Status)

	assert.Equal(t, []string{"QmA,QmB"}, query["cid"])
	assert.Equal(t, []string{"queued,pinning"}, query["status"])
	assert.Equal(t, []string{"ipartial"}, query["match"])
	assert.Equal(t, []string{"rep"}, query["name"])
	assert.Equal(t, []string{"5"}, query["limit"])
	assert.Equal(t, []string{`{"app":"rpin"}`}, query["meta"])
}

func TestRemove(t *testing.T) {
	removed := ""
	c := newService(t, func(r *gin.Engine, last *[]byte) {
		r.DELETE("/pins/:requestid", func(ctx *gin.Context) {
			removed = ctx.Param("requestid")
			ctx.Status(http.StatusAccepted)
		})
	})
	require.NoError(t, c.Remove(context.Background(), "req-9"))
	assert.Equal(t, "req-9", removed)
}

func TestServiceError(t *testing.T) {
	c := newService(t, func(r *gin.Engine, last *[]byte) {
		r.GET("/pins/:requestid", func(ctx *gin.Context) {
			ctx.JSON(404, gin.H{"error": gin.H{"reason": "NOT_FOUND", "details": "no such pin"}})
		})
	})

	_, err := c.Get(context.Background(), "missing")
	require.Error(t, err)
	perr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, 404, perr.StatusCode)
	assert.Equal(t, "NOT_FOUND", perr.Reason)
	assert.Equal(t, "pinning service: 404 NOT_FOUND: no such pin", perr.Error())
}

func TestUnauthorized(t *testing.T) {
	c := newService(t, func(r *gin.Engine, last *[]byte) {})
	c.token = "wrong"

	_, err := c.Add(context.Background(), Pin{Cid: "QmExample"})
	require.Error(t, err)
	assert.Equal(t, 401, err.(*Error).StatusCode)
}

func TestPlainTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Get(context.Background(), "x")
	require.Error(t, err)
	perr := err.(*Error)
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
	assert.Equal(t, "upstream down", perr.Details)
}

func TestCancelledContext(t *testing.T) {
	c := newService(t, func(r *gin.Engine, last *[]byte) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Add(ctx, Pin{Cid: "QmExample"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
