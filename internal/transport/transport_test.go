package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_Post_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/charges", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"amount":100}`, string(body))
		fmt.Fprint(w, `{"id":"ch_1"}`)
	}))
	defer server.Close()

	c := NewClient("test", WithHTTPClient(server.Client()))
	body, err := c.Post(context.Background(), server.URL+"/charges", []byte(`{"amount":100}`),
		map[string]string{"Content-Type": "application/json"})

	require.NoError(t, err)
	assert.Equal(t, `{"id":"ch_1"}`, string(body))
}

func TestClient_Request_Non2xxReturnsResponseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_token"}`)
	}))
	defer server.Close()

	c := NewClient("test", WithHTTPClient(server.Client()))
	body, err := c.Request(context.Background(), http.MethodGet, server.URL+"/key", nil, nil)

	require.Error(t, err)
	re, ok := AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, re.StatusCode)
	assert.True(t, re.Unauthorized())
	assert.Equal(t, `{"error":"invalid_token"}`, string(re.Body))
	assert.Equal(t, re.Body, body)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestClient_Request_NetworkError(t *testing.T) {
	hc := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return nil, fmt.Errorf("simulated network error")
			},
		},
		Timeout: 100 * time.Millisecond,
	}
	c := NewClient("test", WithHTTPClient(hc))

	_, err := c.Post(context.Background(), "http://gateway.invalid/charges", nil, nil)
	require.Error(t, err)
	_, isResponseErr := AsResponseError(err)
	assert.False(t, isResponseErr)
	assert.Contains(t, err.Error(), "simulated network error")
}

func TestClient_TranscriptCapturesBothDirections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "approved")
	}))
	defer server.Close()

	tr := &Transcript{}
	c := NewClient("test", WithHTTPClient(server.Client()), WithTranscript(tr))
	_, err := c.Post(context.Background(), server.URL, []byte("card[number]=4242424242424242"),
		map[string]string{"Authorization": "Bearer sk_test_1"})
	require.NoError(t, err)

	dump := tr.String()
	assert.Contains(t, dump, "-> POST")
	assert.Contains(t, dump, "Authorization: Bearer sk_test_1")
	assert.Contains(t, dump, "card[number]=4242424242424242")
	assert.Contains(t, dump, "<- HTTP/1.1 200 OK")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(dump), "approved"))

	tr.Reset()
	assert.Empty(t, tr.String())
}

func TestClient_DebugLogIsScrubbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	var scrubbed []string
	scrubber := func(s string) string {
		out := strings.ReplaceAll(s, "sk_test_1", "[FILTERED]")
		scrubbed = append(scrubbed, out)
		return out
	}
	c := NewClient("test", WithHTTPClient(server.Client()),
		WithLogger(zap.NewExample()), WithScrubber(scrubber))
	_, err := c.Post(context.Background(), server.URL, nil, map[string]string{"Authorization": "Bearer sk_test_1"})
	require.NoError(t, err)

	require.Len(t, scrubbed, 2)
	for _, s := range scrubbed {
		assert.NotContains(t, s, "sk_test_1")
	}
}

func TestClient_Metrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := NewClient("stripe", WithHTTPClient(server.Client()), WithMetrics(m))

	_, _ = c.Post(context.Background(), server.URL+"/ok", nil, nil)
	_, _ = c.Post(context.Background(), server.URL+"/ok", nil, nil)
	_, _ = c.Post(context.Background(), server.URL+"/fail", nil, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("stripe", "POST", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("stripe", "POST", "502")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var histogram *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "paygw_transport_request_duration_seconds" {
			histogram = f
		}
	}
	require.NotNil(t, histogram)
	assert.Equal(t, uint64(3), histogram.GetMetric()[0].GetHistogram().GetSampleCount())
}
