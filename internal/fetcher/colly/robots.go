package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/realtime-news-aggregator/internal/retry"
)

// robotsProbePolicy retries robots.txt probes that time out.
var robotsProbePolicy = retry.Policy{MaxRetries: 3, Delay: 250 * time.Millisecond}

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsAwareTransport keeps an unreachable robots.txt from deciding whether a
// listing is fetched. Probes that time out are retried; when no probe answers,
// the transport serves an allow-all document and the listing request itself
// is judged on its own response.
type robotsAwareTransport struct {
	base   http.RoundTripper
	policy retry.Policy
}

func newRobotsTransport(base http.RoundTripper) *robotsAwareTransport {
	return &robotsAwareTransport{base: base, policy: robotsProbePolicy}
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.base.RoundTrip(req)
	}

	var resp *http.Response
	_, err := t.policy.Do(req.Context(), func(context.Context) error {
		r, err := t.base.RoundTrip(req.Clone(req.Context()))
		switch {
		case err == nil:
			resp = r
			return nil
		case isTimeout(err):
			return err
		default:
			// Refused or reset: fall back without asking again.
			return nil
		}
	})
	if err != nil || resp == nil {
		return allowAll(req), nil
	}
	return resp, nil
}

func allowAll(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": []string{"text/plain"}},
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
