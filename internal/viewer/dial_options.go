package viewer

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/tilecast/internal/platform/version"
)

// DialerOptions are shared by every transport.
type DialerOptions struct {
	HTTPClient   *http.Client
	PollInterval time.Duration
	Clock        clockwork.Clock
	UserAgent    string
}

func (o DialerOptions) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func (o DialerOptions) clock() clockwork.Clock {
	if o.Clock != nil {
		return o.Clock
	}
	return clockwork.NewRealClock()
}

func (o DialerOptions) userAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	return version.UserAgent("viewer")
}
