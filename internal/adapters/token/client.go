package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dkeye/roomview/internal/app"
	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxBody = 64 << 10

// HTTPSource fetches room tokens from GET <base>/api/get-token.
type HTTPSource struct {
	base string
	hc   *http.Client
}

func NewHTTPSource(baseURL string, hc *http.Client) *HTTPSource {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

type response struct {
	Token string `json:"token"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Fetch returns the grant. Any non-2xx answer or a body without a token
// is a core.ErrConnectionFailure carrying the server's message.
func (s *HTTPSource) Fetch(ctx context.Context, room domain.RoomName, identity domain.Identity) (app.Grant, error) {
	q := url.Values{}
	q.Set("room", string(room))
	q.Set("username", string(identity))
	endpoint := s.base + "/api/get-token?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return app.Grant{}, fmt.Errorf("%w: %w", core.ErrConnectionFailure, err)
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return app.Grant{}, fmt.Errorf("%w: %w", core.ErrConnectionFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return app.Grant{}, fmt.Errorf("%w: read body: %w", core.ErrConnectionFailure, err)
	}
	var r response
	decodeErr := json.Unmarshal(body, &r)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := r.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		log.Warn().Str("module", "adapters.token").Int("status", resp.StatusCode).Str("error", msg).Msg("token request rejected")
		return app.Grant{}, fmt.Errorf("%w: %s", core.ErrConnectionFailure, msg)
	}
	if decodeErr != nil {
		return app.Grant{}, fmt.Errorf("%w: bad token response: %w", core.ErrConnectionFailure, decodeErr)
	}
	if r.Token == "" {
		return app.Grant{}, fmt.Errorf("%w: no token in response", core.ErrConnectionFailure)
	}
	return app.Grant{Token: r.Token, URL: r.URL}, nil
}
