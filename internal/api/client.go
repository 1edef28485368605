// Package api is the HTTP client for the token/room service. It covers the
// whole server contract the session layer depends on: POST /getToken,
// GET /getUrl, POST /createRoom and GET /getRoomList.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"livecast/internal/domain"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// GetToken issues an access token for the given room and role. The
// participant identity is derived here so callers cannot desync identity
// rules from the token request.
func (c *Client) GetToken(ctx context.Context, roomName string, role domain.Role) (identity, token string, err error) {
	if roomName == "" {
		return "", "", domain.NewFailure(domain.FailureConfiguration, "api.GetToken", "room name is empty", domain.ErrRoomNameEmpty)
	}
	identity = domain.ParticipantIdentity(role, roomName)

	form := url.Values{}
	form.Set("roomName", roomName)
	form.Set("participantName", identity)

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.postForm(ctx, "/getToken", form, &resp); err != nil {
		return "", "", err
	}
	if resp.Token == "" {
		return "", "", domain.NewFailure(domain.FailureCredential, "api.GetToken", "malformed server response: empty token", nil)
	}
	log.Debug().Str("module", "api").Str("room", roomName).Str("identity", identity).Msg("token issued")
	return identity, resp.Token, nil
}

// GetURL resolves the signaling URL for the media server.
func (c *Client) GetURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.get(ctx, "/getUrl", &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", domain.NewFailure(domain.FailureCredential, "api.GetURL", "malformed server response: empty url", nil)
	}
	return resp.URL, nil
}

// InitializeConnection resolves the full credentials triple: token first,
// then signaling URL. The URL lookup is not attempted when the token call
// fails.
func (c *Client) InitializeConnection(ctx context.Context, roomName string, role domain.Role) (domain.Credentials, error) {
	identity, token, err := c.GetToken(ctx, roomName, role)
	if err != nil {
		return domain.Credentials{}, err
	}
	wsURL, err := c.GetURL(ctx)
	if err != nil {
		return domain.Credentials{}, err
	}
	return domain.Credentials{
		RoomName: roomName,
		Identity: identity,
		Token:    token,
		URL:      wsURL,
	}, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.NewFailure(domain.FailureCredential, "api"+path, "building request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, path, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return domain.NewFailure(domain.FailureCredential, "api"+path, "building request", err)
	}
	return c.do(req, path, out)
}

// do executes one request and classifies the outcome so callers can tell
// "no network to server" from "server rejected request" from "malformed
// server response".
func (c *Client) do(req *http.Request, path string, out any) error {
	op := "api" + path

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewFailure(domain.FailureCredential, op, "cannot reach server", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewFailure(domain.FailureCredential, op, "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("server rejected request (%d %s)", resp.StatusCode, http.StatusText(resp.StatusCode))
		// Error bodies optionally carry a JSON message field.
		var serverErr struct {
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(body, &serverErr); jsonErr == nil && serverErr.Message != "" {
			msg += ": " + serverErr.Message
		}
		log.Warn().Str("module", "api").Str("path", path).Int("status", resp.StatusCode).Msg("request rejected")
		return domain.NewFailure(domain.FailureCredential, op, msg, nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewFailure(domain.FailureCredential, op, "malformed server response", err)
	}
	return nil
}
