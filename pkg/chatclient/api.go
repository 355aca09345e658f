package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// getJSON GET запрос к REST API с токеном
func (c *Controller) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return &ServerError{Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: apiErr.Error}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Controller) fetchRooms(ctx context.Context) ([]Room, error) {
	var resp struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.getJSON(ctx, "/api/v1/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

func (c *Controller) fetchHistory(ctx context.Context, roomID uuid.UUID, since int64) ([]Message, error) {
	var query url.Values
	if since > 0 {
		query = url.Values{"since": {strconv.FormatInt(since, 10)}}
	}

	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.getJSON(ctx, "/api/v1/rooms/"+roomID.String()+"/messages", query, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// wsURL http(s)://host -> ws(s)://host/ws?token=
func wsURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}
