// Package api calls the session REST endpoints used by the moderator view.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"modview/native/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// KickReason is sent with every kick request.
const KickReason = "Kicked by admin moderator"

// ErrUnexpectedStatus is wrapped by Error for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Error describes a failed REST call.
type Error struct {
	Op     string
	Status int
	Body   string
}

func (e *Error) Error() string {
	if msg := gjson.Get(e.Body, "error").String(); msg != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s: http %d", e.Op, e.Status)
}

func (e *Error) Unwrap() error { return ErrUnexpectedStatus }

// Client talks to the session API with a bearer credential.
type Client struct {
	baseURL    string
	credential string
	http       *http.Client
}

var _ domain.SessionAPI = (*Client)(nil)

// NewClient creates a client for baseURL. credential is sent verbatim as the
// Authorization header.
func NewClient(baseURL, credential string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		credential: credential,
		http:       &http.Client{Timeout: 15 * time.Second},
	}
}

// JoinAsViewer registers the caller as a privileged viewer of the session.
func (c *Client) JoinAsViewer(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, "join session", http.MethodPost, "/admin/sessions/"+url.PathEscape(sessionID)+"/join", nil)
	return err
}

// SessionDetail loads the session. Admins and the broadcaster are filtered
// out of the viewer list.
func (c *Client) SessionDetail(ctx context.Context, sessionID string) (*domain.SessionDetail, error) {
	body, err := c.do(ctx, "load session", http.MethodGet, "/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, err
	}
	return parseSessionDetail(body)
}

// KickViewer removes userID from the session.
func (c *Client) KickViewer(ctx context.Context, sessionID, userID, reason string) error {
	if reason == "" {
		reason = KickReason
	}
	path := "/admin/sessions/" + url.PathEscape(sessionID) + "/kick/" + url.PathEscape(userID)
	_, err := c.do(ctx, "kick viewer", http.MethodPost, path, map[string]string{"reason": reason})
	return err
}

// EndSession ends the live session for everyone.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, "end session", http.MethodPost, "/admin/sessions/"+url.PathEscape(sessionID)+"/end", nil)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create http request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", c.credential)

	log.Debug().Str("module", "api").Str("method", method).Str("path", path).Msg(op)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func parseSessionDetail(body []byte) (*domain.SessionDetail, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("load session: invalid json")
	}
	session := gjson.GetBytes(body, "session")
	if !session.Exists() {
		return nil, errors.New("load session: no session in response")
	}

	detail := &domain.SessionDetail{
		ID:                  session.Get("id").String(),
		BroadcasterID:       session.Get("broadcaster.id").String(),
		BroadcasterUsername: session.Get("broadcaster.username").String(),
		IsPrivate:           session.Get("isPrivate").Bool(),
	}

	all := session.Get("viewers")
	if !all.Exists() {
		all = gjson.GetBytes(body, "viewers")
	}
	all.ForEach(func(_, v gjson.Result) bool {
		viewer := domain.Viewer{
			UserID:          v.Get("user.id").String(),
			Username:        v.Get("user.username").String(),
			IsAdmin:         v.Get("isAdmin").Bool(),
			ConsumedSeconds: int(v.Get("consumedSeconds").Int()),
		}
		if viewer.IsAdmin || (viewer.UserID != "" && viewer.UserID == detail.BroadcasterID) {
			return true
		}
		detail.Viewers = append(detail.Viewers, viewer)
		return true
	})

	return detail, nil
}
