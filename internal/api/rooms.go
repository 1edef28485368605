package api

import (
	"context"
	"net/url"

	"github.com/rs/zerolog/log"

	"livecast/internal/domain"
)

// CreateRoom asks the service to create a room and returns the server-side
// room sid and the (possibly normalized) room name.
func (c *Client) CreateRoom(ctx context.Context, roomName string) (sid, name string, err error) {
	if roomName == "" {
		return "", "", domain.NewFailure(domain.FailureConfiguration, "api.CreateRoom", "room name is empty", domain.ErrRoomNameEmpty)
	}
	form := url.Values{}
	form.Set("roomName", roomName)

	var resp struct {
		SID  string `json:"sid"`
		Name string `json:"name"`
	}
	if err := c.postForm(ctx, "/createRoom", form, &resp); err != nil {
		return "", "", err
	}
	log.Info().Str("module", "api").Str("sid", resp.SID).Str("room", resp.Name).Msg("room created")
	return resp.SID, resp.Name, nil
}

// GetRoomList fetches a snapshot of currently active rooms. Coarse and
// read-only; it does not participate in session state.
func (c *Client) GetRoomList(ctx context.Context) ([]domain.RoomInfo, error) {
	var resp struct {
		List []domain.RoomInfo `json:"list"`
	}
	if err := c.get(ctx, "/getRoomList", &resp); err != nil {
		return nil, err
	}
	return resp.List, nil
}
