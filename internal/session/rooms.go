package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"livecast/internal/domain"
)

// CreateRoom creates a room on the server. An empty roomName asks the
// server for a generated 4 digit room. The room id the rest of the session
// uses is the name the server returns, not the one requested.
func (c *Controller) CreateRoom(ctx context.Context, roomName string) (string, error) {
	if roomName == "" {
		roomName = domain.GenerateRoomName()
	}
	sid, name, err := c.api.CreateRoom(ctx, roomName)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.roomID = name
	c.mu.Unlock()
	c.store.SetRoomID(name)
	c.store.SetRoomSID(sid)
	log.Info().Str("module", "session").Str("room", name).Str("sid", sid).Msg("room created")
	return name, nil
}

// InitializeStream fetches credentials for the room. Token then URL, in
// that order, stopping on the first failure.
func (c *Controller) InitializeStream(ctx context.Context, roomName string, role domain.Role) (domain.Credentials, error) {
	creds, err := c.api.InitializeConnection(ctx, roomName, role)
	if err != nil {
		return domain.Credentials{}, err
	}
	c.mu.Lock()
	c.roomID = creds.RoomName
	c.mu.Unlock()
	c.store.SetRoomID(creds.RoomName)
	return creds, nil
}

// RestoreSession checks the persisted marker for an interrupted broadcast
// and, if one is found, fetches fresh credentials for it. Returns ok=false
// when there is nothing to restore.
func (c *Controller) RestoreSession(ctx context.Context) (domain.Credentials, bool, error) {
	if c.marker == nil {
		return domain.Credentials{}, false, nil
	}
	roomID, found, err := c.marker.Get("roomId")
	if err != nil || !found || roomID == "" {
		return domain.Credentials{}, false, err
	}
	live, _, err := c.marker.Get("isLive")
	if err != nil || live != "true" {
		return domain.Credentials{}, false, err
	}
	creds, err := c.InitializeStream(ctx, roomID, domain.RoleBroadcaster)
	if err != nil {
		// Stale marker, e.g. the room expired server-side. Drop it so the
		// next start is clean.
		if derr := c.marker.Delete("roomId", "isLive"); derr != nil {
			log.Warn().Err(derr).Str("module", "session").Msg("drop stale marker")
		}
		return domain.Credentials{}, false, err
	}
	log.Info().Str("module", "session").Str("room", roomID).Msg("session restored")
	return creds, true, nil
}

// DeleteRoom ends the broadcast: disconnects, clears the store snapshot in
// one shot and removes the persisted marker.
func (c *Controller) DeleteRoom() error {
	if err := c.Disconnect(); err != nil {
		return err
	}
	c.mu.Lock()
	c.roomID = ""
	c.mu.Unlock()
	c.store.Clear()
	if c.marker != nil {
		if err := c.marker.Delete("roomId", "isLive"); err != nil {
			return domain.NewFailure(domain.FailureConfiguration, "session.DeleteRoom", "cannot clear session marker", err)
		}
	}
	log.Info().Str("module", "session").Msg("room deleted")
	return nil
}
