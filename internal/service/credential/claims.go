package credential

import "github.com/golang-jwt/jwt/v5"

// VideoGrant mirrors the LiveKit room grant so issued tokens are accepted by a
// LiveKit server as well as by the event relay.
type VideoGrant struct {
	Room         string `json:"room,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

// Claims is the token body: registered claims plus identity, grant and metadata.
type Claims struct {
	jwt.RegisteredClaims
	Name     string      `json:"name,omitempty"`
	Video    *VideoGrant `json:"video,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
	Kind     string      `json:"kind,omitempty"`
}

func (c *Claims) Identity() string { return c.Subject }

func (c *Claims) IsAgent() bool { return c.Kind == KindAgent }

// CanJoin reports whether the grant admits the holder to room.
func (c *Claims) CanJoin(room string) bool {
	return c.Video != nil && c.Video.RoomJoin && c.Video.Room != "" && c.Video.Room == room
}

func (c *Claims) CanPublish() bool {
	return c.Video != nil && c.Video.CanPublish != nil && *c.Video.CanPublish
}

func (c *Claims) CanSubscribe() bool {
	return c.Video != nil && c.Video.CanSubscribe != nil && *c.Video.CanSubscribe
}
