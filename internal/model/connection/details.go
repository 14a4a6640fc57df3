package connection

import "github.com/pkg/errors"

// Details describes how a player joins a freshly minted room. It is created once
// per successful issuance and never mutated afterwards.
type Details struct {
	ServerURL        string `json:"serverUrl"`
	RoomName         string `json:"roomName"`
	ParticipantToken string `json:"participantToken"`
	ParticipantName  string `json:"participantName"`
}

// Validate 检查连接参数是否完整
func (d Details) Validate() error {
	switch {
	case d.ServerURL == "":
		return errors.New("serverUrl is missing")
	case d.RoomName == "":
		return errors.New("roomName is missing")
	case d.ParticipantToken == "":
		return errors.New("participantToken is missing")
	case d.ParticipantName == "":
		return errors.New("participantName is missing")
	}
	return nil
}
