package domain

// ParticipantID is the session-scoped sid assigned by the media server.
type ParticipantID string

// ParticipantRef is what every discovery source and live event can give us.
// Either field may be empty, never both.
type ParticipantRef struct {
	ID       ParticipantID `json:"sid,omitempty"`
	Identity Identity      `json:"identity,omitempty"`
}

// ParticipantKey is the de-duplication key: the sid when present, else the identity.
type ParticipantKey string

func (p ParticipantRef) Key() ParticipantKey {
	if p.ID != "" {
		return ParticipantKey("id:" + string(p.ID))
	}
	return ParticipantKey("identity:" + string(p.Identity))
}

func (p ParticipantRef) IsZero() bool { return p.ID == "" && p.Identity == "" }

// Label is what a tile shows.
func (p ParticipantRef) Label() string {
	if p.Identity != "" {
		return string(p.Identity)
	}
	return string(p.ID)
}
