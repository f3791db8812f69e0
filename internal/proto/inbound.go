package proto

import (
	"strings"

	"github.com/goccy/go-json"
)

// IdentifyData is the op 2 payload.
type IdentifyData struct {
	Token          string              `json:"token"`
	Properties     map[string]any      `json:"properties,omitempty"`
	Compress       bool                `json:"compress,omitempty"`
	LargeThreshold int                 `json:"large_threshold,omitempty"`
	Presence       *PresenceUpdateData `json:"presence,omitempty"`
}

// ResumeData is the op 6 payload.
type ResumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// PresenceUpdateData is the op 3 payload. Legacy builds send "game"; newer
// ones may send "activities" instead.
type PresenceUpdateData struct {
	Status     string     `json:"status"`
	Since      *int64     `json:"since,omitempty"`
	AFK        bool       `json:"afk,omitempty"`
	Game       *Activity  `json:"game,omitempty"`
	Activities []Activity `json:"activities,omitempty"`
}

// Activity is the game/stream a user shows in their presence.
type Activity struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	URL  string `json:"url,omitempty"`
}

// PrimaryActivity returns the single activity legacy payloads carry.
func (p *PresenceUpdateData) PrimaryActivity() *Activity {
	if p.Game != nil && p.Game.Name != "" {
		return p.Game
	}
	if len(p.Activities) > 0 && p.Activities[0].Name != "" {
		a := p.Activities[0]
		return &a
	}
	return nil
}

// RequestGuildMembersData is the op 8 payload. guild_id is a string in older
// builds and an array in newer ones.
type RequestGuildMembersData struct {
	GuildID json.RawMessage `json:"guild_id"`
	Query   string          `json:"query"`
	Limit   int             `json:"limit"`
}

// GuildIDs normalizes guild_id to a list.
func (r *RequestGuildMembersData) GuildIDs() ([]string, error) {
	raw := strings.TrimSpace(string(r.GuildID))
	if raw == "" || raw == "null" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var ids []string
		if err := json.Unmarshal(r.GuildID, &ids); err != nil {
			return nil, err
		}
		return ids, nil
	}
	var id string
	if err := json.Unmarshal(r.GuildID, &id); err != nil {
		return nil, err
	}
	return []string{id}, nil
}
