package models

// Participant is one side of a chat room as the backend reports it
// (the property seller or the interested buyer).
type Participant struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// DisplayName falls back to a generic label when the backend omits the name.
func (p *Participant) DisplayName() string {
	if p == nil || p.Name == "" {
		return "Owner"
	}
	return p.Name
}
