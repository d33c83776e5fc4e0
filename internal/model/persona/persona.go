package persona

import "strings"

// Persona captures the role-playing attributes supplied by the client.
// Every field is optional and treated as opaque text; only ID is echoed back.
type Persona struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`      // 角色描述，进入提示词的 Character traits
	BehaviorSnapshot string `json:"behaviorSnapshot,omitempty"` // 行为模式快照
}

// DisplayName returns the persona name, or fallback when none was given.
func (p Persona) DisplayName(fallback string) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return fallback
}

// IDOrNil returns a pointer to the persona id, nil when the id is empty so the
// JSON response carries null.
func (p Persona) IDOrNil() *string {
	if p.ID == "" {
		return nil
	}
	id := p.ID
	return &id
}
