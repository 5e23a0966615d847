package persona

// Persona is the fixed per-call agent configuration. It is resolved once when
// the media stream's start frame identifies the caller and never changes for
// the remainder of the call, so values may be shared by reference across calls.
type Persona struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Model        string  `json:"model"`
	Voice        string  `json:"voice"`
	Temperature  float64 `json:"temperature"`
	Speed        float64 `json:"speed,omitempty"`
	Instructions string  `json:"instructions"`
	// Callers lists the phone numbers routed to this persona.
	Callers []string `json:"callers,omitempty"`
}

// Snapshot is one consistent read of the personas file. Resolution must use a
// single snapshot so that a mid-call file update never changes a live call.
type Snapshot struct {
	Personas  []Persona `json:"personas"`
	DefaultID string    `json:"default"`
}

// Default returns the snapshot's default persona. If the default id is missing
// or dangling it falls back to the first entry, then to a built-in stub so a
// call is never failed for lack of configuration.
func (s Snapshot) Default() Persona {
	for _, p := range s.Personas {
		if p.ID == s.DefaultID {
			return p
		}
	}
	if len(s.Personas) > 0 {
		return s.Personas[0]
	}
	return Persona{
		ID:           "fallback",
		Name:         "Receptionist",
		Model:        "gpt-realtime",
		Voice:        "alloy",
		Temperature:  0.8,
		Instructions: "You are a friendly receptionist. Greet the caller and help them.",
	}
}

// Resolve maps a caller number to a persona using one snapshot. Unknown or
// empty callers get the snapshot default.
func Resolve(callerID string, snap Snapshot) Persona {
	if callerID != "" {
		for _, p := range snap.Personas {
			for _, num := range p.Callers {
				if num == callerID {
					return p
				}
			}
		}
	}
	return snap.Default()
}
