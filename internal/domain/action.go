package domain

// Instruction is one platform-specific step a client should execute.
type Instruction struct {
	Op     string            `json:"op"`
	Target string            `json:"target,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// UIInstructions tells the client how to present the decision.
type UIInstructions struct {
	Color         string `json:"color"`
	Icon          string `json:"icon"`
	Title         string `json:"title"`
	Body          string `json:"body,omitempty"`
	Priority      string `json:"priority"` // low, default, high, max
	Vibrate       bool   `json:"vibrate"`
	Sound         bool   `json:"sound"`
	FullScreen    bool   `json:"fullScreen"`
	AutoDismissMS int    `json:"autoDismissMs,omitempty"`
	RequiresAck   bool   `json:"requiresAck"`
}

// ActionBundle is the complete autonomous response for one analysis:
// the chosen action, per-platform execution steps and UI presentation.
type ActionBundle struct {
	Action          ActionType     `json:"action"`
	Level           RiskLevel      `json:"level"`
	Reason          string         `json:"reason,omitempty"`
	Instructions    []Instruction  `json:"instructions,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
	UI              UIInstructions `json:"ui"`
}
