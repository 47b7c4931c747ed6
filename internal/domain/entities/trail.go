package entities

// Trail is one upstream reviewer's ordered audit narrative.
type Trail struct {
	// Origin labels each message when trails are merged, e.g. "Compliance".
	Origin   string   `json:"origin"`
	Messages []string `json:"messages"`
}
