// Package obsproto defines the JSON messages of the replay observer
// protocol: a browser subscribes over WebSocket and receives each frame
// as it is cut from the diff.
package obsproto

// Version is the observer protocol version.
const Version = "1.0"

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// FromIndex requests cached frames starting at this emission
	// index before going live. Negative means live frames only.
	FromIndex int `json:"from_index"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string   `json:"protocol_version"`
	Diff            string   `json:"diff"`
	Mode            string   `json:"mode"`
	Width           uint32   `json:"width"`
	Height          uint32   `json:"height"`
	Palette         []string `json:"palette"`
	Frames          int      `json:"frames"`
	Done            bool     `json:"done"`
}

// Server -> Client. One emitted frame.
// Encoding "PNG_B64" means Data is a base64 PNG of the full canvas.
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Index           int    `json:"index"`
	Label           string `json:"label"`
	Timestamp       uint32 `json:"timestamp"`
	Encoding        string `json:"encoding"`
	Data            string `json:"data"`
}

// Server -> Client. The replay finished (or failed).
type DoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Frames          int    `json:"frames"`
	Events          int    `json:"events"`
	Error           string `json:"error,omitempty"`
}
