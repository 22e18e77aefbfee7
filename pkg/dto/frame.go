package dto

// LabeledObject is one tracked object in a single frame. Coordinates are
// integer pixels in the source frame's coordinate system.
type LabeledObject struct {
	ID      int     `json:"id"`
	X       int     `json:"x"`
	Y       int     `json:"y"`
	W       int     `json:"w"`
	H       int     `json:"h"`
	ClassID int     `json:"class_id"`
	Score   float32 `json:"score"`
}

// LabeledFrame is the per-frame output of the tracking pipeline.
type LabeledFrame struct {
	FrameIndex int             `json:"frame_index"`
	Objects    []LabeledObject `json:"objects"`
}

// StatusResponse describes the running pipeline for GET /v1/status.
type StatusResponse struct {
	RunID        string  `json:"run_id"`
	FrameIndex   int     `json:"frame_index"`
	ActiveTracks int     `json:"active_tracks"`
	IsLive       bool    `json:"is_live"`
	TotalFrames  int     `json:"total_frames"`
	SourceFPS    float64 `json:"source_fps"`
	SampleFPS    float64 `json:"sample_fps"`
	FrameStep    int     `json:"frame_step"`
}

// WSMessage is a WebSocket message for real-time frame delivery.
type WSMessage struct {
	Type  string        `json:"type"` // labeled_frame, status
	RunID string        `json:"run_id,omitempty"`
	Frame *LabeledFrame `json:"frame,omitempty"`
}
