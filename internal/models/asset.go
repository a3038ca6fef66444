package models

// SourceAsset is an immutable reference to a raw media file. Created on
// ingest by the upload front door; this pipeline only reads it.
type SourceAsset struct {
	ID        string  `json:"id"`
	Path      string  `json:"path"`
	Duration  float64 `json:"duration"`   // seconds
	FrameRate float64 `json:"frame_rate"` // frames per second
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	HasAudio  bool    `json:"has_audio"`
}

// Artifact is the published output of a completed render job. Every file
// it references was written via temp path + rename, so a path either does
// not exist or is complete.
type Artifact struct {
	VideoPath      string  `json:"video_path,omitempty"`
	ThumbnailPath  string  `json:"thumbnail_path,omitempty"`
	StatusPath     string  `json:"status_path"`
	OutputDuration float64 `json:"output_duration"`
	EmptyOutput    bool    `json:"empty_output"`
}
