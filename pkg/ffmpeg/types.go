package ffmpeg

// AssetMetadata represents metadata probed from a source video file
type AssetMetadata struct {
	Duration   float64 `json:"duration"`   // Duration in seconds
	Width      int     `json:"width"`      // Video width in pixels
	Height     int     `json:"height"`     // Video height in pixels
	FrameRate  float64 `json:"frame_rate"` // Frames per second
	HasAudio   bool    `json:"has_audio"`  // Whether an audio track is present
	VideoCodec string  `json:"video_codec"`
	Format     string  `json:"format"` // Container format
	Size       int64   `json:"size"`   // File size in bytes
}

// RenderSpec describes a single encoder invocation: an ordered input list,
// a filter_complex program, the output port labels to map, and codec
// settings for the output file.
type RenderSpec struct {
	Inputs        []string // input file paths, in graph input-index order
	FilterComplex string
	VideoLabel    string // filter_complex output pad to map as video, e.g. "vout"
	AudioLabel    string // filter_complex output pad to map as audio; empty drops audio
	OutputPath    string

	VideoCodec   string
	CRF          int
	Preset       string
	AudioCodec   string
	AudioBitrate string
}

// ThumbnailSpec describes a single-frame extraction pass.
type ThumbnailSpec struct {
	Input      string
	Timestamp  float64 // seconds into the input
	Width      int     // output width; height follows aspect
	OutputPath string
}
