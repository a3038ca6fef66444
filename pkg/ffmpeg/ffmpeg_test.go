package ffmpeg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRenderArgs(t *testing.T) {
	spec := RenderSpec{
		Inputs:        []string{"/assets/a.mp4", "/lib/bgm.mp3"},
		FilterComplex: "[0:v]trim=start=0:end=5[vout];[0:a]atrim=start=0:end=5[aout]",
		VideoLabel:    "vout",
		AudioLabel:    "aout",
		VideoCodec:    "libx264",
		AudioCodec:    "aac",
		AudioBitrate:  "192k",
		CRF:           23,
		Preset:        "medium",
		OutputPath:    "/tmp/out.mp4",
	}

	args := BuildRenderArgs(spec)

	assert.Equal(t, []string{
		"-hide_banner", "-nostdin", "-y", "-loglevel", "error",
		"-i", "/assets/a.mp4",
		"-i", "/lib/bgm.mp3",
		"-filter_complex", spec.FilterComplex,
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:a", "aac",
		"-b:a", "192k",
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "medium",
		"-movflags", "+faststart",
		"/tmp/out.mp4",
	}, args)
}

func TestBuildRenderArgsWithoutAudio(t *testing.T) {
	spec := RenderSpec{
		Inputs:        []string{"/assets/a.mp4"},
		FilterComplex: "[0:v]trim=start=0:end=5[vout]",
		VideoLabel:    "vout",
		VideoCodec:    "libx264",
		CRF:           23,
		Preset:        "medium",
		OutputPath:    "/tmp/out.mp4",
	}

	args := BuildRenderArgs(spec)

	assert.Contains(t, args, "-an")
	assert.NotContains(t, args, "-c:a")
	assert.NotContains(t, args, "-b:a")
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"whole", "30/1", 30},
		{"ntsc", "30000/1001", 29.97002997002997},
		{"zero denominator", "0/0", 0},
		{"not a rational", "30", 0},
		{"garbage", "a/b", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseFrameRate(tt.input))
		})
	}
}

func probeFixture(t *testing.T, raw string) *ffprobeOutput {
	t.Helper()
	var out ffprobeOutput
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return &out
}

func TestParseProbeOutput(t *testing.T) {
	out := probeFixture(t, `{
		"format": {"duration": "60.5", "size": "1048576", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30/1"},
			{"codec_type": "audio", "codec_name": "aac"}
		]
	}`)

	meta, err := parseProbeOutput(out, "/assets/a.mp4")
	require.NoError(t, err)

	assert.Equal(t, 60.5, meta.Duration)
	assert.Equal(t, int64(1048576), meta.Size)
	assert.Equal(t, "h264", meta.VideoCodec)
	assert.Equal(t, 1920, meta.Width)
	assert.Equal(t, 1080, meta.Height)
	assert.Equal(t, 30.0, meta.FrameRate)
	assert.True(t, meta.HasAudio)
}

func TestParseProbeOutputFallsBackToStreamDuration(t *testing.T) {
	out := probeFixture(t, `{
		"format": {"format_name": "matroska,webm"},
		"streams": [
			{"codec_type": "video", "codec_name": "vp9", "width": 1280, "height": 720, "avg_frame_rate": "24/1", "duration": "12.0"}
		]
	}`)

	meta, err := parseProbeOutput(out, "/assets/a.webm")
	require.NoError(t, err)
	assert.Equal(t, 12.0, meta.Duration)
	assert.False(t, meta.HasAudio)
}

func TestParseProbeOutputFirstVideoStreamWins(t *testing.T) {
	out := probeFixture(t, `{
		"format": {"duration": "30"},
		"streams": [
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30/1"},
			{"codec_type": "video", "codec_name": "mjpeg", "width": 320, "height": 180, "avg_frame_rate": "0/0"}
		]
	}`)

	meta, err := parseProbeOutput(out, "/assets/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, "h264", meta.VideoCodec)
	assert.Equal(t, 1920, meta.Width)
}

func TestParseProbeOutputRejectsAudioOnly(t *testing.T) {
	out := probeFixture(t, `{
		"format": {"duration": "30"},
		"streams": [{"codec_type": "audio", "codec_name": "mp3"}]
	}`)

	_, err := parseProbeOutput(out, "/assets/a.mp3")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoVideoStream)
}
