package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ffprobeOutput represents the JSON structure returned by ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Probe extracts metadata from a video file using ffprobe
func (f *FFmpeg) Probe(ctx context.Context, filePath string) (*AssetMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-show_format",
		"-show_streams",
		"-of", "json",
		filePath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, NewProcessingError("probe", filePath, err, stderr.String())
	}

	var output ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		return nil, NewProcessingError("probe_parsing", filePath, err, "")
	}

	return parseProbeOutput(&output, filePath)
}

// parseProbeOutput converts ffprobe output to AssetMetadata
func parseProbeOutput(output *ffprobeOutput, filePath string) (*AssetMetadata, error) {
	metadata := &AssetMetadata{}

	if output.Format.Duration != "" {
		if duration, err := strconv.ParseFloat(output.Format.Duration, 64); err == nil {
			metadata.Duration = duration
		}
	}

	if output.Format.Size != "" {
		if size, err := strconv.ParseInt(output.Format.Size, 10, 64); err == nil {
			metadata.Size = size
		}
	}

	metadata.Format = output.Format.FormatName

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			if metadata.VideoCodec != "" {
				continue // first video stream wins
			}
			metadata.VideoCodec = stream.CodecName
			metadata.Width = stream.Width
			metadata.Height = stream.Height
			metadata.FrameRate = parseFrameRate(stream.AvgFrameRate)

			if metadata.Duration == 0 && stream.Duration != "" {
				if duration, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					metadata.Duration = duration
				}
			}
		case "audio":
			metadata.HasAudio = true
		}
	}

	if metadata.VideoCodec == "" {
		return nil, NewProcessingError("probe_validation", filePath, ErrNoVideoStream, "")
	}
	if metadata.Duration == 0 {
		return nil, NewProcessingError("probe_validation", filePath,
			fmt.Errorf("could not determine video duration"), "")
	}

	return metadata, nil
}

// parseFrameRate converts ffprobe's "num/den" rational into frames per second.
func parseFrameRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
