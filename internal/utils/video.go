package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// StreamInfo is what ffprobe reports about the first video stream.
type StreamInfo struct {
	Width     int
	Height    int
	FrameRate float64
	// Frames is the container's frame count, 0 when unknown.
	Frames int
	// Rotation is the display rotation in degrees from side data or the legacy
	// rotate tag. The decoder runs with -noautorotate, so frames keep Width x Height.
	Rotation int
}

type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Tags         struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []struct {
			Rotation float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// ProbeVideo runs ffprobe against a file or device. format is passed as -f when set (e.g. v4l2).
func ProbeVideo(ctx context.Context, input, format string) (StreamInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	args := []string{"-v", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, "-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames:stream_tags=rotate:stream_side_data=rotation",
		"-of", "json", input)

	cmd := NewSafeCommand(exec.CommandContext(ctx, "ffprobe", args...))
	out, err := cmd.Output()
	if err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe %s: %w: %s", input, err, strings.TrimSpace(cmd.Stderr.String()))
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (StreamInfo, error) {
	var res ffprobeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return StreamInfo{}, fmt.Errorf("no video stream found")
	}

	s := res.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return StreamInfo{}, fmt.Errorf("invalid video dimensions %dx%d", s.Width, s.Height)
	}
	info := StreamInfo{Width: s.Width, Height: s.Height}

	// avg_frame_rate is closer to reality for VFR files; r_frame_rate is the fallback
	if fps, err := ParseRate(s.AvgFrameRate); err == nil && fps > 0 {
		info.FrameRate = fps
	} else if fps, err := ParseRate(s.RFrameRate); err == nil && fps > 0 {
		info.FrameRate = fps
	}
	if n, err := strconv.Atoi(s.NbFrames); err == nil && n > 0 {
		info.Frames = n
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			info.Rotation = int(sd.Rotation)
		}
	}
	if info.Rotation == 0 {
		if deg, err := strconv.Atoi(s.Tags.Rotate); err == nil {
			info.Rotation = deg
		}
	}
	return info, nil
}

// ParseRate parses ffprobe rates like "30000/1001" or "25".
func ParseRate(s string) (float64, error) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("invalid rate %q", s)
	}
	return n / d, nil
}

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			// Truncated trailing frame: discard it
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewFFmpegRawDecoder decodes a file or device into raw RGBA frames on stdout.
// Autorotation is disabled so every frame has the probed width and height.
func NewFFmpegRawDecoder(ctx context.Context, input, format string) *exec.Cmd {
	args := []string{"-hide_banner", "-loglevel", "error", "-noautorotate"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args, "-i", input, "-f", "rawvideo", "-pix_fmt", "rgba", "-")
	return exec.CommandContext(ctx, "ffmpeg", args...)
}

// NewFFmpegEncoder reads raw RGBA frames on stdin and encodes them to an H.264 file.
func NewFFmpegEncoder(ctx context.Context, output string, fps float64, width, height int) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		// yuv420p needs even dimensions; pad odd sizes by one pixel
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		output)
}
