package converter

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/jittakal/tabular2mcap/internal/errors"
	"github.com/jittakal/tabular2mcap/internal/mapping"
	"github.com/jittakal/tabular2mcap/pkg/message"
)

// containerExtensions are video containers that would need decoding.
var containerExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true,
}

// convertFrames writes the frame files of one directory as CompressedImage or
// CompressedVideo messages on a single topic.
func (c *Converter) convertFrames(ctx context.Context, r *run, group frameGroup, m mapping.OtherMapping) error {
	for _, rel := range group.files {
		if ext := strings.ToLower(path.Ext(rel)); containerExtensions[ext] {
			return fmt.Errorf("%w: %s: decoding %s container video is not supported; extract frames first",
				apperrors.ErrUnsupportedMapping, rel, ext)
		}
	}

	s, err := c.namedSchema(r, m.SchemaName(c.cfg.WriterFormat))
	if err != nil {
		return err
	}

	dir := group.dir
	if dir == "." {
		dir = ""
	}
	topic := c.topicName(dir, m.TopicSuffix)
	c.logger.Debug("Converting frames",
		zap.String("type", m.Type),
		zap.String("dir", group.dir),
		zap.String("topic", topic),
		zap.Int("frames", len(group.files)))

	n, err := r.conv.WriteMessages(topic, s, c.frames(ctx, r.inputDir, group.files, m))
	if err != nil {
		return conversionError(group.dir, topic, err)
	}
	r.summary.AddMessages(topic, n)
	return nil
}

// frames reads each file as one frame. Frame i is stamped i/fps when fps is
// set, else with the file modification time.
func (c *Converter) frames(ctx context.Context, inputDir string, files []string, m mapping.OtherMapping) iter.Seq2[message.ConvertedRow, error] {
	return func(yield func(message.ConvertedRow, error) bool) {
		for i, rel := range files {
			if err := ctx.Err(); err != nil {
				yield(message.ConvertedRow{}, err)
				return
			}

			name := filepath.Join(inputDir, filepath.FromSlash(rel))
			data, err := os.ReadFile(name)
			if err != nil {
				yield(message.ConvertedRow{}, &apperrors.ConversionError{File: rel, Row: i, Err: err})
				return
			}
			data, err = encodeFrame(rel, data, m)
			if err != nil {
				yield(message.ConvertedRow{}, err)
				return
			}

			var stamp message.Stamp
			if m.FPS > 0 {
				stamp = message.StampFromSeconds(float64(i) / m.FPS)
			} else {
				info, err := os.Stat(name)
				if err != nil {
					yield(message.ConvertedRow{}, &apperrors.ConversionError{File: rel, Row: i, Err: err})
					return
				}
				stamp = message.StampFromTime(info.ModTime())
			}

			row := message.ConvertedRow{
				Data: map[string]any{
					"timestamp": stamp.Map(),
					"frame_id":  m.FrameID,
					"data":      data,
					"format":    m.Format,
				},
				LogTime:     stamp.Nanos(),
				PublishTime: stamp.Nanos(),
				Sequence:    uint32(i),
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}
