package converter

import (
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/mapping"
)

// DefaultMediaType is used for attachments with no known media type.
const DefaultMediaType = "application/octet-stream"

// addAttachment embeds one file as an attachment named by its relative path.
func (c *Converter) addAttachment(r *run, rel string, m mapping.Attachment) error {
	name := filepath.Join(r.inputDir, filepath.FromSlash(rel))
	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("read attachment %s: %w", rel, err)
	}
	info, err := os.Stat(name)
	if err != nil {
		return fmt.Errorf("stat attachment %s: %w", rel, err)
	}

	mediaType := mediaTypeOf(rel, m.MimeType)
	logTime := uint64(info.ModTime().UnixNano())
	createTime := createTime(name, info)

	if err := r.conv.Writer().AddAttachment(createTime, logTime, rel, mediaType, data); err != nil {
		return err
	}
	c.metrics.IncAttachmentsWritten()
	c.logger.Debug("Wrote attachment",
		zap.String("file", rel),
		zap.String("media_type", mediaType),
		zap.Int("bytes", len(data)))
	return nil
}

// mediaTypeOf returns configured, else the type registered for the file
// extension, else DefaultMediaType.
func mediaTypeOf(rel, configured string) string {
	if configured != "" {
		return configured
	}
	if t := mime.TypeByExtension(path.Ext(rel)); t != "" {
		return t
	}
	return DefaultMediaType
}

// addMetadata writes one metadata record from a key/value text file.
func (c *Converter) addMetadata(r *run, rel string, m mapping.Metadata) error {
	data, err := os.ReadFile(filepath.Join(r.inputDir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("read metadata %s: %w", rel, err)
	}

	values := ParseMetadata(data, m.Separator)
	if err := r.conv.Writer().AddMetadata(rel, values); err != nil {
		return err
	}
	c.metrics.IncMetadataWritten()
	c.logger.Debug("Wrote metadata", zap.String("file", rel), zap.Int("keys", len(values)))
	return nil
}

// ParseMetadata splits every trimmed line on sep and maps the first field to
// the second. Lines with fewer than two fields are ignored; later keys win.
func ParseMetadata(data []byte, sep string) map[string]string {
	values := map[string]string{}
	for line := range strings.Lines(string(data)) {
		parts := strings.Split(strings.TrimSpace(line), sep)
		if len(parts) < 2 {
			continue
		}
		values[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return values
}
