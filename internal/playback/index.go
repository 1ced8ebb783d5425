package playback

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/muurk/lemuria/internal/logging"
)

// DefaultPattern matches Asphodel capture files
const DefaultPattern = "*.apd"

// Entry maps a capture file to the timestamp of its header record
type Entry struct {
	Timestamp float64
	Path      string
}

// Index is the capture set in ascending timestamp order
type Index []Entry

// NewIndex builds an index from a timestamp to path mapping
func NewIndex(files map[float64]string) Index {
	idx := make(Index, 0, len(files))
	for ts, path := range files {
		idx = append(idx, Entry{Timestamp: ts, Path: path})
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i].Timestamp < idx[j].Timestamp })
	return idx
}

// LoadIndex reads the header timestamp of every file in dir matching
// pattern. Files whose header cannot be read are skipped with a warning.
func LoadIndex(dir, pattern string) (Index, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid capture pattern %q: %w", pattern, err)
	}

	files := make(map[float64]string, len(paths))
	for _, path := range paths {
		c, err := OpenCapture(path)
		if err != nil {
			logging.Warn("Skipping unreadable capture", zap.String("path", path), zap.Error(err))
			continue
		}
		ts := c.Header().Timestamp
		c.Close()

		if prev, ok := files[ts]; ok {
			logging.Warn("Duplicate capture start time, keeping first",
				zap.String("kept", prev),
				zap.String("skipped", path))
			continue
		}
		files[ts] = path
	}

	idx := NewIndex(files)
	logging.Debug("Loaded capture index",
		zap.String("dir", dir),
		zap.Int("files", len(idx)))
	return idx, nil
}

// seek returns the position of the latest file starting at or before t,
// or 0 when every file starts after t
func (idx Index) seek(t float64) int {
	i := sort.Search(len(idx), func(i int) bool { return idx[i].Timestamp > t })
	if i == 0 {
		return 0
	}
	return i - 1
}

// FileSummary describes one capture file
type FileSummary struct {
	Path    string
	Start   float64
	First   float64
	Last    float64
	Packets int
	Bytes   int
	Err     error // Non-nil when the file ended early
}

// Summarize reads every file of the index and counts its records
func Summarize(idx Index) []FileSummary {
	out := make([]FileSummary, 0, len(idx))
	for _, entry := range idx {
		out = append(out, summarizeFile(entry))
	}
	return out
}

func summarizeFile(entry Entry) FileSummary {
	s := FileSummary{Path: entry.Path, Start: entry.Timestamp}

	c, err := OpenCapture(entry.Path)
	if err != nil {
		s.Err = err
		return s
	}
	defer c.Close()

	for {
		rec, err := c.Next()
		if errors.Is(err, io.EOF) {
			return s
		}
		if err != nil {
			s.Err = err
			return s
		}
		if s.Packets == 0 {
			s.First = rec.Timestamp
		}
		s.Last = rec.Timestamp
		s.Packets++
		s.Bytes += len(rec.Payload)
	}
}
