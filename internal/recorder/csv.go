package recorder

import (
	"fmt"
	"os"

	"github.com/your-org/mot/internal/config"
	"github.com/your-org/mot/pkg/dto"
)

// StatsRecorder appends one CSV row per emitted object. With extra
// statistics enabled, each row also carries the number of unique track IDs
// seen so far in the run.
type StatsRecorder struct {
	out         *os.File
	wroteHeader bool
	extraStats  bool
	seenIDs     map[int]struct{}
}

// New opens (and truncates) the CSV file from the recorder config.
func New(cfg config.RecorderConfig) (*StatsRecorder, error) {
	if cfg.StatsCSVPath == "" {
		return nil, fmt.Errorf("recorder: empty stats path")
	}
	f, err := os.Create(cfg.StatsCSVPath)
	if err != nil {
		return nil, fmt.Errorf("open stats file: %w", err)
	}
	return &StatsRecorder{
		out:        f,
		extraStats: cfg.EnableExtraStatistics,
		seenIDs:    make(map[int]struct{}),
	}, nil
}

// Consume writes every object of one labeled frame.
func (r *StatsRecorder) Consume(frame *dto.LabeledFrame) error {
	if r.out == nil {
		return nil
	}

	// Update the unique-ID set before writing so the column reflects the
	// total including this frame.
	for _, obj := range frame.Objects {
		r.seenIDs[obj.ID] = struct{}{}
	}
	if len(frame.Objects) == 0 {
		return nil
	}

	if !r.wroteHeader {
		header := "frame,id,x,y,w,h,class_id,score"
		if r.extraStats {
			header += ",unique_ids_seen"
		}
		if _, err := fmt.Fprintln(r.out, header); err != nil {
			return fmt.Errorf("write stats header: %w", err)
		}
		r.wroteHeader = true
	}

	for _, obj := range frame.Objects {
		_, err := fmt.Fprintf(r.out, "%d,%d,%d,%d,%d,%d,%d,%g",
			frame.FrameIndex, obj.ID, obj.X, obj.Y, obj.W, obj.H, obj.ClassID, obj.Score)
		if err != nil {
			return fmt.Errorf("write stats row: %w", err)
		}
		if r.extraStats {
			if _, err := fmt.Fprintf(r.out, ",%d", len(r.seenIDs)); err != nil {
				return fmt.Errorf("write stats row: %w", err)
			}
		}
		if _, err := fmt.Fprintln(r.out); err != nil {
			return fmt.Errorf("write stats row: %w", err)
		}
	}
	return nil
}

// UniqueIDs returns how many distinct track IDs have been recorded.
func (r *StatsRecorder) UniqueIDs() int { return len(r.seenIDs) }

// Close flushes and closes the CSV file.
func (r *StatsRecorder) Close() error {
	if r.out == nil {
		return nil
	}
	err := r.out.Close()
	r.out = nil
	return err
}
