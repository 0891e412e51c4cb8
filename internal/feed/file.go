package feed

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"appraiser/internal/model"
)

// FileFeed reads one post per non-empty line of a text file.
type FileFeed struct {
	path   string
	logger *slog.Logger
}

// NewFileFeed creates a new FileFeed.
func NewFileFeed(path string, logger *slog.Logger) *FileFeed {
	return &FileFeed{path: path, logger: logger}
}

func (f *FileFeed) Name() string {
	return "file"
}

// Stream sends every non-empty line and returns at end of file.
func (f *FileFeed) Stream(ctx context.Context, out chan<- model.Post) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open feed file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sent := 0
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		select {
		case out <- model.Post{Source: f.path, Text: text, ReceivedAt: time.Now().UTC()}:
			sent++
		case <-ctx.Done():
			f.logger.Info("FileFeed: context cancelled", "sent", sent)
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read feed file: %w", err)
	}

	f.logger.Info("FileFeed: reached end of file", "path", f.path, "sent", sent)
	return nil
}
