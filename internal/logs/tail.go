package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions selects which lines Tail returns.
type TailOptions struct {
	// Offset is the byte position to resume from; negative means "last Limit lines".
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
	// Match keeps only lines containing this substring (case-insensitive).
	Match string
}

// TailResult holds the lines read and the offset to pass on the next call.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads lines from the log at path. A missing file yields no lines and
// offset zero so followers can start before the daemon writes anything.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	match := newMatcher(opts.Match)
	var result TailResult
	if opts.Offset < 0 {
		result, err = readLast(path, opts.Limit, match)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// The file was truncated or rotated in place; start over.
			offset = 0
		}
		result, err = readFrom(path, offset, match)
	}
	if err != nil || len(result.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return result, err
	}
	return waitForLines(ctx, path, result.Offset, opts.Wait, match)
}

type matcher func(string) bool

func newMatcher(pattern string) matcher {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return func(string) bool { return true }
	}
	return func(line string) bool {
		return strings.Contains(strings.ToLower(line), pattern)
	}
}

// scanLines calls fn for every newline-terminated line in r and returns the
// bytes consumed. A trailing line without a newline is still being written;
// it is neither reported nor counted.
func scanLines(r io.Reader, fn func(string)) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var consumed int64
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return consumed, nil
			}
			return consumed, fmt.Errorf("read log file: %w", err)
		}
		consumed += int64(len(line))
		fn(strings.TrimRight(line, "\r\n"))
	}
}

func readLast(path string, limit int, match matcher) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := scanLines(file, func(string) {})
		if err != nil {
			return TailResult{}, err
		}
		return TailResult{Offset: end}, nil
	}

	ring := make([]string, 0, limit)
	start := 0
	end, err := scanLines(file, func(line string) {
		if !match(line) {
			return
		}
		if len(ring) < limit {
			ring = append(ring, line)
			return
		}
		ring[start] = line
		start = (start + 1) % limit
	})
	if err != nil {
		return TailResult{}, err
	}

	lines := make([]string, 0, len(ring))
	lines = append(lines, ring[start:]...)
	lines = append(lines, ring[:start]...)
	return TailResult{Lines: lines, Offset: end}, nil
}

func readFrom(path string, offset int64, match matcher) (TailResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	consumed, err := scanLines(file, func(line string) {
		if match(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return TailResult{Offset: offset}, err
	}
	return TailResult{Lines: lines, Offset: offset + consumed}, nil
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, match matcher) (TailResult, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-timer.C:
			return result, nil
		case <-ticker.C:
		}

		next, err := readFrom(path, result.Offset, match)
		if err != nil {
			return result, err
		}
		if len(next.Lines) > 0 {
			return next, nil
		}
		result.Offset = next.Offset
	}
}
