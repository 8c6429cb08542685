// Package workspace exposes read-only views of the agent's workspace: its
// config file, a memory snippet and the tail of its log file.
package workspace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"unicode/utf8"

	"github.com/spf13/afero"
	"github.com/thinmintdev/moltbot-dashboard-sub002/log"
)

// DefaultSnippetBytes is used when Options.SnippetBytes is zero
const DefaultSnippetBytes = 2000

// Options locates the files a Reader serves
type Options struct {
	WorkspaceDir string
	ConfigFile   string
	MemoryFile   string
	LogFile      string
	SnippetBytes int
}

// Reader serves workspace views from a filesystem
type Reader struct {
	fs   afero.Fs
	opts Options
}

// NewReader creates a reader over fsys
func NewReader(fsys afero.Fs, opts Options) *Reader {
	if opts.SnippetBytes <= 0 {
		opts.SnippetBytes = DefaultSnippetBytes
	}
	return &Reader{fs: fsys, opts: opts}
}

// Memory is the head of the agent's memory file
type Memory struct {
	Path      string `json:"path"`
	Snippet   string `json:"snippet"`
	Truncated bool   `json:"truncated"`
	Size      int64  `json:"size"`
}

// Context is the payload of the context view
type Context struct {
	Workspace  string          `json:"workspace"`
	ConfigPath string          `json:"configPath"`
	Config     json.RawMessage `json:"config"`
	Memory     *Memory         `json:"memory"`
}

// Context never fails: unreadable pieces are reported as null
func (r *Reader) Context() Context {
	out := Context{
		Workspace:  r.opts.WorkspaceDir,
		ConfigPath: r.opts.ConfigFile,
		Config:     json.RawMessage("null"),
	}

	if cfg, err := r.readConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("file", r.opts.ConfigFile).Msg("failed to read workspace config")
		}
	} else {
		out.Config = cfg
	}

	if mem, err := r.readMemory(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("file", r.opts.MemoryFile).Msg("failed to read memory file")
		}
	} else {
		out.Memory = mem
	}

	return out
}

func (r *Reader) readConfig() (json.RawMessage, error) {
	data, err := afero.ReadFile(r.fs, r.opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s is not valid JSON", r.opts.ConfigFile)
	}
	return json.RawMessage(data), nil
}

func (r *Reader) readMemory() (*Memory, error) {
	f, err := r.fs.Open(r.opts.MemoryFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, r.opts.SnippetBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	snippet := buf[:n]

	// Do not cut a multi-byte character in half
	for len(snippet) > 0 && !utf8.Valid(snippet) {
		snippet = snippet[:len(snippet)-1]
	}

	return &Memory{
		Path:      r.opts.MemoryFile,
		Snippet:   string(snippet),
		Truncated: info.Size() > int64(n),
		Size:      info.Size(),
	}, nil
}

// LogTail is the payload of the logs view
type LogTail struct {
	File      string   `json:"file"`
	Exists    bool     `json:"exists"`
	Requested int      `json:"requested"`
	Count     int      `json:"count"`
	Lines     []string `json:"lines"`
}

// Tail returns the last n lines of the log file. A missing file is not an
// error; any other read failure is.
func (r *Reader) Tail(n int) (LogTail, error) {
	out := LogTail{File: r.opts.LogFile, Requested: n, Lines: []string{}}
	if n <= 0 {
		return out, nil
	}

	f, err := r.fs.Open(r.opts.LogFile)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	defer f.Close()
	out.Exists = true

	ring := make([]string, 0, min(n, 1024))
	start := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[start] = scanner.Text()
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return out, err
	}

	out.Lines = make([]string, 0, len(ring))
	out.Lines = append(out.Lines, ring[start:]...)
	out.Lines = append(out.Lines, ring[:start]...)
	out.Count = len(out.Lines)
	return out, nil
}
