package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"pathembed/internal/domain"
)

const defaultMaxBytes = 256 << 20

// Fetcher retrieves archives and text files from http(s) URLs or local paths.
// Everything is buffered in memory; sources are expected to be tens of MB.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

func NewFetcher(timeout time.Duration, maxBytes int64, logger *slog.Logger) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// FetchMember downloads a zip archive and returns the decoded text of the one
// member selected by match.
func (f *Fetcher) FetchMember(ctx context.Context, source string, match MemberPredicate) (string, error) {
	data, err := f.Fetch(ctx, source)
	if err != nil {
		return "", err
	}

	name, text, err := ExtractMember(data, match)
	if err != nil {
		return "", err
	}

	f.logger.Debug("extracted archive member", "source", source, "member", name, "bytes", len(text))
	return text, nil
}

// FetchText returns the body of a plain text source.
func (f *Fetcher) FetchText(ctx context.Context, source string) (string, error) {
	data, err := f.Fetch(ctx, source)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", &domain.ArchiveError{Reason: fmt.Sprintf("%s is not valid UTF-8", source)}
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

// Fetch returns the raw bytes of source. Only http and https are fetched over
// the network; anything else is read as a local file.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if !isRemote(source) {
		return f.readFile(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, &domain.TransportError{URL: source, Err: err}
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{URL: source, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, &domain.TransportError{URL: source, StatusCode: resp.StatusCode, Body: string(preview)}
	}

	data, err := f.readCapped(source, resp.Body)
	if err != nil {
		return nil, err
	}

	f.logger.Info("fetched source", "url", source, "bytes", len(data), "duration", time.Since(start))
	return data, nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &domain.TransportError{URL: path, Err: err}
	}
	defer file.Close()
	return f.readCapped(path, file)
}

// readCapped reads r up to maxBytes; anything longer is a TransportError.
func (f *Fetcher) readCapped(source string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, &domain.TransportError{URL: source, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &domain.TransportError{URL: source, Err: fmt.Errorf("body exceeds %d bytes", f.maxBytes)}
	}
	return data, nil
}

// ExtractMember finds exactly one member of the zip archive in data that
// satisfies match and returns its name and UTF-8 text.
func ExtractMember(data []byte, match MemberPredicate) (string, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", "", &domain.ArchiveError{Reason: fmt.Sprintf("not a zip archive: %v", err)}
	}

	var (
		all     []string
		matched []*zip.File
	)
	for _, file := range zr.File {
		if skipMember(file.Name) {
			continue
		}
		all = append(all, file.Name)
		if match(file.Name) {
			matched = append(matched, file)
		}
	}

	switch len(matched) {
	case 0:
		return "", "", &domain.ArchiveError{Reason: "no member matches", Members: all}
	case 1:
	default:
		names := make([]string, len(matched))
		for i, m := range matched {
			names[i] = m.Name
		}
		return "", "", &domain.ArchiveError{Reason: "more than one member matches", Members: names}
	}

	member := matched[0]
	rc, err := member.Open()
	if err != nil {
		return "", "", &domain.ArchiveError{Reason: fmt.Sprintf("failed to open %s: %v", member.Name, err)}
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return "", "", &domain.ArchiveError{Reason: fmt.Sprintf("failed to decompress %s: %v", member.Name, err)}
	}
	if !utf8.Valid(content) {
		return "", "", &domain.ArchiveError{Reason: fmt.Sprintf("%s is not valid UTF-8", member.Name)}
	}

	return member.Name, strings.TrimPrefix(string(content), "\ufeff"), nil
}

// Members lists the file names in a zip archive.
func Members(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &domain.ArchiveError{Reason: fmt.Sprintf("not a zip archive: %v", err)}
	}
	names := make([]string, 0, len(zr.File))
	for _, file := range zr.File {
		if skipMember(file.Name) {
			continue
		}
		names = append(names, file.Name)
	}
	return names, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
