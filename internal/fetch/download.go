package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const (
	// maxRedirects bounds HTTP redirect chains per request.
	maxRedirects = 10
	// maxAlternates bounds how many candidate URLs are tried per file
	// before the download fails.
	maxAlternates = 3
	// htmlSniffLimit is how much of a small file is inspected for HTML
	// markers during verification.
	htmlSniffLimit = 1024
	// consentBodyLimit bounds how much interstitial HTML is read while
	// looking for a consent token.
	consentBodyLimit = 2 << 20
)

// download fetches rawURL into destPath, negotiating consent interstitials.
// Candidate URLs form a small queue: the original first, then URLs derived
// from consent pages, capped at maxAlternates attempts.
func (f *Fetcher) download(ctx context.Context, rawURL, destPath string) error {
	queue := []string{rawURL}
	var lastErr error

	for attempt := 0; attempt < maxAlternates && len(queue) > 0; attempt++ {
		candidate := queue[0]
		queue = queue[1:]

		next, err := f.tryDownload(ctx, candidate, destPath)
		if err != nil {
			lastErr = err
			continue
		}
		if len(next) > 0 {
			// Consent page: derived URLs go to the front of the queue.
			queue = append(next, queue...)
			lastErr = fmt.Errorf("consent page at %s, no usable download link", candidate)
			continue
		}
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no download candidates for %s", rawURL)
	}
	return lastErr
}

// tryDownload performs one GET. A nil error with an empty next slice means
// the file was written and verified; a non-empty next slice means the
// response was a consent page yielding follow-up URLs.
func (f *Fetcher) tryDownload(ctx context.Context, rawURL, destPath string) (next []string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: status %d", rawURL, resp.StatusCode)
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		body, err := io.ReadAll(io.LimitReader(resp.Body, consentBodyLimit))
		if err != nil {
			return nil, fmt.Errorf("reading consent page %s: %w", rawURL, err)
		}
		next = f.consentCandidates(resp, rawURL, body)
		if len(next) == 0 {
			return nil, fmt.Errorf("downloading %s: got HTML instead of media", rawURL)
		}
		return next, nil
	}

	if err := writeFile(destPath, resp.Body); err != nil {
		return nil, fmt.Errorf("writing %s: %w", destPath, err)
	}
	if err := verifyFile(destPath, rawURL); err != nil {
		return nil, err
	}
	return nil, nil
}

// consentCandidates derives follow-up download URLs from a consent response:
// a confirm token found in the HTML or a download_warning cookie is attached
// to the current URL as a confirm query parameter, and direct download links
// scraped from the page are appended.
func (f *Fetcher) consentCandidates(resp *http.Response, rawURL string, body []byte) []string {
	var out []string

	token := findConfirmToken(body)
	if token == "" {
		for _, c := range resp.Cookies() {
			if strings.HasPrefix(c.Name, "download_warning") {
				token = c.Value
				break
			}
		}
	}
	if token != "" {
		if u, err := url.Parse(rawURL); err == nil {
			q := u.Query()
			q.Set("confirm", token)
			u.RawQuery = q.Encode()
			out = append(out, u.String())
		}
	}

	base := resp.Request.URL
	for _, link := range findDownloadLinks(body) {
		ref, err := url.Parse(link)
		if err != nil {
			continue
		}
		out = append(out, base.ResolveReference(ref).String())
	}
	return out
}

// writeFile streams body to destPath.
func writeFile(destPath string, body io.Reader) error {
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, body); err != nil {
		os.Remove(destPath)
		return err
	}
	return out.Close()
}

// verifyFile rejects empty downloads and small files that are HTML
// masquerading as media.
func verifyFile(destPath, rawURL string) error {
	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("statting download: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("downloaded file from %s is empty", rawURL)
	}
	if info.Size() < htmlSniffLimit {
		head, err := os.ReadFile(destPath)
		if err != nil {
			return fmt.Errorf("reading download head: %w", err)
		}
		if looksLikeHTML(head) {
			return fmt.Errorf("downloaded file from %s is an HTML page, not media", rawURL)
		}
	}
	return nil
}

// isHTML reports whether a Content-Type header names an HTML document.
func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// looksLikeHTML sniffs common HTML markers at the start of a file.
func looksLikeHTML(head []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(head)))
	return strings.HasPrefix(s, "<!doctype html") ||
		strings.HasPrefix(s, "<html") ||
		strings.Contains(s, "<head") ||
		strings.Contains(s, "<body")
}
