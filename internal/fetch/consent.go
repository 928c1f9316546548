package fetch

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var confirmParamRe = regexp.MustCompile(`[?&]confirm=([A-Za-z0-9_-]+)`)

// findConfirmToken scans consent-page HTML for a confirm token: a hidden
// form input named "confirm", or a confirm query parameter inside any href.
// A raw regex pass backs up the parse for pages too broken to tokenize.
func findConfirmToken(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err == nil {
		if token := walkForConfirm(doc); token != "" {
			return token
		}
	}
	if m := confirmParamRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}

func walkForConfirm(n *html.Node) string {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "input":
			if attr(n, "name") == "confirm" {
				if v := attr(n, "value"); v != "" {
					return v
				}
			}
		case "a":
			if href := attr(n, "href"); href != "" {
				if m := confirmParamRe.FindStringSubmatch(href); m != nil {
					return m[1]
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if token := walkForConfirm(c); token != "" {
			return token
		}
	}
	return ""
}

// findDownloadLinks collects hrefs and form actions that look like direct
// download endpoints.
func findDownloadLinks(body []byte) []string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var links []string
	seen := make(map[string]bool)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			var candidate string
			switch n.Data {
			case "a":
				candidate = attr(n, "href")
			case "form":
				candidate = attr(n, "action")
			}
			if candidate != "" && isDownloadLink(candidate) && !seen[candidate] {
				seen[candidate] = true
				links = append(links, candidate)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// isDownloadLink filters hrefs for ones plausibly serving the file.
func isDownloadLink(href string) bool {
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "#") {
		return false
	}
	if !strings.Contains(lower, "download") && !strings.Contains(lower, "confirm=") {
		return false
	}
	_, err := url.Parse(href)
	return err == nil
}

// attr returns the value of the named attribute, or "".
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
