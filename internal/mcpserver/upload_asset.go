package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

const maxAssetSize = 10 << 20 // 10 MB

// allowedAssetExts mirrors the HTTP upload endpoint's allowlist.
var allowedAssetExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".webp": true, ".svg": true, ".pdf": true,
}

// extByMIME maps media types to the extension uploads land with.
var extByMIME = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

type uploadResult struct {
	SavedPath     string `json:"savedPath"`
	MarkdownImage string `json:"markdownImage"`
}

func (s *Server) uploadAsset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var data []byte
	var sniffedExt string
	if strings.HasPrefix(rawURL, "data:") {
		data, sniffedExt, err = decodeDataURI(rawURL)
	} else {
		data, sniffedExt, err = fetchRemote(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAssetSize {
		return mcp.NewToolResultError(fmt.Sprintf("asset exceeds %d bytes", maxAssetSize)), nil
	}

	name := ""
	if v, nameErr := req.RequireString("filename"); nameErr == nil {
		name = v
	}
	if name == "" {
		name = assetName(rawURL, sniffedExt)
	}
	name = sanitizeName(name)

	ext := strings.ToLower(filepath.Ext(name))
	if !allowedAssetExts[ext] {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported extension %s (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", ext)), nil
	}
	if err := checkContent(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// Same landing layout as the HTTP upload endpoint: assets/YYYY/MM.
	now := time.Now().UTC()
	rel := path.Join(now.Format("2006"), now.Format("01"), name)
	abs := filepath.Join(s.assetsDir, filepath.FromSlash(rel))
	if _, statErr := os.Stat(abs); statErr == nil {
		name = strings.TrimSuffix(name, ext) + "-" + uuid.NewString()[:8] + ext
		rel = path.Join(now.Format("2006"), now.Format("01"), name)
		abs = filepath.Join(s.assetsDir, filepath.FromSlash(rel))
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create assets dir: %v", err)), nil
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save asset: %v", err)), nil
	}

	out, _ := json.Marshal(uploadResult{
		SavedPath:     "/assets/" + rel,
		MarkdownImage: fmt.Sprintf("![%s](/assets/%s)", name, rel),
	})
	return mcp.NewToolResultText(string(out)), nil
}

// decodeDataURI parses a data:<mediatype>;base64,<data> URI and returns the
// payload with the extension its media type implies.
func decodeDataURI(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URI")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}
	mediatype, _, err := mime.ParseMediaType(strings.TrimSuffix(meta, ";base64"))
	if err != nil {
		return nil, "", fmt.Errorf("data URI media type: %w", err)
	}
	ext, ok := extByMIME[mediatype]
	if !ok {
		return nil, "", fmt.Errorf("unsupported media type %s", mediatype)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, "", fmt.Errorf("decode base64: %w", err)
		}
	}
	return data, ext, nil
}

// fetchRemote downloads an asset over http(s), refusing URLs that resolve to
// the local machine or cloud metadata ranges, on redirects too.
func fetchRemote(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme %q (only http/https)", u.Scheme)
	}
	if err := guardHost(u.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			return guardHost(req.URL.Hostname())
		},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}
	if len(data) > maxAssetSize {
		return nil, "", fmt.Errorf("asset exceeds %d bytes", maxAssetSize)
	}

	ext := ""
	if mediatype, _, mtErr := mime.ParseMediaType(resp.Header.Get("Content-Type")); mtErr == nil {
		ext = extByMIME[mediatype]
	}
	return data, ext, nil
}

// guardHost rejects hosts that resolve into loopback, private, or link-local
// space (the latter covers the 169.254.169.254 metadata endpoint).
func guardHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host %s", host)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let the client surface DNS failures
		}
		ip = ips[0]
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return fmt.Errorf("blocked host %s resolves to %s", host, ip)
	}
	return nil
}

// assetName derives a filename: the URL basename when it carries an
// extension, otherwise a fresh UUID with the sniffed extension.
func assetName(rawURL, sniffedExt string) string {
	if !strings.HasPrefix(rawURL, "data:") {
		if u, err := url.Parse(rawURL); err == nil {
			base := path.Base(u.Path)
			if base != "." && base != "/" && strings.Contains(base, ".") {
				return base
			}
		}
	}
	if sniffedExt == "" {
		sniffedExt = ".bin"
	}
	return uuid.NewString() + sniffedExt
}

// sanitizeName strips path separators and unsafe characters.
func sanitizeName(name string) string {
	name = unsafeNameChars.ReplaceAllString(filepath.Base(name), "_")
	if name == "" || name == "." {
		name = uuid.NewString()
	}
	return name
}

// checkContent verifies the payload matches its claimed extension. SVG is
// text and slips past content sniffing, so it gets a tag check instead.
func checkContent(data []byte, ext string) error {
	if ext == ".svg" {
		head := data
		if len(head) > 1024 {
			head = head[:1024]
		}
		if !bytes.Contains(head, []byte("<svg")) {
			return fmt.Errorf("payload is not an SVG document")
		}
		return nil
	}

	mediatype, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	sniffed := extByMIME[mediatype]
	if sniffed == ext || (ext == ".jpeg" && sniffed == ".jpg") {
		return nil
	}
	return fmt.Errorf("payload (%s) does not match extension %s", mediatype, ext)
}
