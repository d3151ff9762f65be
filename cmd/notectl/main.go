// notectl exports generated notes locally: verbatim HTML, auto-cropped
// raster images, or page-fitted PDF. The only network call is fetching the
// note itself; all rasterization happens on this machine.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/noteforge/noteforge/internal/export"
	"github.com/noteforge/noteforge/internal/raster"
)

type noteResponse struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
	HTML      string `json:"html"`
	Warning   string `json:"warning"`
}

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "Base URL of the noteforge API")
		noteID    = flag.String("note", "", "Note id to export (required)")
		format    = flag.String("format", "html", "Export format: html | png | webp | pdf")
		outPath   = flag.String("out", "", "Output file path (default: <note-id>.<format>)")
		width     = flag.Int("width", 800, "Natural content width in pixels before clamping")
		paperName = flag.String("paper", "a4", "PDF paper size: a4 | letter")
		token     = flag.String("token", "", "Optional bearer token for notes owned by an account")
	)
	flag.Parse()

	if strings.TrimSpace(*noteID) == "" {
		exitWithUsage("-note is required")
	}

	paper := raster.PaperA4
	switch strings.ToLower(*paperName) {
	case "a4":
	case "letter":
		paper = raster.PaperLetter
	default:
		exitWithUsage("-paper must be a4 or letter")
	}

	note, err := fetchNote(*serverURL, *noteID, *token)
	if err != nil {
		fatalf("fetch note: %v", err)
	}
	if note.Warning != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", note.Warning)
	}

	var data []byte
	switch export.Format(strings.ToLower(*format)) {
	case export.FormatHTML:
		data = []byte(export.StripFences(note.HTML))
	case export.FormatPNG:
		img := export.Render(note.HTML, *width)
		data, err = export.EncodePNG(img)
	case export.FormatWebP:
		img := export.Render(note.HTML, *width)
		data, err = export.EncodeWebP(img)
	case export.FormatPDF:
		img := export.Render(note.HTML, *width)
		data, err = export.EncodePDF(img, note.PageCount, paper)
	default:
		exitWithUsage("-format must be html, png, webp or pdf")
	}
	if err != nil {
		fatalf("export: %v", err)
	}

	path := *outPath
	if path == "" {
		path = note.ID + "." + strings.ToLower(*format)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fatalf("write %s: %v", path, err)
	}
	fmt.Printf("wrote %s (%d bytes)\n", path, len(data))
}

func fetchNote(serverURL, noteID, token string) (*noteResponse, error) {
	url := strings.TrimRight(serverURL, "/") + "/api/notes/" + noteID
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var note noteResponse
	if err := json.Unmarshal(body, &note); err != nil {
		return nil, fmt.Errorf("decode note: %w", err)
	}
	return &note, nil
}

func exitWithUsage(message string) {
	fmt.Fprintln(os.Stderr, "error:", message)
	flag.Usage()
	os.Exit(2)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
