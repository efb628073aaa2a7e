package httpcontroller

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/logger"
	"github.com/oncoderma/oncoderma-go/internal/media"
	"github.com/oncoderma/oncoderma-go/internal/security"
)

// Embedded views and static assets.
//
//go:embed views
var ViewsFs embed.FS

//go:embed assets
var AssetsFs embed.FS

// layoutTemplate wraps every full page.
const layoutTemplate = "index"

// PageData represents data for rendering a page.
type PageData struct {
	C         echo.Context      // The Echo context for the current request
	Page      string            // Content template rendered inside the layout
	Title     string            // The title of the page
	User      *datastore.User   // Logged-in user, nil on public pages
	Flashes   []security.Flash  // One-time messages
	CSRFToken string            // Token for forms and AJAX headers, empty when CSRF is off
	Data      any               // Page-specific values
	Errors    map[string]string // Field errors keyed by form field name
}

// templateRecorder receives render timings.
type templateRecorder interface {
	RecordTemplateRender(template string, duration float64)
	RecordTemplateRenderError(template string)
}

// TemplateRenderer is a custom HTML template renderer for Echo framework.
type TemplateRenderer struct {
	templates *template.Template
	metrics   templateRecorder
}

// Render renders a template with the given data.
func (t *TemplateRenderer) Render(w io.Writer, name string, data any, c echo.Context) error {
	start := time.Now()

	// Render into a buffer so a failing template does not send a partial page
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, name, data); err != nil {
		GetLogger().Error("template execution failed",
			logger.String("template", name),
			logger.Error(err))
		if t.metrics != nil {
			t.metrics.RecordTemplateRenderError(name)
		}
		return err
	}

	if t.metrics != nil {
		t.metrics.RecordTemplateRender(name, time.Since(start).Seconds())
	}

	_, err := buf.WriteTo(w)
	return err
}

// setupTemplateRenderer parses the embedded views and installs the renderer.
func (s *Server) setupTemplateRenderer() error {
	tmpl, err := template.New("").Funcs(s.templateFunctions()).ParseFS(ViewsFs, "views/*.html", "views/*/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	renderer := &TemplateRenderer{templates: tmpl}
	if s.Metrics != nil {
		renderer.metrics = s.Metrics.HTTP
	}
	s.Echo.Renderer = renderer
	return nil
}

// templateFunctions returns the functions available to templates.
func (s *Server) templateFunctions() template.FuncMap {
	return template.FuncMap{
		"RenderContent": s.RenderContent,
		"mediaURL":      media.URL,
		"confidence":    formatConfidence,
		"riskClass":     riskClass,
		"formatTime":    formatTime,
		"rows":          func(scans []datastore.Prediction) historyPageData { return historyPageData{Scans: scans} },
	}
}

// RenderContent renders the page template named in data inside the layout.
func (s *Server) RenderContent(data any) (template.HTML, error) {
	d, ok := data.(PageData)
	if !ok {
		return "", fmt.Errorf("invalid data type: %T", data)
	}

	var buf bytes.Buffer
	if err := s.Echo.Renderer.Render(&buf, d.Page, d, d.C); err != nil {
		return "", err
	}
	// #nosec G203 -- output of html/template, already escaped
	return template.HTML(buf.String()), nil
}

// formatConfidence prints a percentage with two decimals.
func formatConfidence(v float64) string {
	return fmt.Sprintf("%.2f%%", math.Round(v*100)/100)
}

// riskClass maps a risk tier to a CSS class.
func riskClass(risk string) string {
	switch {
	case strings.HasPrefix(risk, "Low Risk"):
		return "risk-low"
	case strings.HasPrefix(risk, "Moderate Risk"):
		return "risk-moderate"
	case strings.Contains(risk, "High Risk"):
		return "risk-high"
	default:
		return "risk-unknown"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}
