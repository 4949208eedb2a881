// Package site serves the public pages and the contact form.
package site

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/Het-thummar/hospital-management/internal/platform/notification"
	"github.com/Het-thummar/hospital-management/pkg/apperr"
	"github.com/Het-thummar/hospital-management/pkg/notice"
)

//go:embed content/*.md
var content embed.FS

// Raw HTML in the markdown is escaped since WithUnsafe is not set.
var md = goldmark.New(goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()))

// Notifier delivers the contact message.
type Notifier interface {
	Send(ctx context.Context, templateID, recipient string, data map[string]string) error
}

// Page is a rendered markdown page.
type Page struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

type Handler struct {
	pages        map[string]*Page
	notifier     Notifier
	contactEmail string
	logger       zerolog.Logger
}

// NewHandler renders the embedded pages up front so a broken page fails at
// startup.
func NewHandler(notifier Notifier, contactEmail string, logger zerolog.Logger) (*Handler, error) {
	pages := make(map[string]*Page)
	for _, slug := range []string{"home", "aboutus"} {
		p, err := renderPage(slug)
		if err != nil {
			return nil, err
		}
		pages[slug] = p
	}
	return &Handler{
		pages:        pages,
		notifier:     notifier,
		contactEmail: contactEmail,
		logger:       logger.With().Str("component", "site").Logger(),
	}, nil
}

func renderPage(slug string) (*Page, error) {
	src, err := content.ReadFile("content/" + slug + ".md")
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", slug, err)
	}
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render page %s: %w", slug, err)
	}
	return &Page{Slug: slug, Title: title(src), HTML: buf.String()}, nil
}

// title is the first level-one heading.
func title(src []byte) string {
	for _, line := range strings.Split(string(src), "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.page("home"))
	e.GET("/aboutus", h.page("aboutus"))
	e.GET("/contactus", h.ContactPage)
	e.POST("/contactus", h.Contact)
}

// page serves JSON by default and the bare HTML fragment when the client
// asks for text/html.
func (h *Handler) page(slug string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p := h.pages[slug]
		if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML) {
			return c.HTML(http.StatusOK, p.HTML)
		}
		return c.JSON(http.StatusOK, notice.With(p, nil))
	}
}

type contactForm struct {
	Name    string `form:"name" json:"name" validate:"required,max=30"`
	Email   string `form:"email" json:"email" validate:"required,email"`
	Message string `form:"message" json:"message" validate:"required,max=500"`
}

func (h *Handler) ContactPage(c echo.Context) error {
	return c.JSON(http.StatusOK, notice.With(map[string]interface{}{
		"fields": []string{"name", "email", "message"},
	}, nil))
}

func (h *Handler) Contact(c echo.Context) error {
	var f contactForm
	if err := c.Bind(&f); err != nil {
		return apperr.Validation("invalid form submission")
	}
	if err := c.Validate(&f); err != nil {
		return err
	}

	err := h.notifier.Send(c.Request().Context(), notification.TemplateContactMessage, h.contactEmail, map[string]string{
		"name":    f.Name,
		"email":   f.Email,
		"message": f.Message,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("contact message not delivered")
		return apperr.Internal("contact message not delivered", err)
	}
	return c.JSON(http.StatusOK, notice.Redirect("/", notice.Success("thank you, your message has been sent")))
}
