// Package email implements the email composer: it renders a validated
// RecommendationSet into a subject/body pair using embedded Go templates.
// Rendering is a pure function of the set plus the composer configuration,
// so composing the same set twice yields byte-identical output.
//
// All AI-provided text (rationales, product names echoed back by the
// provider) flows through html/template in the HTML body, so it is escaped
// for the output format and cannot inject markup.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"recomail/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// ComposerConfig holds the static template inputs.
type ComposerConfig struct {
	StoreName string
	StoreURL  string
	FromName  string
}

// templateData is the struct passed into the templates.
type templateData struct {
	CustomerName string
	StoreName    string
	StoreURL     string
	FromName     string
	Items        []types.RecommendedItem
}

// Composer renders recommendation emails.
type Composer struct {
	htmlTmpl *template.Template
	textTmpl *texttemplate.Template
	cfg      ComposerConfig
}

// NewComposer parses the embedded templates and returns a Composer.
func NewComposer(cfg ComposerConfig) (*Composer, error) {
	htmlTmpl, err := template.ParseFS(templateFS, "templates/recommendation.html")
	if err != nil {
		return nil, fmt.Errorf("composer: parse html template: %w", err)
	}
	textTmpl, err := texttemplate.ParseFS(templateFS, "templates/recommendation.txt")
	if err != nil {
		return nil, fmt.Errorf("composer: parse text template: %w", err)
	}

	return &Composer{htmlTmpl: htmlTmpl, textTmpl: textTmpl, cfg: cfg}, nil
}

// Compose renders a ComposedEmail for the given set. Sets that are not
// successful, or that carry no items, are skipped: Compose returns
// (nil, nil) and no email is generated for that customer.
//
// A rendering error is a CompositionError: it implies malformed input and
// the orchestrator treats it as a per-customer skip.
func (c *Composer) Compose(set types.RecommendationSet) (*types.ComposedEmail, error) {
	if set.Status != types.GenerationSuccess || len(set.Items) == 0 {
		return nil, nil
	}

	data := templateData{
		CustomerName: displayName(set.CustomerName),
		StoreName:    c.cfg.StoreName,
		StoreURL:     c.cfg.StoreURL,
		FromName:     c.cfg.FromName,
		Items:        set.Items,
	}

	var htmlBuf bytes.Buffer
	if err := c.htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, types.NewAppError(types.ErrCodeCompositionFailed,
			"failed to render html body", err)
	}

	var textBuf bytes.Buffer
	if err := c.textTmpl.Execute(&textBuf, data); err != nil {
		return nil, types.NewAppError(types.ErrCodeCompositionFailed,
			"failed to render text body", err)
	}

	return &types.ComposedEmail{
		Recipient:   set.Email,
		Subject:     fmt.Sprintf("Products we think you'll love, %s!", data.CustomerName),
		BodyHTML:    htmlBuf.String(),
		BodyText:    textBuf.String(),
		ReferenceID: set.ID,
	}, nil
}

// displayName falls back to a generic salutation when the store has no
// first name on file.
func displayName(name string) string {
	if name == "" {
		return "Valued Customer"
	}
	return name
}
