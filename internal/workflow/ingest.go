package workflow

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kalambet/qadesk/internal/service"
)

const (
	DefaultURLMessage  = "Website content successfully scraped!"
	DefaultTextMessage = "Text content successfully added!"
)

var validate = validator.New()

// ValidateURL accepts a non-empty absolute http or https URL.
func ValidateURL(raw string) error {
	if err := validate.Var(raw, "required,url"); err != nil {
		return fmt.Errorf("%q is not a valid URL", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url has no host")
	}
	return nil
}

// ValidateText accepts content that is not blank.
func ValidateText(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content is empty")
	}
	return nil
}

// URLIngestion submits a website address for scraping.
var URLIngestion = Definition[string]{
	Name:           "url-ingestion",
	Endpoint:       service.EndpointScrapeWebsite,
	Field:          "url",
	Validate:       ValidateURL,
	DefaultMessage: DefaultURLMessage,
}

// TextIngestion submits free text for storage.
var TextIngestion = Definition[string]{
	Name:                "text-ingestion",
	Endpoint:            service.EndpointAddText,
	Field:               "content",
	Validate:            ValidateText,
	DefaultMessage:      DefaultTextMessage,
	ClearDraftOnSuccess: true,
}

// NewURLIngestion creates a controller for the URL ingestion workflow.
func NewURLIngestion(sender Sender, opts ...ControllerOption[string]) *Controller[string] {
	return New(URLIngestion, sender, opts...)
}

// NewTextIngestion creates a controller for the text ingestion workflow.
func NewTextIngestion(sender Sender, opts ...ControllerOption[string]) *Controller[string] {
	return New(TextIngestion, sender, opts...)
}
