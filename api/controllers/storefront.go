package controllers

import (
	"net/http"
	"time"

	"github.com/angelmondragon/pharmacare-storefront/api/responses"
	"github.com/angelmondragon/pharmacare-storefront/pkg/config"
)

const storefrontTagline = "Your trusted online pharmacy providing quality medications and healthcare products with care and professionalism."

// FooterLink is one entry of a footer column. An empty Href renders as a placeholder.
type FooterLink struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// StorefrontInfo is the shared footer every page renders.
type StorefrontInfo struct {
	AppName         string       `json:"app_name"`
	CurrencySymbol  string       `json:"currency_symbol"`
	Tagline         string       `json:"tagline"`
	Year            int          `json:"year"`
	SupportPhone    string       `json:"support_phone"`
	SupportEmail    string       `json:"support_email"`
	QuickLinks      []FooterLink `json:"quick_links"`
	CustomerService []FooterLink `json:"customer_service"`
}

var quickLinks = []FooterLink{
	{Label: "Home", Href: "/index.html"},
	{Label: "Products", Href: "/pages/products.html"},
	{Label: "About Us", Href: "/pages/about.html"},
	{Label: "Our Team", Href: "/pages/directors.html"},
	{Label: "Contact Us", Href: "/pages/contact.html"},
}

var customerServiceLinks = []FooterLink{
	{Label: "Help & FAQ"},
	{Label: "Shipping Information"},
	{Label: "Returns & Refunds"},
	{Label: "Privacy Policy"},
	{Label: "Terms & Conditions"},
}

func NewStorefrontInfo(cfg config.StorefrontConfig, now time.Time) StorefrontInfo {
	return StorefrontInfo{
		AppName:         cfg.AppName,
		CurrencySymbol:  cfg.CurrencySymbol,
		Tagline:         storefrontTagline,
		Year:            now.Year(),
		SupportPhone:    cfg.SupportPhone,
		SupportEmail:    cfg.SupportEmail,
		QuickLinks:      quickLinks,
		CustomerService: customerServiceLinks,
	}
}

// Storefront serves the footer model. now is injectable for tests.
func Storefront(cfg *config.Config, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, NewStorefrontInfo(cfg.Storefront, now()))
	}
}
