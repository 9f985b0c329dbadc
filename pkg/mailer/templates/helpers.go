package templates

import "time"

type Option func(*EmailData)

func WithTime(t time.Time) Option {
	return func(d *EmailData) {
		utc := t.UTC()
		d.TimeAt = utc
		d.Time = utc.Format("02 January 2006, 15:04")
	}
}

func WithActive(active bool) Option { return func(d *EmailData) { d.Active = active } }

// Branding is the per-deployment company info stamped on every mail.
type Branding struct {
	AppName     string
	CompanyName string
	SupportURL  string
}

func NewEmailData(b Branding, name, email string, opts ...Option) EmailData {
	d := EmailData{
		Name:        name,
		Email:       email,
		AppName:     b.AppName,
		CompanyName: b.CompanyName,
		SupportURL:  b.SupportURL,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}
