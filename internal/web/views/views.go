// Package views holds the HTML fragments served by the admin and public
// servers. Components are plain templ.ComponentFunc values so no generation
// step is needed.
package views

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// ErrorAlert renders a dismissible error box with an optional suggested action.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		sw := &stickyWriter{w: w}
		sw.write(`<div class="alert alert-error" role="alert">`)
		sw.write(`<p class="alert-message">` + templ.EscapeString(message) + `</p>`)
		if action != "" {
			sw.write(`<p class="alert-action">` + templ.EscapeString(action) + `</p>`)
		}
		if code != "" {
			sw.write(`<p class="alert-code">Reference: ` + templ.EscapeString(code) + `</p>`)
		}
		sw.write(`</div>`)
		return sw.err
	})
}

// LoginForm is the state of the admin sign-in form.
type LoginForm struct {
	Username string
	Error    string
}

// LoginPage renders the admin sign-in page.
func LoginPage(form LoginForm) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		sw := &stickyWriter{w: w}
		sw.write(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		sw.write(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		sw.write(`<title>Sign in | Sanandem Admin</title></head><body>`)
		sw.write(`<main class="login"><h1>Sanandem Admin</h1>`)
		if form.Error != "" {
			if err := ErrorAlert(form.Error, "", "").Render(ctx, w); err != nil {
				return err
			}
		}
		sw.write(`<form method="post" action="/login">`)
		sw.write(`<label for="username">Username</label>`)
		sw.write(`<input id="username" name="username" type="text" autocomplete="username" required value="` +
			templ.EscapeString(form.Username) + `">`)
		sw.write(`<label for="password">Password</label>`)
		sw.write(`<input id="password" name="password" type="password" autocomplete="current-password" required>`)
		sw.write(`<button type="submit">Sign in</button></form></main></body></html>`)
		return sw.err
	})
}

// stickyWriter keeps the first write error and skips later writes.
type stickyWriter struct {
	w   io.Writer
	err error
}

func (s *stickyWriter) write(str string) {
	if s.err != nil {
		return
	}
	_, s.err = io.WriteString(s.w, str)
}
