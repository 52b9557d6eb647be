// Package sanitize strips unsafe markup from message HTML bodies before
// they are stored.
package sanitize

import "github.com/microcosm-cc/bluemonday"

var policy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowStyling()
	p.AllowImages()
	p.AllowTables()
	return p
}()

// HTML returns body with scripts, event handlers and other active content
// removed. Safe formatting markup is preserved.
func HTML(body string) string {
	return policy.Sanitize(body)
}

// HTMLPtr sanitizes an optional body in place and returns it.
func HTMLPtr(body *string) *string {
	if body == nil {
		return nil
	}
	clean := HTML(*body)
	return &clean
}
