package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"kotoba/internal/domain/content"
	"kotoba/internal/domain/site"
	"kotoba/internal/htmltext"
)

type TemplateRenderer struct {
	tpl *template.Template
}

var requiredTemplates = []string{
	"home.tmpl",
	"post.tmpl",
	"search.tmpl",
	"hashtag.tmpl",
	"404.tmpl",
	"admin-login.tmpl",
	"admin.tmpl",
}

func NewTemplateRenderer(themeDir, themeName string) (*TemplateRenderer, error) {
	dir := filepath.Join(themeDir, themeName, "templates")
	if err := CheckThemeTemplates(dir); err != nil {
		return nil, err
	}
	tpl, err := template.New("").Funcs(templateFuncs()).ParseGlob(filepath.Join(dir, "*.tmpl"))
	if err != nil {
		return nil, err
	}
	return &TemplateRenderer{tpl: tpl}, nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"date": func(t interface{}, layout string) string {
			switch v := t.(type) {
			case nil:
				return ""
			case string:
				return v
			case *time.Time:
				if v == nil || v.IsZero() {
					return ""
				}
				return v.Format(layout)
			case time.Time:
				if v.IsZero() {
					return ""
				}
				return v.Format(layout)
			default:
				return ""
			}
		},
		"nowYear": func() int {
			return time.Now().Year()
		},
		"postURL": func(v content.PostView) string {
			return site.PostPath(v)
		},
		"hashtagURL":  site.HashtagPath,
		"formatCount": htmltext.FormatCount,
		"truncate":    htmltext.TruncateDescription,
		"add":         func(a, b int) int { return a + b },
		"sub":         func(a, b int) int { return a - b },
	}
}

func (r *TemplateRenderer) RenderHome(ctx context.Context, page HomePage) ([]byte, error) {
	return r.exec("home.tmpl", page)
}

func (r *TemplateRenderer) RenderPost(ctx context.Context, page PostPage) ([]byte, error) {
	return r.exec("post.tmpl", page)
}

func (r *TemplateRenderer) RenderSearch(ctx context.Context, page SearchPage) ([]byte, error) {
	return r.exec("search.tmpl", page)
}

func (r *TemplateRenderer) RenderHashtag(ctx context.Context, page HashtagPage) ([]byte, error) {
	return r.exec("hashtag.tmpl", page)
}

func (r *TemplateRenderer) RenderNotFound(ctx context.Context, page NotFoundPage) ([]byte, error) {
	return r.exec("404.tmpl", page)
}

func (r *TemplateRenderer) RenderAdminLogin(ctx context.Context, page AdminLoginPage) ([]byte, error) {
	return r.exec("admin-login.tmpl", page)
}

func (r *TemplateRenderer) RenderAdminDashboard(ctx context.Context, page AdminDashboardPage) ([]byte, error) {
	return r.exec("admin.tmpl", page)
}

func (r *TemplateRenderer) exec(name string, data interface{}) ([]byte, error) {
	t := r.tpl.Lookup(name)
	if t == nil {
		return nil, fmt.Errorf("template %s not found", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func CheckThemeTemplates(dir string) error {
	for _, name := range requiredTemplates {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("missing template: %s", name)
		}
	}
	return nil
}
