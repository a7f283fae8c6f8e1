package server

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/Daskott/haven/server/models"
	"github.com/pkg/errors"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"welcome", "signup", "login", "home", "contacts", "history"}

type pageData struct {
	Title string
	User  *models.User
}

// parsePages builds one template set per page, each sharing the layout.
func parsePages() (map[string]*template.Template, error) {
	pages := map[string]*template.Template{}
	for _, name := range pageNames {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse %v page", name)
		}
		pages[name] = tmpl
	}

	return pages, nil
}

func (app *App) renderPage(name, title string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")

		err := app.pages[name].ExecuteTemplate(rw, "layout", pageData{Title: title, User: sessionUser(r)})
		if err != nil {
			logg.Errorf("unable to render %v page: %v", name, err)
		}
	}
}

func (app *App) index(rw http.ResponseWriter, r *http.Request) {
	if sessionUser(r) != nil {
		http.Redirect(rw, r, "/home", http.StatusFound)
		return
	}

	app.renderPage("welcome", "Welcome")(rw, r)
}
