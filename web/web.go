// Package web contiene la pagina servita su "/".
package web

import (
	_ "embed"
	"html/template"
	"io"
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

// PersonaView è una persona selezionabile nella pagina
type PersonaView struct {
	ID              string
	Role            string
	Goal            string
	NeedsSearch     bool
	NeedsGuidelines bool
	Selected        bool
}

// Page sono i dati della pagina iniziale
type Page struct {
	Title       string
	DefaultPost string
	Personas    []PersonaView
}

// Render scrive la pagina su w
func Render(w io.Writer, p Page) error {
	return indexTmpl.Execute(w, p)
}
