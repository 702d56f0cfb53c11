package attachment

import "net/url"

// Option is one landmark image a teacher can attach.
type Option struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
}

// Catalog lists the selectable images in display order.
var Catalog = []Option{
	{Key: "angkor", Name: "Angkor Wat", Filename: "angkor-wat.jpg"},
	{Key: "eiffel", Name: "Eiffel Tower", Filename: "eiffel-tower.jpeg"},
	{Key: "himeji", Name: "Himeji Castle", Filename: "himeji-castle.jpeg"},
	{Key: "taj", Name: "Taj Mahal", Filename: "taj-mahal.jpeg"},
}

// SelectionFromForm returns the filenames of the options checked in form,
// in catalog order. A checked box posts the value "on".
func SelectionFromForm(form url.Values) []string {
	var selected []string
	for _, opt := range Catalog {
		if form.Get(opt.Key) == "on" {
			selected = append(selected, opt.Filename)
		}
	}

	return selected
}
