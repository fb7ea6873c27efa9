package types

import "fmt"

// Template is a reusable task description.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Validate checks that the template is well-formed.
func (t Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if t.Description == "" {
		return fmt.Errorf("template %s has no description", t.Name)
	}
	return nil
}
