package models

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// "required" accepts whitespace-only strings; a title of "   " is as
	// useless to the exploration process as an empty one.
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
}

// ValidateStruct runs the shared validator over v's `validate` tags
func ValidateStruct(v interface{}) error {
	return validate.Struct(v)
}

// ArticleData identifies the article an exploration starts from. It is fixed
// for the life of a view.
type ArticleData struct {
	Title   string `json:"title" validate:"notblank"`
	URL     string `json:"url,omitempty" validate:"omitempty,url"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
	Image   string `json:"image,omitempty"`
}

// Validate checks that the article can be sent in a start_search request
func (a ArticleData) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("invalid article: %w", err)
	}
	return nil
}

// ParseArticle decodes the JSON article form used by tree links
// (`{"title": ..., "url": ...}`).
func ParseArticle(raw string) (ArticleData, error) {
	var a ArticleData
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return ArticleData{}, fmt.Errorf("failed to parse article data: %w", err)
	}
	a.Title = strings.TrimSpace(a.Title)
	return a, a.Validate()
}
