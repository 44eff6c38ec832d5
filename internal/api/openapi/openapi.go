// Пакет openapi — встроенный OpenAPI-документ Container Manager.
// Документ проверяется при старте и отдаётся на /openapi.json.
package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

// Document — проверенный OpenAPI-документ и его JSON-представление.
type Document struct {
	spec *openapi3.T
	json []byte
}

// Load разбирает и валидирует встроенный документ.
func Load(ctx context.Context) (*Document, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	spec, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI: %w", err)
	}
	if err := spec.Validate(ctx); err != nil {
		return nil, fmt.Errorf("валидация OpenAPI: %w", err)
	}

	data, err := spec.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI: %w", err)
	}

	return &Document{spec: spec, json: data}, nil
}

// Spec возвращает разобранный документ.
func (d *Document) Spec() *openapi3.T {
	return d.spec
}

// HasOperation проверяет, описан ли в документе метод method для пути path
// (шаблон вида /docker/containers/{container_name}/start).
func (d *Document) HasOperation(method, path string) bool {
	item := d.spec.Paths.Find(path)
	if item == nil {
		return false
	}
	return item.GetOperation(method) != nil
}

// ServeHTTP отдаёт документ в JSON.
func (d *Document) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(d.json)
}
