// Package docs provides the OpenAPI documentation served at /swagger.json.
//
// Folio API
//
//	@title			Folio API
//	@version		1.0
//	@description	Chapter annotation and publishing API: books, entity dictionaries, annotated chapters and ePub export.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/folio
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/folio/serve.go -o . --outputTypes go --parseDependency --parseInternal
