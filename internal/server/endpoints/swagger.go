package endpoints

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/swaggo/swag"

	"github.com/jackzampolin/folio/internal/api"

	// Registers the OpenAPI document with swag.
	_ "github.com/jackzampolin/folio/docs"
)

// SwaggerEndpoint serves the OpenAPI spec registered with swag.
type SwaggerEndpoint struct{}

func (e *SwaggerEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger.json", e.handler
}

func (e *SwaggerEndpoint) RequiresInit() bool { return false }

func (e *SwaggerEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "swagger.json not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write([]byte(doc))
}

func (e *SwaggerEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "swagger",
		Short: "Fetch OpenAPI spec from server",
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec map[string]any
			if err := newClient(cmd, getServerURL).Get(cmd.Context(), "/swagger.json", &spec); err != nil {
				return err
			}
			if outputFile != "" {
				data, err := json.MarshalIndent(spec, "", "  ")
				if err != nil {
					return err
				}
				return os.WriteFile(outputFile, data, 0o644)
			}
			return api.Output(spec)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write the OpenAPI document to a file")
	return cmd
}
