package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/types"
)

// AnnotateRequest is the body for stateless annotation.
type AnnotateRequest struct {
	Text       string          `json:"text"`
	Title      string          `json:"title,omitempty"`
	Dictionary json.RawMessage `json:"dictionary,omitempty" swaggertype:"object"`
}

// AnnotateEndpoint handles POST /api/annotate.
type AnnotateEndpoint struct{}

func (e *AnnotateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/annotate", e.handler
}

func (e *AnnotateEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Annotate text
//	@Description	Segments text into paragraphs of dialogue, narrative and entity spans using the given dictionary. Nothing is stored.
//	@Tags			annotate
//	@Accept			json
//	@Produce		json
//	@Param			request	body		AnnotateRequest	true	"Text and dictionary"
//	@Success		200		{object}	types.ProcessedChapter
//	@Failure		400		{object}	ErrorResponse
//	@Router			/api/annotate [post]
func (e *AnnotateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req AnnotateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dict := types.Dictionary{}
	if len(req.Dictionary) > 0 && string(req.Dictionary) != "null" {
		parsed, err := annotate.ParseDictionary(req.Dictionary)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		dict = parsed
	}

	writeJSON(w, http.StatusOK, annotate.ProcessChapterContent(req.Text, req.Title, dict))
}

func (e *AnnotateEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, text, file, dictFile string
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate text on the server without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readText(text, file)
			if err != nil {
				return err
			}
			req := AnnotateRequest{Text: body, Title: title}
			if dictFile != "" {
				dict, err := annotate.ReadDictionaryFile(dictFile)
				if err != nil {
					return err
				}
				if req.Dictionary, err = json.Marshal(dict); err != nil {
					return err
				}
			}
			var pc types.ProcessedChapter
			if err := newClient(cmd, getServerURL).Post(cmd.Context(), "/api/annotate", req, &pc); err != nil {
				return err
			}
			return api.Output(pc)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Chapter title")
	cmd.Flags().StringVar(&text, "text", "", "Text to annotate")
	cmd.Flags().StringVar(&file, "file", "", "Read text from a file")
	cmd.Flags().StringVar(&dictFile, "dictionary", "", "YAML or JSON dictionary file")
	return cmd
}
