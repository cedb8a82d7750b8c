package providers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SystemPromptBase is the default recognition prompt.
const SystemPromptBase = `Convert the following document page to markdown.
Return only the markdown with no explanation text. Do not include delimiters like ` + "```markdown or ```html." + `

RULES:
  - You must include all information on the page. Do not exclude headers, footers, or subtext.
  - Return tables in an HTML format.
  - Charts & infographics must be interpreted to a markdown format. Prefer table format when applicable.
  - Logos should be wrapped in brackets. Ex: <logo>Coca-Cola<logo>
  - Watermarks should be wrapped in brackets. Ex: <watermark>OFFICIAL COPY<watermark>
  - Page numbers should be wrapped in brackets. Ex: <page_number>14<page_number> or <page_number>9/22<page_number>
  - Prefer using ☐ and ☑ for check boxes.`

// ExtractionPromptBase is the default extraction prompt.
const ExtractionPromptBase = `Extract structured data from the provided document content.
Only use values that appear in the document. Use null for any field that is not present.`

// ConsistencyPrompt asks the model to keep formatting in line with the
// previous page.
func ConsistencyPrompt(priorPage string) string {
	return fmt.Sprintf("Markdown must maintain consistent formatting with the following page: \n\n \"\"\"%s\"\"\"", priorPage)
}

// buildMessages assembles the chat messages for a request.
func buildMessages(mode OperationMode, args *Args) ([]Message, error) {
	if args == nil {
		args = &Args{}
	}

	switch mode {
	case ModeRecognition:
		system := SystemPromptBase
		if args.Prompt != "" {
			system = args.Prompt
		}
		msgs := []Message{{Role: "system", Content: system}}
		if args.MaintainFormat && args.PriorPage != "" {
			msgs = append(msgs, Message{Role: "system", Content: ConsistencyPrompt(args.PriorPage)})
		}
		if len(args.Images) == 0 {
			return nil, fmt.Errorf("recognition requires at least one image")
		}
		return append(msgs, Message{Role: "user", Images: args.Images}), nil

	case ModeExtraction:
		system := ExtractionPromptBase
		if args.Prompt != "" {
			system = args.Prompt
		}
		if args.Input.Text == "" && len(args.Input.Images) == 0 {
			return nil, fmt.Errorf("extraction requires text or images")
		}
		return []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: args.Input.Text, Images: args.Input.Images},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
}

// schemaInstruction describes the expected output for backends without a
// native structured-output parameter.
func schemaInstruction(schema map[string]any) string {
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = []byte("{}")
	}
	return fmt.Sprintf(`Return ONLY valid JSON (no markdown, no commentary) that conforms to this schema:

%s`, raw)
}

// imageMIME sniffs the media type of an encoded image.
func imageMIME(img []byte) string {
	mime := http.DetectContentType(img)
	if !strings.HasPrefix(mime, "image/") {
		return "image/png"
	}
	return mime
}

func dataURL(img []byte) string {
	return "data:" + imageMIME(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}
