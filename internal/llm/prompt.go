package llm

import (
	"fmt"
	"strconv"
	"strings"
)

var languageNames = map[string]string{
	"eng": "English",
	"deu": "German",
	"fra": "French",
	"ita": "Italian",
	"spa": "Spanish",
	"lat": "Latin",
	"ell": "Modern Greek",
	"grc": "Ancient Greek",
	"nld": "Dutch",
	"por": "Portuguese",
}

const imageMarker = "=== IMAGE %d ==="

func buildPrompt(languages []string) string {
	names := make([]string, 0, len(languages))
	for _, code := range languages {
		if name, ok := languageNames[code]; ok {
			names = append(names, name)
		} else {
			names = append(names, code)
		}
	}
	langs := "the language of the page"
	if len(names) > 0 {
		langs = strings.Join(names, ", ")
	}

	return `You are transcribing scanned pages of scholarly books and articles.
The earlier OCR pass produced garbled text for these pages. Read each page image and transcribe it exactly.

Expected languages: ` + langs + `.

RULES:
- Transcribe the running text of the page verbatim, in reading order
- Keep foreign-language terms, diacritics and Greek script exactly as printed (e.g. Dasein, différance, λόγος)
- Keep footnotes at the end of the page, after a blank line, with their markers
- Keep page headers and page numbers only if they are printed on the page
- Join words hyphenated across line breaks; keep other line breaks as paragraph breaks
- Do NOT summarize, translate, correct or comment
- Output plain text only, no Markdown and no LaTeX

OUTPUT FORMAT:
Number the images by their position in this message, starting at 1, whatever page number is printed on them.
Before each image's text, output its marker on its own line, exactly as shown:
` + fmt.Sprintf(imageMarker, 1) + `
<text of the first image>
` + fmt.Sprintf(imageMarker, 2) + `
<text of the second image>

If an image has no text, output its marker followed by nothing.
`
}

// imageHeader tells the model how many markers to emit.
func imageHeader(n int) string {
	if n == 1 {
		return "\nOne image is attached. Use the marker " + fmt.Sprintf(imageMarker, 1) + ".\n"
	}
	return "\n" + strconv.Itoa(n) + " images are attached. Use the markers " +
		fmt.Sprintf(imageMarker, 1) + " to " + fmt.Sprintf(imageMarker, n) + ", in order.\n"
}
