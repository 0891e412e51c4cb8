package extract

import (
	"fmt"
	"sort"
	"strings"
)

var examples = []struct {
	text    string
	offQty  int
	offType string
	reqQty  int
	reqType string
}{
	{"Har två NSA på Lunds som jag gärna byter till två siste april på ÖG!!", 2, "NSA", 2, "ÖG"},
	{"Har en yran, byter mot en Sunwing", 1, "MÖ", 1, "HK"},
	{"Byter tre skvalborg mot sunwing", 3, "SSK", 1, "HK"},
	{"Hejhopp Byter en 1 maj mot en NSA", 1, "GBG", 1, "NSA"},
}

// buildPrompt renders the instruction sent to the model for one post.
func buildPrompt(text string, catalogue []string, aliases map[string]string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Analyze the following text, which is a request to exchange items:\n%q\n\n", text)
	b.WriteString("Identify the quantity and type of the item being offered, and the quantity and type of the item being requested.\n")
	b.WriteString("If several types are requested, select only ONE of them.\n\n")

	if len(aliases) > 0 {
		names := make([]string, 0, len(aliases))
		for name := range aliases {
			names = append(names, name)
		}
		sort.Strings(names)

		b.WriteString("Interpret these nicknames as follows; they are not exact and may appear in variants:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "- %q means %q\n", name, aliases[name])
		}
		b.WriteString("\n")
	}

	if len(catalogue) > 0 {
		fmt.Fprintf(&b, "Items can only be ONE of %d types: %s.\n\n", len(catalogue), strings.Join(catalogue, ", "))
	}

	b.WriteString("For example:\n")
	for _, ex := range examples {
		fmt.Fprintf(&b, "Text: %q\nOffered:\nQuantity: %d\nType: %s\nRequested:\nQuantity: %d\nType: %s\n\n",
			ex.text, ex.offQty, ex.offType, ex.reqQty, ex.reqType)
	}

	b.WriteString("Always answer using this exact structure and always use the short version of the type.\n")
	return b.String()
}
