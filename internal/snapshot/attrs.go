package snapshot

import (
	"strings"

	"golang.org/x/net/html"
)

// RootAttributes returns the attributes of the first element in an
// outerHTML fragment. Malformed markup yields whatever the tokenizer
// recovered before the error.
func RootAttributes(outerHTML string) map[string]string {
	if strings.TrimSpace(outerHTML) == "" {
		return nil
	}

	z := html.NewTokenizer(strings.NewReader(outerHTML))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return nil
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if len(tok.Attr) == 0 {
				return nil
			}
			attrs := make(map[string]string, len(tok.Attr))
			for _, a := range tok.Attr {
				key := a.Key
				if a.Namespace != "" {
					key = a.Namespace + ":" + a.Key
				}
				attrs[key] = a.Val
			}
			return attrs
		}
	}
}
