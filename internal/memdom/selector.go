package memdom

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

func compile(sel string) (cascadia.SelectorGroup, error) {
	g, err := cascadia.ParseGroup(sel)
	if err != nil {
		return nil, fmt.Errorf("memdom: selector %q: %w", sel, err)
	}
	return g, nil
}

func mustCompile(sel string) cascadia.SelectorGroup {
	g, err := compile(sel)
	if err != nil {
		panic(err)
	}
	return g
}

// queryAll returns the elements under scope matching m, in document order.
// Template contents are inert: a declarative shadow root is only searched
// when it is the scope itself.
func queryAll(scope *html.Node, m cascadia.Matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			if c.Data == "template" {
				continue
			}
			if m.Match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(scope)
	return out
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
