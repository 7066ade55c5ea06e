package extract

import (
	"mime"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
)

var xmlDeclEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*\bencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// DetectCharset names the encoding of body. Precedence: the charset
// parameter of contentType, an XML declaration, then a BOM or <meta>
// declaration found by the HTML prescan. Undeclared content is utf-8 when
// it decodes as such, windows-1252 otherwise.
func DetectCharset(body []byte, contentType string) string {
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if cs := strings.TrimSpace(params["charset"]); cs != "" {
				if _, name := charset.Lookup(cs); name != "" {
					return name
				}
			}
		}
	}
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	if m := xmlDeclEncoding.FindSubmatch(head); m != nil {
		if _, name := charset.Lookup(string(m[1])); name != "" {
			return name
		}
	}
	_, name, _ := charset.DetermineEncoding(body, "text/html")
	return name
}

// ToUTF8 converts body to UTF-8. Legacy labels follow the WHATWG mapping,
// so iso-8859-1 is decoded as windows-1252 and smart quotes survive.
// Undecodable input is returned unchanged.
func ToUTF8(body []byte, contentType string) []byte {
	name := DetectCharset(body, contentType)
	if name == "utf-8" {
		return body
	}
	enc, _ := charset.Lookup(name)
	if enc == nil {
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}
