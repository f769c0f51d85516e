package search

import "encoding/xml"

// feed represents the Atom XML response from the arXiv API.
type feed struct {
	XMLName      xml.Name `xml:"feed"`
	TotalResults int      `xml:"totalResults"`
	StartIndex   int      `xml:"startIndex"`
	ItemsPerPage int      `xml:"itemsPerPage"`
	Entries      []entry  `xml:"entry"`
}

// entry represents a single arXiv paper in the Atom feed.
type entry struct {
	ID         string      `xml:"id"` // "http://arxiv.org/abs/2301.12345v1"
	Title      string      `xml:"title"`
	Summary    string      `xml:"summary"`   // abstract
	Published  string      `xml:"published"` // "2023-01-15T18:30:00Z"
	Updated    string      `xml:"updated"`
	Authors    []author    `xml:"author"`
	Categories []category  `xml:"category"`
	Links      []atomLink  `xml:"link"`
}

// author represents a paper author in the arXiv Atom feed.
type author struct {
	Name string `xml:"name"`
}

// category represents an arXiv subject category.
type category struct {
	Term string `xml:"term,attr"`
}

// atomLink represents a link element in the Atom feed.
type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}
