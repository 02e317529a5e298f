package connector

import (
	"net/url"
	"strconv"
	"strings"
)

// Request is one protocol call.
type Request struct {
	Cmd     string
	Target  string // directory identifier for "open"
	Current string // directory identifier for "tmb"
	Init    bool
	Tree    bool
}

// ParseRequest reads a request from query or form values. Unknown keys are
// ignored.
func ParseRequest(v url.Values) *Request {
	return &Request{
		Cmd:     strings.TrimSpace(v.Get("cmd")),
		Target:  strings.TrimSpace(v.Get("target")),
		Current: strings.TrimSpace(v.Get("current")),
		Init:    parseFlag(v.Get("init")),
		Tree:    parseFlag(v.Get("tree")),
	}
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "on":
		return true
	}
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

// Response is a command result ready for JSON encoding.
type Response interface {
	envelope() *Envelope
}

// Envelope carries the protocol fields shared by every response.
type Envelope struct {
	API   string     `json:"api,omitempty"`
	Debug *DebugInfo `json:"debug,omitempty"`
}

func (e *Envelope) envelope() *Envelope { return e }

// DebugInfo is attached when Options.Debug is set.
type DebugInfo struct {
	Time       float64 `json:"time"`
	MimeDetect string  `json:"mimeDetect"`
	ImgLib     string  `json:"imgLib"`
}

// EntryInfo describes one directory entry in a listing.
type EntryInfo struct {
	Name   string `json:"name"`
	Hash   string `json:"hash"`
	Mime   string `json:"mime"`
	Date   string `json:"date"`
	Size   int64  `json:"size"`
	Read   bool   `json:"read"`
	Write  bool   `json:"write"`
	Rm     bool   `json:"rm"`
	URL    string `json:"url,omitempty"`
	Dim    string `json:"dim,omitempty"`
	Resize bool   `json:"resize,omitempty"`
	Tmb    string `json:"tmb,omitempty"`
	Parent string `json:"parent,omitempty"`
	Link   string `json:"link,omitempty"`
	LinkTo string `json:"linkTo,omitempty"`
}

// CwdInfo describes the working directory.
type CwdInfo struct {
	Hash  string `json:"hash"`
	Name  string `json:"name"`
	Mime  string `json:"mime"`
	Rel   string `json:"rel"`
	Size  int64  `json:"size"`
	Date  string `json:"date"`
	Read  bool   `json:"read"`
	Write bool   `json:"write"`
	Rm    bool   `json:"rm"`
}

// TreeNode is one directory in the navigation tree.
type TreeNode struct {
	Hash  string      `json:"hash"`
	Name  string      `json:"name"`
	Read  bool        `json:"read"`
	Write bool        `json:"write"`
	Dirs  []*TreeNode `json:"dirs"`
}

// OpenResponse is the result of "open".
type OpenResponse struct {
	Envelope
	Cwd  *CwdInfo     `json:"cwd"`
	Cdc  []*EntryInfo `json:"cdc"`
	Tree *TreeNode    `json:"tree,omitempty"`
}

// TmbResponse is the result of "tmb".
type TmbResponse struct {
	Envelope
	Current string            `json:"current"`
	Images  map[string]string `json:"images"`
	Tmb     bool              `json:"tmb"`
}
