// Package render implements the response renderer: a single structured
// Result value rendered as plain KEY: VALUE text or as JSON, per the
// request's json_resp flag. Construction never fails silently; any error
// building a Result collapses to a canned failure object.
package render

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/blockd/blockd/internal/cli/output"
)

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Result is the authoritative, renderer-agnostic description of one
// command's outcome.
type Result struct {
	Name     string
	Volume   string
	GBID     string
	Size     int64
	HA       int
	Password string
	Portals  []string
	IQN      string

	FailedOn               []string
	SuccessfulOn           []string
	RollbackOn             []string
	ReplacePortalSkippedOn []string

	// Blocks is populated by list; HostStatuses by info.
	Blocks       []string
	HostStatuses map[string]string

	Status  string // SUCCESS, FAIL or SKIPPED
	ErrCode int
	ErrMsg  string
}

// FallbackErrCode is used when a Result could not be constructed at all.
const FallbackErrCode = 255

// Fallback returns the canned error object the renderer emits when the
// caller could not construct a proper Result.
func Fallback(err error) *Result {
	msg := "internal error rendering result"
	if err != nil {
		msg = err.Error()
	}
	return &Result{Status: "FAIL", ErrCode: FallbackErrCode, ErrMsg: msg}
}

// Plain renders r as line-oriented KEY: VALUE text, closing with
// RESULT: SUCCESS|FAIL|SKIPPED.
func Plain(w io.Writer, r *Result) error {
	if r == nil {
		r = Fallback(nil)
	}
	var b strings.Builder
	writeKV(&b, "NAME", r.Name)
	writeKV(&b, "VOLUME", r.Volume)
	if r.GBID != "" {
		writeKV(&b, "GBID", r.GBID)
	}
	if r.Size > 0 {
		writeKV(&b, "SIZE", strconv.FormatInt(r.Size, 10))
	}
	if r.HA > 0 {
		writeKV(&b, "HA", strconv.Itoa(r.HA))
	}
	if r.Password != "" {
		writeKV(&b, "PASSWORD", r.Password)
	}
	for i, p := range r.Portals {
		label := "PORTAL"
		if len(r.Portals) > 1 {
			label = fmt.Sprintf("PORTAL%d", i+1)
		}
		writeKV(&b, label, p)
	}
	if r.IQN != "" {
		writeKV(&b, "IQN", r.IQN)
	}
	writeList(&b, "BLOCKS", r.Blocks)
	for _, addr := range sortedKeys(r.HostStatuses) {
		writeKV(&b, addr, r.HostStatuses[addr])
	}
	writeList(&b, "FAILED ON", r.FailedOn)
	writeList(&b, "SUCCESSFUL ON", r.SuccessfulOn)
	writeList(&b, "ROLLBACK ON", r.RollbackOn)
	writeList(&b, "REPLACE PORTAL SKIPPED ON", r.ReplacePortalSkippedOn)

	if r.Status == "FAIL" {
		writeKV(&b, "errCode", strconv.Itoa(r.ErrCode))
		writeKV(&b, "errMsg", r.ErrMsg)
	}
	writeKV(&b, "RESULT", r.Status)

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON renders r as a structured JSON object with the same field set.
func JSON(w io.Writer, r *Result) error {
	if r == nil {
		r = Fallback(nil)
	}
	return output.PrintJSON(w, jsonView(r))
}

type jsonResult struct {
	Name                   string   `json:"NAME,omitempty"`
	Volume                 string   `json:"VOLUME,omitempty"`
	GBID                   string   `json:"GBID,omitempty"`
	Size                   int64    `json:"SIZE,omitempty"`
	HA                     int      `json:"HA,omitempty"`
	Password               string   `json:"PASSWORD,omitempty"`
	Portals                []string `json:"PORTAL(S),omitempty"`
	IQN                    string   `json:"IQN,omitempty"`
	FailedOn               []string          `json:"FAILED ON,omitempty"`
	SuccessfulOn           []string          `json:"SUCCESSFUL ON,omitempty"`
	RollbackOn             []string          `json:"ROLLBACK ON,omitempty"`
	ReplacePortalSkippedOn []string          `json:"REPLACE PORTAL SKIPPED ON,omitempty"`
	Blocks                 []string          `json:"BLOCKS,omitempty"`
	HostStatuses           map[string]string `json:"HOSTS,omitempty"`
	Result                 string            `json:"RESULT"`
	ErrCode                int               `json:"errCode,omitempty"`
	ErrMsg                 string            `json:"errMsg,omitempty"`
}

func jsonView(r *Result) jsonResult {
	return jsonResult{
		Name: r.Name, Volume: r.Volume, GBID: r.GBID, Size: r.Size, HA: r.HA,
		Password: r.Password, Portals: r.Portals, IQN: r.IQN,
		FailedOn: r.FailedOn, SuccessfulOn: r.SuccessfulOn, RollbackOn: r.RollbackOn,
		ReplacePortalSkippedOn: r.ReplacePortalSkippedOn,
		Blocks:                 r.Blocks, HostStatuses: r.HostStatuses,
		Result: r.Status, ErrCode: r.ErrCode, ErrMsg: r.ErrMsg,
	}
}

func writeKV(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s: %s\n", key, value)
}

func writeList(b *strings.Builder, key string, values []string) {
	if len(values) == 0 {
		return
	}
	writeKV(b, key, strings.Join(values, ","))
}
