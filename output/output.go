// Package output interprets what a worker writes to stdout.
//
// Workers speak newline-delimited JSON: zero or more status objects while
// running, then one final result line. Anything that is not JSON is log
// noise and is skipped.
package output

import (
	"errors"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/use-agent/jobscrape/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrEmptyOutput means the worker exited without writing to stdout.
	ErrEmptyOutput = errors.New("worker wrote nothing to stdout")

	// ErrNoResult means the last stdout line is not a result object or array.
	ErrNoResult = errors.New("last stdout line is not a result")
)

// Kind classifies one stdout line.
type Kind int

const (
	Noise Kind = iota
	Status
	Result
)

func (k Kind) String() string {
	switch k {
	case Status:
		return "status"
	case Result:
		return "result"
	default:
		return "noise"
	}
}

// Line is one classified stdout line.
type Line struct {
	Kind   Kind
	Text   string
	Status models.StatusMessage // set when Kind == Status
}

// Classify decides whether line is a status message, a result candidate or noise.
func Classify(line string) Line {
	text := strings.TrimSpace(line)
	l := Line{Kind: Noise, Text: text}
	if text == "" {
		return l
	}

	switch text[0] {
	case '[':
		if json.Valid([]byte(text)) {
			l.Kind = Result
		}
	case '{':
		var fields map[string]jsoniter.RawMessage
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			return l
		}
		if _, ok := fields["success"]; ok {
			l.Kind = Result
			return l
		}
		var msg models.StatusMessage
		if err := json.Unmarshal([]byte(text), &msg); err != nil || msg.Status == "" {
			return l
		}
		msg.Raw = append([]byte(nil), text...)
		l.Kind = Status
		l.Status = msg
	}
	return l
}

// ParseStatus returns the status message carried by line, if any.
func ParseStatus(line string) (models.StatusMessage, bool) {
	l := Classify(line)
	return l.Status, l.Kind == Status
}

// LastLine returns the final non-blank line of stdout.
func LastLine(stdout string) string {
	trimmed := strings.TrimRight(stdout, " \t\r\n")
	if i := strings.LastIndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return strings.TrimSpace(trimmed)
}

// ParseResult extracts the terminal result from a worker's complete stdout.
//
// Only the last line counts. Earlier lines may be anything. The last line
// must be a JSON array or a JSON object with a "success" key; any other
// object, such as {"error":"..."}, is rejected even though it parses.
// Workers that fail should exit nonzero or print {"success":false,...}.
// A missing or malformed last line is a ParseError carrying the raw stdout;
// partial results are never salvaged.
func ParseResult(stdout string) (*models.ScrapeResult, error) {
	last := LastLine(stdout)
	if last == "" {
		return nil, models.NewScrapeError(models.ErrCodeParseFailed,
			"invalid worker output: stdout is empty", ErrEmptyOutput).WithDetails(stdout)
	}

	l := Classify(last)
	if l.Kind != Result {
		return nil, models.NewScrapeError(models.ErrCodeParseFailed,
			"invalid worker output: last line is not a JSON result", ErrNoResult).WithDetails(stdout)
	}

	res, err := decodeResult(l.Text)
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeParseFailed,
			"invalid worker output: malformed result", err).WithDetails(stdout)
	}
	return res, nil
}

func decodeResult(text string) (*models.ScrapeResult, error) {
	raw := []byte(text)

	if text[0] == '[' {
		var data []models.Record
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, err
		}
		if data == nil {
			data = []models.Record{}
		}
		return &models.ScrapeResult{
			Kind:    models.ResultLegacy,
			Success: true,
			Data:    data,
			Raw:     raw,
		}, nil
	}

	var body struct {
		Success bool            `json:"success"`
		Data    []models.Record `json:"data"`
		Count   *int            `json:"count"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return &models.ScrapeResult{
		Kind:    models.ResultObject,
		Success: body.Success,
		Data:    body.Data,
		Count:   body.Count,
		Message: body.Message,
		Raw:     raw,
	}, nil
}
